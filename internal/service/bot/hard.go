package bot

import (
	"github.com/kenshin-labs/bushido-duel/internal/domain"
)

// preference order for equal scores: a sure kill is taken with the kick
var hardOrder = []domain.Technique{
	domain.TechniqueKick,
	domain.TechniqueBeam,
	domain.TechniqueSlash,
	domain.TechniqueHeal,
}

func chooseHard(self, opponent domain.Combatant) domain.Technique {
	best := hardOrder[0]
	bestScore := -1
	for _, t := range hardOrder {
		score := evaluateTechnique(t, self, opponent)
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	return best
}
