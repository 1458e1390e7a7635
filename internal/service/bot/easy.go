package bot

import (
	"github.com/kenshin-labs/bushido-duel/internal/domain"
)

// the practice enemy's repertoire, weighted by repetition
var easyTable = []domain.Technique{
	domain.TechniqueSlash, domain.TechniqueSlash,
	domain.TechniqueKick, domain.TechniqueKick,
	domain.TechniqueHeal,
	domain.TechniqueBeam,
	domain.TechniqueSlash,
	domain.TechniqueKick,
}

func chooseEasy(rng domain.Roller) domain.Technique {
	return easyTable[rng.IntN(len(easyTable))]
}
