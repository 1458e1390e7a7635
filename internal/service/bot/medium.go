package bot

import (
	"github.com/kenshin-labs/bushido-duel/internal/domain"
)

const mediumHealThreshold = 3

func chooseMedium(self domain.Combatant) domain.Technique {
	if self.Health <= mediumHealThreshold && self.Health < self.MaxHealth {
		return domain.TechniqueHeal
	}
	return domain.TechniqueBeam
}
