package bot

import (
	"github.com/kenshin-labs/bushido-duel/internal/domain"
)

const (
	// Score priorities (from highest to lowest)
	SCORE_FINISH       = 10000 // Technique knocks the opponent out on any roll
	SCORE_MAY_FINISH   = 1000  // Technique knocks out on a high roll
	SCORE_SURVIVE      = 800   // Heal while inside the danger zone
	SCORE_DAMAGE_POINT = 100   // Per point of expected damage
	SCORE_HEAL_POINT   = 60    // Per point of health a heal can actually restore

	hardDangerZone = 4
)

// evaluateTechnique scores t for the bot holding self against opponent.
func evaluateTechnique(t domain.Technique, self, opponent domain.Combatant) int {
	if t.MaxHeal() > 0 {
		missing := self.MaxHealth - self.Health
		restorable := min(t.MaxHeal(), missing)
		if restorable <= 0 {
			return 0
		}
		score := restorable * SCORE_HEAL_POINT
		if self.Health <= hardDangerZone {
			score += SCORE_SURVIVE
		}
		return score
	}

	switch {
	case t.MinDamage() >= opponent.Health:
		return SCORE_FINISH
	case t.MaxDamage() >= opponent.Health:
		return SCORE_MAY_FINISH + int(t.ExpectedDamage()*SCORE_DAMAGE_POINT)
	}
	return int(t.ExpectedDamage() * SCORE_DAMAGE_POINT)
}
