package bot

import (
	"github.com/kenshin-labs/bushido-duel/internal/domain"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// ChooseTechnique selects the bot's next technique based on difficulty
func ChooseTechnique(difficulty string, self, opponent domain.Combatant, rng domain.Roller) domain.Technique {
	switch difficulty {
	case DifficultyEasy:
		return chooseEasy(rng)
	case DifficultyMedium:
		return chooseMedium(self)
	case DifficultyHard:
		return chooseHard(self, opponent)
	default:
		return chooseMedium(self)
	}
}

func ValidDifficulty(difficulty string) bool {
	return difficulty == DifficultyEasy || difficulty == DifficultyMedium || difficulty == DifficultyHard
}
