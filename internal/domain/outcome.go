package domain

// CheckOutcome evaluates a match from the local side's perspective.
// A simultaneous knockout resolves to OutcomeDefeat on both clients.
func CheckOutcome(local, remote Combatant) Outcome {
	if local.Defeated() {
		return OutcomeDefeat
	}
	if remote.Defeated() {
		return OutcomeVictory
	}
	return OutcomeNone
}

// OutcomeLine is the battle log line announcing an outcome.
func OutcomeLine(o Outcome) string {
	switch o {
	case OutcomeVictory:
		return "Victory! You win!"
	case OutcomeDefeat:
		return "Defeat! Opponent wins!"
	}
	return ""
}
