package domain

import "math/rand"

// seededRoller adapts a seeded math/rand source to Roller.
type seededRoller struct{ *rand.Rand }

func newSeededRoller(seed int64) seededRoller {
	return seededRoller{rand.New(rand.NewSource(seed))}
}

func (r seededRoller) IntN(n int) int { return r.Intn(n) }
