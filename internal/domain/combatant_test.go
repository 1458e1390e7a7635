package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCombatantClampsHealth(t *testing.T) {
	c := NewCombatant("You", 10)
	require.Equal(t, 10, c.Health)

	require.Equal(t, 7, c.TakeDamage(3))
	require.Equal(t, 7, c.TakeDamage(-4))
	require.Equal(t, 9, c.Restore(2))
	require.Equal(t, 10, c.Restore(5))
	require.Equal(t, 0, c.TakeDamage(25))
	require.True(t, c.Defeated())
}

func TestNewCombatantDefaultsMaxHealth(t *testing.T) {
	c := NewCombatant("Opponent", 0)
	require.Equal(t, DefaultMaxHealth, c.MaxHealth)
	require.Equal(t, DefaultMaxHealth, c.Health)
}

func TestHealthStaysInBoundsForEveryTechnique(t *testing.T) {
	rng := newSeededRoller(7)
	for _, tech := range Techniques() {
		for i := 0; i < 200; i++ {
			actor := NewCombatant("actor", 10)
			target := NewCombatant("target", 10)
			actor.Health = 1 + rng.IntN(10)
			target.Health = 1 + rng.IntN(10)

			e := tech.Roll(rng)
			target.TakeDamage(e.Damage)
			actor.Restore(e.Heal)

			require.GreaterOrEqual(t, target.Health, 0, tech)
			require.LessOrEqual(t, target.Health, target.MaxHealth, tech)
			require.GreaterOrEqual(t, actor.Health, 0, tech)
			require.LessOrEqual(t, actor.Health, actor.MaxHealth, tech)
		}
	}
}

func TestCheckOutcome(t *testing.T) {
	alive := func(hp int) Combatant {
		c := NewCombatant("c", 10)
		c.Health = hp
		return c
	}

	tests := []struct {
		name   string
		local  Combatant
		remote Combatant
		want   Outcome
	}{
		{"both standing", alive(4), alive(1), OutcomeNone},
		{"remote down", alive(4), alive(0), OutcomeVictory},
		{"local down", alive(0), alive(3), OutcomeDefeat},
		{"mutual knockout", alive(0), alive(0), OutcomeDefeat},
		{"negative health", alive(5), alive(-2), OutcomeVictory},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CheckOutcome(tc.local, tc.remote))
		})
	}
}
