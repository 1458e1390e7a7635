package domain

const DefaultMaxHealth = 10

// Combatant is one side's mutable health record within a match.
type Combatant struct {
	Name      string  `json:"name"`
	Health    int     `json:"hp"`
	MaxHealth int     `json:"maxHp"`
	Loadout   Loadout `json:"clan,omitempty"`
}

func NewCombatant(name string, maxHealth int) Combatant {
	if maxHealth <= 0 {
		maxHealth = DefaultMaxHealth
	}
	return Combatant{
		Name:      name,
		Health:    maxHealth,
		MaxHealth: maxHealth,
	}
}

// TakeDamage lowers health, clamped at 0, and returns the new health.
func (c *Combatant) TakeDamage(amount int) int {
	if amount <= 0 {
		return c.Health
	}
	c.Health -= amount
	if c.Health < 0 {
		c.Health = 0
	}
	return c.Health
}

// Restore raises health, capped at MaxHealth, and returns the new health.
func (c *Combatant) Restore(amount int) int {
	if amount <= 0 {
		return c.Health
	}
	c.Health += amount
	if c.Health > c.MaxHealth {
		c.Health = c.MaxHealth
	}
	return c.Health
}

func (c Combatant) Defeated() bool {
	return c.Health <= 0
}
