package domain

import "fmt"

// Loadout is the clan a duelist fights for. It is cosmetic.
type Loadout string

const (
	LoadoutFire  Loadout = "fire"
	LoadoutWater Loadout = "water"
)

func (l Loadout) Valid() bool {
	return l == LoadoutFire || l == LoadoutWater
}

func (l Loadout) Title() string {
	switch l {
	case LoadoutFire:
		return "Fire Bushido"
	case LoadoutWater:
		return "Water Bushido"
	}
	return string(l)
}

// Rival returns the clan a practice opponent takes against l.
func (l Loadout) Rival() Loadout {
	if l == LoadoutFire {
		return LoadoutWater
	}
	return LoadoutFire
}

type Technique string

const (
	TechniqueSlash Technique = "slash"
	TechniqueHeal  Technique = "heal"
	TechniqueBeam  Technique = "beam"
	TechniqueKick  Technique = "kick"
)

// Roller is the randomness source for technique magnitudes.
// *math/rand/v2.Rand satisfies it.
type Roller interface {
	IntN(n int) int
}

// Effect is the computed result of a technique, as transmitted on the wire.
type Effect struct {
	Damage int
	Heal   int
}

type techniqueSpec struct {
	minDamage, maxDamage int
	minHeal, maxHeal     int
	localLine            string
	remoteLine           string
}

// gameplay table; both sides only ever apply the numbers the actor sent
var techniques = map[Technique]techniqueSpec{
	TechniqueSlash: {minDamage: 1, maxDamage: 2,
		localLine: "You slashed for %d damage!", remoteLine: "Opponent slashed you for %d damage!"},
	TechniqueBeam: {minDamage: 1, maxDamage: 3,
		localLine: "Your beam blast hit for %d damage!", remoteLine: "Opponent's beam blast hit you for %d damage!"},
	TechniqueKick: {minDamage: 1, maxDamage: 1,
		localLine: "You kicked for %d damage!", remoteLine: "Opponent kicked you for %d damage!"},
	TechniqueHeal: {minHeal: 1, maxHeal: 2,
		localLine: "You healed for %d HP!", remoteLine: "Opponent healed for %d HP!"},
}

// Techniques lists the known techniques in menu order.
func Techniques() []Technique {
	return []Technique{TechniqueSlash, TechniqueHeal, TechniqueBeam, TechniqueKick}
}

func (t Technique) Valid() bool {
	_, ok := techniques[t]
	return ok
}

// MaxDamage is the largest damage t can roll.
func (t Technique) MaxDamage() int {
	return techniques[t].maxDamage
}

func (t Technique) MinDamage() int {
	return techniques[t].minDamage
}

func (t Technique) MaxHeal() int {
	return techniques[t].maxHeal
}

// ExpectedDamage is the mean damage of t over its uniform roll.
func (t Technique) ExpectedDamage() float64 {
	spec := techniques[t]
	return float64(spec.minDamage+spec.maxDamage) / 2
}

// Roll computes the magnitude of t. Unknown techniques roll nothing.
func (t Technique) Roll(rng Roller) Effect {
	spec, ok := techniques[t]
	if !ok {
		return Effect{}
	}
	return Effect{
		Damage: rollBetween(rng, spec.minDamage, spec.maxDamage),
		Heal:   rollBetween(rng, spec.minHeal, spec.maxHeal),
	}
}

// Describe renders a battle log line for an effect, from the actor's side.
func (t Technique) Describe(actor Side, e Effect) string {
	spec, ok := techniques[t]
	if !ok {
		return ""
	}
	amount := e.Damage
	if spec.maxHeal > 0 {
		amount = e.Heal
	}
	if actor == SideLocal {
		return fmt.Sprintf(spec.localLine, amount)
	}
	return fmt.Sprintf(spec.remoteLine, amount)
}

func rollBetween(rng Roller, min, max int) int {
	if max <= 0 {
		return 0
	}
	if max <= min {
		return min
	}
	return min + rng.IntN(max-min+1)
}
