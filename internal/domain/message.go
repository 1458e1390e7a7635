package domain

import (
	"encoding/json"
	"fmt"
)

// MessageKind is the wire discriminant of an ActionMessage.
type MessageKind string

const (
	KindLoadoutSelect MessageKind = "clanSelect"
	KindAttack        MessageKind = "attack"
)

// Action is the closed set of gameplay actions exchanged between peers:
// LoadoutSelect or Attack.
type Action interface {
	Kind() MessageKind
	isAction()
}

type LoadoutSelect struct {
	Loadout Loadout
}

func (LoadoutSelect) Kind() MessageKind { return KindLoadoutSelect }
func (LoadoutSelect) isAction()         {}

// Attack carries the effect already computed by the sender. Heal is a
// technique too, so an Attack may carry a heal amount and no damage.
type Attack struct {
	Technique Technique
	Damage    int
	Heal      int
}

func (Attack) Kind() MessageKind { return KindAttack }
func (Attack) isAction()         {}

func (a Attack) Effect() Effect {
	return Effect{Damage: a.Damage, Heal: a.Heal}
}

// ActionMessage is one numbered action. Seq starts at 1 for each sender.
type ActionMessage struct {
	Seq    uint64
	Action Action
}

type wireMessage struct {
	Type   MessageKind `json:"type"`
	Seq    uint64      `json:"seq,omitempty"`
	Clan   Loadout     `json:"clan,omitempty"`
	Action Technique   `json:"action,omitempty"`
	Damage *int        `json:"damage,omitempty"`
	Heal   *int        `json:"heal,omitempty"`
}

func EncodeAction(msg ActionMessage) ([]byte, error) {
	w := wireMessage{Seq: msg.Seq}
	switch a := msg.Action.(type) {
	case LoadoutSelect:
		w.Type = KindLoadoutSelect
		w.Clan = a.Loadout
	case Attack:
		w.Type = KindAttack
		w.Action = a.Technique
		damage, heal := a.Damage, a.Heal
		w.Damage = &damage
		w.Heal = &heal
	default:
		return nil, fmt.Errorf("%w: unsupported action %T", ErrInvalidMessage, msg.Action)
	}
	return json.Marshal(w)
}

// DecodeAction parses and validates a payload received from a peer.
// Magnitudes are not range-checked: receivers apply them verbatim.
func DecodeAction(payload []byte) (ActionMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(payload, &w); err != nil {
		return ActionMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch w.Type {
	case KindLoadoutSelect:
		if !w.Clan.Valid() {
			return ActionMessage{}, fmt.Errorf("%w: %w %q", ErrInvalidMessage, ErrUnknownLoadout, w.Clan)
		}
		return ActionMessage{Seq: w.Seq, Action: LoadoutSelect{Loadout: w.Clan}}, nil

	case KindAttack:
		if !w.Action.Valid() {
			return ActionMessage{}, fmt.Errorf("%w: %w %q", ErrInvalidMessage, ErrUnknownTechnique, w.Action)
		}
		attack := Attack{Technique: w.Action}
		if w.Damage != nil {
			attack.Damage = *w.Damage
		}
		if w.Heal != nil {
			attack.Heal = *w.Heal
		}
		if attack.Damage < 0 || attack.Heal < 0 {
			return ActionMessage{}, fmt.Errorf("%w: negative amount", ErrInvalidMessage)
		}
		return ActionMessage{Seq: w.Seq, Action: attack}, nil
	}

	return ActionMessage{}, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, w.Type)
}
