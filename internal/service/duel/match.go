// Package duel runs the turn protocol of a two-party duel and resolves its
// outcome.
package duel

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
)

const openingLine = "The multiplayer duel begins!"

// Channel is the session a match runs over.
type Channel interface {
	Role() domain.Role
	Send(payload []byte) error
	SetMessageHandler(fn func(payload []byte))
}

// Snapshot is a copy of the match state for rendering.
type Snapshot struct {
	Role       domain.Role
	Phase      domain.Phase
	ActiveSide domain.Side
	Local      domain.Combatant
	Remote     domain.Combatant
	Log        []string
	Outcome    domain.Outcome
}

// YourTurn reports whether a local action would be applied now.
func (s Snapshot) YourTurn() bool {
	return s.Phase == domain.PhaseInProgress && s.ActiveSide == domain.SideLocal
}

// Match mirrors one duel between the local player and the peer. Each client
// holds its own Match; the two stay consistent by exchanging results.
type Match struct {
	ch       Channel
	resolver *Resolver
	rng      domain.Roller

	mu      sync.Mutex
	phase   domain.Phase
	active  domain.Side
	local   domain.Combatant
	remote  domain.Combatant
	log     []string
	outcome domain.Outcome
	sentSeq uint64
	recvSeq uint64

	listenersMu sync.Mutex
	onUpdate    []func(Snapshot)
	onDesync    []func(error)
}

type Option func(*Match)

func WithRand(rng domain.Roller) Option {
	return func(m *Match) {
		if rng != nil {
			m.rng = rng
		}
	}
}

func WithMaxHealth(n int) Option {
	return func(m *Match) {
		m.local = domain.NewCombatant(m.local.Name, n)
		m.remote = domain.NewCombatant(m.remote.Name, n)
	}
}

type defaultRoller struct{}

func (defaultRoller) IntN(n int) int { return rand.Intn(n) }

// NewMatch starts a match in the Selecting phase over ch. The host moves
// first. resolver may be nil, in which case outcomes are still detected but
// nothing is submitted.
func NewMatch(ch Channel, resolver *Resolver, opts ...Option) *Match {
	m := &Match{
		ch:       ch,
		resolver: resolver,
		rng:      defaultRoller{},
		phase:    domain.PhaseSelecting,
		local:    domain.NewCombatant("You", domain.DefaultMaxHealth),
		remote:   domain.NewCombatant("Opponent", domain.DefaultMaxHealth),
		log:      []string{openingLine},
	}
	for _, opt := range opts {
		opt(m)
	}
	if ch.Role() == domain.RoleHost {
		m.active = domain.SideLocal
	} else {
		m.active = domain.SideRemote
	}

	ch.SetMessageHandler(m.HandleRemoteMessage)
	return m
}

// OnUpdate registers fn to receive a snapshot after every state change.
func (m *Match) OnUpdate(fn func(Snapshot)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.onUpdate = append(m.onUpdate, fn)
}

// OnDesync registers fn for messages that were dropped or that reveal the
// two clients may have diverged. Every reported error wraps
// domain.ErrDesyncRisk.
func (m *Match) OnDesync(fn func(error)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.onDesync = append(m.onDesync, fn)
}

func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// SelectLoadout picks the local clan and announces it. Only the first choice
// counts. The state change is kept even if the send fails.
func (m *Match) SelectLoadout(loadout domain.Loadout) error {
	if !loadout.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownLoadout, loadout)
	}

	m.mu.Lock()
	if m.phase != domain.PhaseSelecting || m.local.Loadout != "" {
		m.mu.Unlock()
		return nil
	}
	m.local.Loadout = loadout
	m.appendLocked(fmt.Sprintf("You fight for the %s clan.", loadout.Title()))
	m.maybeStartLocked()
	payload, err := m.encodeLocked(domain.LoadoutSelect{Loadout: loadout})
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if err == nil {
		err = m.ch.Send(payload)
	}
	m.publish(snap)
	return err
}

// SubmitLocalAction performs technique t if it is the local side's turn.
// Out-of-turn and post-conclusion calls are no-ops and report false. The
// turn flips to the remote side even if sending fails; the send error is
// returned alongside.
func (m *Match) SubmitLocalAction(t domain.Technique) (bool, error) {
	if !t.Valid() {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownTechnique, t)
	}

	m.mu.Lock()
	if m.phase != domain.PhaseInProgress || m.active != domain.SideLocal {
		m.mu.Unlock()
		return false, nil
	}

	effect := t.Roll(m.rng)
	m.remote.TakeDamage(effect.Damage)
	m.local.Restore(effect.Heal)
	m.appendLocked(t.Describe(domain.SideLocal, effect))
	m.active = domain.SideRemote

	payload, err := m.encodeLocked(domain.Attack{Technique: t, Damage: effect.Damage, Heal: effect.Heal})
	outcome := m.resolveLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if err == nil {
		err = m.ch.Send(payload)
	}
	m.publish(snap)
	m.conclude(outcome)
	return true, err
}

// HandleRemoteMessage applies one payload received from the peer.
func (m *Match) HandleRemoteMessage(payload []byte) {
	msg, err := domain.DecodeAction(payload)
	if err != nil {
		m.reportDesync(fmt.Errorf("%w: %w", domain.ErrDesyncRisk, err))
		return
	}

	var problems []error
	m.mu.Lock()
	if msg.Seq != 0 {
		switch {
		case msg.Seq <= m.recvSeq:
			last := m.recvSeq
			m.mu.Unlock()
			m.reportDesync(fmt.Errorf("%w: replayed message seq %d (last %d)", domain.ErrDesyncRisk, msg.Seq, last))
			return
		case msg.Seq > m.recvSeq+1:
			problems = append(problems, fmt.Errorf("%w: missing messages %d..%d", domain.ErrDesyncRisk, m.recvSeq+1, msg.Seq-1))
		}
		m.recvSeq = msg.Seq
	}

	var outcome domain.Outcome
	switch a := msg.Action.(type) {
	case domain.LoadoutSelect:
		if m.phase != domain.PhaseSelecting || m.remote.Loadout != "" {
			problems = append(problems, fmt.Errorf("%w: unexpected loadout %q in phase %s", domain.ErrDesyncRisk, a.Loadout, m.phase))
			break
		}
		m.remote.Loadout = a.Loadout
		m.appendLocked(fmt.Sprintf("Opponent fights for the %s clan.", a.Loadout.Title()))
		m.maybeStartLocked()

	case domain.Attack:
		if m.phase != domain.PhaseInProgress {
			problems = append(problems, fmt.Errorf("%w: %s received in phase %s", domain.ErrDesyncRisk, a.Technique, m.phase))
			break
		}
		if m.active != domain.SideRemote {
			problems = append(problems, fmt.Errorf("%w: %s received out of turn", domain.ErrDesyncRisk, a.Technique))
			break
		}
		m.local.TakeDamage(a.Damage)
		m.remote.Restore(a.Heal)
		m.appendLocked(a.Technique.Describe(domain.SideRemote, a.Effect()))
		m.active = domain.SideLocal
		outcome = m.resolveLocked()
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	for _, p := range problems {
		m.reportDesync(p)
	}
	m.publish(snap)
	m.conclude(outcome)
}

func (m *Match) maybeStartLocked() {
	if m.phase != domain.PhaseSelecting || m.local.Loadout == "" || m.remote.Loadout == "" {
		return
	}
	m.phase = domain.PhaseInProgress
	if m.active == domain.SideLocal {
		m.appendLocked("Battle start! You strike first.")
	} else {
		m.appendLocked("Battle start! Opponent strikes first.")
	}
	log.Printf("[DUEL] %s vs %s, in progress", m.local.Loadout, m.remote.Loadout)
}

// resolveLocked concludes the match locally when a combatant is down and
// returns the new outcome, or OutcomeNone.
func (m *Match) resolveLocked() domain.Outcome {
	var outcome domain.Outcome
	if m.resolver != nil {
		outcome = m.resolver.CheckOutcome(m.local, m.remote)
	} else {
		outcome = domain.CheckOutcome(m.local, m.remote)
	}
	if outcome == domain.OutcomeNone {
		return domain.OutcomeNone
	}
	m.phase = domain.PhaseConcluded
	m.outcome = outcome
	m.appendLocked(domain.OutcomeLine(outcome))
	return outcome
}

func (m *Match) conclude(outcome domain.Outcome) {
	if outcome == domain.OutcomeNone || m.resolver == nil {
		return
	}
	m.resolver.Conclude(outcome)
}

func (m *Match) encodeLocked(action domain.Action) ([]byte, error) {
	m.sentSeq++
	return domain.EncodeAction(domain.ActionMessage{Seq: m.sentSeq, Action: action})
}

func (m *Match) appendLocked(line string) {
	if line != "" {
		m.log = append(m.log, line)
	}
}

func (m *Match) snapshotLocked() Snapshot {
	lines := make([]string, len(m.log))
	copy(lines, m.log)
	return Snapshot{
		Role:       m.ch.Role(),
		Phase:      m.phase,
		ActiveSide: m.active,
		Local:      m.local,
		Remote:     m.remote,
		Log:        lines,
		Outcome:    m.outcome,
	}
}

func (m *Match) publish(snap Snapshot) {
	m.listenersMu.Lock()
	listeners := make([]func(Snapshot), len(m.onUpdate))
	copy(listeners, m.onUpdate)
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (m *Match) reportDesync(err error) {
	if !errors.Is(err, domain.ErrDesyncRisk) {
		err = fmt.Errorf("%w: %w", domain.ErrDesyncRisk, err)
	}
	log.Printf("[DUEL] Dropped or suspicious message: %v", err)

	m.listenersMu.Lock()
	listeners := make([]func(error), len(m.onDesync))
	copy(listeners, m.onDesync)
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}
