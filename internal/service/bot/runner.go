// Package bot plays the practice opponent: a full peer that joins the
// player's room and duels over the same protocol as a human.
package bot

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/service/duel"
	"github.com/kenshin-labs/bushido-duel/internal/service/session"
	"github.com/kenshin-labs/bushido-duel/internal/transport/peer"
)

const defaultThinkDelay = 500 * time.Millisecond

type Runner struct {
	difficulty string
	delay      time.Duration
	rng        domain.Roller
	maxHealth  int

	manager *session.Manager
	match   *duel.Match

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

type Option func(*Runner)

func WithDelay(d time.Duration) Option {
	return func(r *Runner) { r.delay = d }
}

func WithRand(rng domain.Roller) Option {
	return func(r *Runner) { r.rng = rng }
}

func WithMaxHealth(n int) Option {
	return func(r *Runner) { r.maxHealth = n }
}

type defaultRoller struct{}

func (defaultRoller) IntN(n int) int { return rand.Intn(n) }

// Join connects a bot over transport to room roomID and starts playing.
func Join(ctx context.Context, transport peer.Transport, roomID, difficulty string, opts ...Option) (*Runner, error) {
	r := &Runner{
		difficulty: difficulty,
		delay:      defaultThinkDelay,
		rng:        defaultRoller{},
		maxHealth:  domain.DefaultMaxHealth,
		manager:    session.NewManager(transport),
	}
	for _, opt := range opts {
		opt(r)
	}

	sess, err := r.manager.JoinSession(ctx, roomID)
	if err != nil {
		return nil, err
	}
	r.match = duel.NewMatch(sess, nil, duel.WithRand(r.rng), duel.WithMaxHealth(r.maxHealth))
	r.match.OnUpdate(r.onUpdate)
	r.manager.OnConnectionStateChange(func(_ *session.Session, _, to domain.ConnectionState) {
		if to == domain.StateClosed {
			r.Stop()
		}
	})

	log.Printf("[BOT] Joined room %s (%s)", roomID, difficulty)
	r.onUpdate(r.match.Snapshot())
	return r, nil
}

func (r *Runner) Snapshot() duel.Snapshot {
	return r.match.Snapshot()
}

// Stop cancels any pending move and leaves the room.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	r.manager.LeaveSession()
}

func (r *Runner) onUpdate(snap duel.Snapshot) {
	switch {
	case snap.Phase == domain.PhaseSelecting && snap.Local.Loadout == "" && snap.Remote.Loadout != "":
		rival := snap.Remote.Loadout.Rival()
		r.schedule(func() {
			if err := r.match.SelectLoadout(rival); err != nil {
				log.Printf("[BOT] Error selecting loadout: %v", err)
			}
		})
	case snap.YourTurn():
		r.schedule(r.act)
	}
}

func (r *Runner) act() {
	snap := r.match.Snapshot()
	if !snap.YourTurn() {
		return
	}
	technique := ChooseTechnique(r.difficulty, snap.Local, snap.Remote, r.rng)
	if _, err := r.match.SubmitLocalAction(technique); err != nil {
		log.Printf("[BOT] Error submitting %s: %v", technique, err)
	}
}

// schedule runs fn after the think delay, off the delivery path. At most one
// move is pending.
func (r *Runner) schedule(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.timer != nil {
		return
	}
	r.timer = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.mu.Unlock()
		fn()
	})
}
