package duel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/ledger"
)

const defaultSubmitTimeout = 60 * time.Second

var (
	ErrNotConcluded   = errors.New("match not concluded")
	ErrNothingToRetry = errors.New("no failed submission to retry")
)

// Closer is the session the resolver tears down.
type Closer interface {
	Close() error
}

// Submitter records a concluded match. ledger.Service satisfies it.
type Submitter interface {
	SubmitOutcome(ctx context.Context, address string, outcome domain.Outcome) (ledger.Receipt, error)
}

type Submission struct {
	Outcome domain.Outcome
	Receipt ledger.Receipt
	Attempt int
	Err     error
}

// Resolver announces terminal outcomes and submits them to the ledger at
// most once per successful attempt.
type Resolver struct {
	closer  Closer
	ledger  Submitter
	address string
	timeout time.Duration

	mu         sync.Mutex
	concluded  bool
	outcome    domain.Outcome
	submitting bool
	submitted  bool
	attempts   int
	lastErr    error
	listeners  []func(Submission)
}

type ResolverOption func(*Resolver)

func WithSubmitTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewResolver builds a resolver for one session. A nil submitter or an empty
// address disables ledger submission.
func NewResolver(closer Closer, submitter Submitter, address string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		closer:  closer,
		ledger:  submitter,
		address: address,
		timeout: defaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckOutcome evaluates the match from the local side. Mutual defeat
// resolves to Defeat.
func (r *Resolver) CheckOutcome(local, remote domain.Combatant) domain.Outcome {
	return domain.CheckOutcome(local, remote)
}

// Conclude records a terminal outcome. Only the first call has any effect;
// it reports whether this call concluded the match.
func (r *Resolver) Conclude(outcome domain.Outcome) bool {
	r.mu.Lock()
	if r.concluded || outcome == domain.OutcomeNone {
		r.mu.Unlock()
		return false
	}
	r.concluded = true
	r.outcome = outcome
	if r.ledger == nil || r.address == "" {
		r.mu.Unlock()
		log.Printf("[DUEL] Match concluded: %s (ledger disabled)", outcome)
		return true
	}
	r.submitting = true
	r.mu.Unlock()

	log.Printf("[DUEL] Match concluded: %s, submitting to ledger", outcome)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.submit(ctx)
	}()
	return true
}

func (r *Resolver) Concluded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.concluded
}

func (r *Resolver) Outcome() domain.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// OnSubmitted registers fn for every finished ledger attempt.
func (r *Resolver) OnSubmitted(fn func(Submission)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// RetrySubmission re-submits after a failed attempt. The concluded outcome
// is never rolled back by a failure.
func (r *Resolver) RetrySubmission(ctx context.Context) (Submission, error) {
	r.mu.Lock()
	if !r.concluded {
		r.mu.Unlock()
		return Submission{}, ErrNotConcluded
	}
	if r.submitting || r.submitted || r.lastErr == nil {
		r.mu.Unlock()
		return Submission{}, ErrNothingToRetry
	}
	r.submitting = true
	r.mu.Unlock()

	res := r.submit(ctx)
	return res, res.Err
}

// Teardown closes the session regardless of match phase.
func (r *Resolver) Teardown() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Resolver) submit(ctx context.Context) Submission {
	receipt, err := r.ledger.SubmitOutcome(ctx, r.address, r.outcome)

	r.mu.Lock()
	r.submitting = false
	r.attempts++
	res := Submission{Outcome: r.outcome, Receipt: receipt, Attempt: r.attempts}
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", domain.ErrLedgerSubmission, err)
		r.lastErr = res.Err
	} else {
		r.submitted = true
		r.lastErr = nil
	}
	listeners := make([]func(Submission), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	if res.Err != nil {
		log.Printf("[DUEL] Ledger submission attempt %d failed: %v", res.Attempt, err)
	} else {
		log.Printf("[DUEL] Ledger recorded %s (tx %s)", res.Outcome, receipt.TxHash)
	}
	for _, fn := range listeners {
		fn(res)
	}
	return res
}
