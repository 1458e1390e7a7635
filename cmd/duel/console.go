package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/service/duel"
	"github.com/kenshin-labs/bushido-duel/internal/service/session"
)

const helpText = `Commands:
  fire | water                 choose your clan
  slash | heal | beam | kick   use a technique on your turn
  retry                        resubmit a failed ledger record
  quit                         leave the duel`

// console renders a match as text and turns typed commands into protocol
// calls.
type console struct {
	manager  *session.Manager
	match    *duel.Match
	resolver *duel.Resolver

	mu         sync.Mutex // guards out, printed and lastPrompt
	out        io.Writer
	printed    int
	lastPrompt string

	done     chan struct{}
	doneOnce sync.Once
}

func newConsole(out io.Writer, manager *session.Manager, match *duel.Match, resolver *duel.Resolver) *console {
	c := &console{
		manager:  manager,
		match:    match,
		resolver: resolver,
		out:      out,
		done:     make(chan struct{}),
	}

	match.OnUpdate(c.render)
	match.OnDesync(func(err error) {
		c.printf("! %v\n", err)
	})
	if resolver != nil {
		resolver.OnSubmitted(c.submitted)
	}
	manager.OnConnectionStateChange(func(_ *session.Session, _, to domain.ConnectionState) {
		if to == domain.StateClosed {
			c.finish()
		}
	})
	return c
}

// run reads commands from in until the player quits, the session closes or
// ctx ends.
func (c *console) run(ctx context.Context, in io.Reader) error {
	c.printf("%s\n", helpText)
	c.render(c.match.Snapshot())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-c.done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.leave()
			return nil
		case <-c.done:
			c.printf("The duel is over, the connection was closed.\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				c.leave()
				return nil
			}
			if c.handle(ctx, line) {
				c.leave()
				return nil
			}
		}
	}
}

// handle executes one command and reports whether the player asked to leave.
func (c *console) handle(ctx context.Context, line string) bool {
	cmd := strings.ToLower(strings.TrimSpace(line))
	switch cmd {
	case "":
		return false
	case "quit", "exit", "leave":
		return true
	case "help", "?":
		c.printf("%s\n", helpText)
		return false
	case "retry":
		c.retry(ctx)
		return false
	}

	if loadout := domain.Loadout(cmd); loadout.Valid() {
		if err := c.match.SelectLoadout(loadout); err != nil {
			c.printf("! %v\n", err)
		}
		return false
	}

	if technique := domain.Technique(cmd); technique.Valid() {
		applied, err := c.match.SubmitLocalAction(technique)
		if !applied {
			c.printf("It is not your turn.\n")
		}
		if err != nil {
			c.printf("! %v\n", err)
		}
		return false
	}

	c.printf("Unknown command %q, type help.\n", cmd)
	return false
}

func (c *console) retry(ctx context.Context) {
	if c.resolver == nil {
		c.printf("Nothing to retry.\n")
		return
	}
	_, err := c.resolver.RetrySubmission(ctx)
	switch {
	case errors.Is(err, duel.ErrNotConcluded):
		c.printf("The duel is still going.\n")
	case errors.Is(err, duel.ErrNothingToRetry):
		c.printf("Nothing to retry.\n")
	}
	// the outcome itself is reported through submitted
}

func (c *console) submitted(s duel.Submission) {
	if s.Err != nil {
		c.printf("Could not record the result (attempt %d): %v\nType retry to try again.\n", s.Attempt, s.Err)
		return
	}
	if s.Receipt.TxHash != "" {
		c.printf("Result recorded on the ledger (%s).\n", s.Receipt.TxHash)
		return
	}
	c.printf("Result recorded on the ledger.\n")
}

func (c *console) render(snap duel.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(snap.Log) < c.printed {
		return
	}
	for _, line := range snap.Log[c.printed:] {
		fmt.Fprintln(c.out, line)
	}
	c.printed = len(snap.Log)

	prompt := promptFor(snap)
	if prompt != "" && prompt != c.lastPrompt {
		fmt.Fprintln(c.out, prompt)
	}
	c.lastPrompt = prompt
}

func promptFor(snap duel.Snapshot) string {
	switch snap.Phase {
	case domain.PhaseSelecting:
		if snap.Local.Loadout == "" {
			return "Choose your clan: fire | water"
		}
		return "Waiting for your opponent to choose a clan..."
	case domain.PhaseInProgress:
		status := fmt.Sprintf("[You %d/%d HP | Opponent %d/%d HP]",
			snap.Local.Health, snap.Local.MaxHealth, snap.Remote.Health, snap.Remote.MaxHealth)
		if snap.YourTurn() {
			return status + " Your move: slash | heal | beam | kick"
		}
		return status + " Opponent's turn..."
	case domain.PhaseConcluded:
		return "The duel has ended. Type quit to leave."
	}
	return ""
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// leave closes the duel's session. The manager is left Idle either way.
func (c *console) leave() {
	if c.resolver != nil {
		c.resolver.Teardown()
	}
	c.manager.LeaveSession()
}

func (c *console) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}
