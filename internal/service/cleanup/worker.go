package cleanup

import (
	"context"
	"log"
	"time"
)

// Pruner is the relay state the worker sweeps.
type Pruner interface {
	PruneReservations(now time.Time) int
	PruneLinks(now time.Time, maxAge time.Duration) int
}

const (
	DefaultInterval   = time.Minute
	DefaultLinkMaxAge = 2 * time.Minute
)

type Worker struct {
	Relay    Pruner
	Interval time.Duration
	// LinkMaxAge bounds how long a handshake may stay unanswered.
	LinkMaxAge time.Duration
}

// NewWorker replaces a non-positive interval or link age with its default.
func NewWorker(relay Pruner, interval, linkMaxAge time.Duration) *Worker {
	if interval <= 0 {
		log.Printf("[CLEANUP] Invalid interval %v, using %v", interval, DefaultInterval)
		interval = DefaultInterval
	}
	if linkMaxAge <= 0 {
		linkMaxAge = DefaultLinkMaxAge
	}
	return &Worker{Relay: relay, Interval: interval, LinkMaxAge: linkMaxAge}
}

// Start runs a sweep immediately and then every Interval until ctx ends.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		w.runCleanup(time.Now())

		interval := w.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("[CLEANUP] Background worker stopped")
				return
			case now := <-ticker.C:
				w.runCleanup(now)
			}
		}
	}()
	log.Println("[CLEANUP] Background worker started")
}

func (w *Worker) runCleanup(now time.Time) {
	reservations := w.Relay.PruneReservations(now)
	links := w.Relay.PruneLinks(now, w.LinkMaxAge)
	if reservations > 0 || links > 0 {
		log.Printf("[CLEANUP] Released %d expired id reservation(s) and %d stale handshake(s)", reservations, links)
	}
}
