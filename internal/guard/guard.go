// Package guard provides at-most-once execution of side-effecting actions
// within a cooldown window, keyed by a logical identifier.
package guard

import (
	"context"
	"sync"
	"time"
)

// Result reports whether the action completed successfully and, if not,
// why. A failed action yields Synced false together with its error.
type Result struct {
	Synced bool
	Reason string
}

const (
	reasonRecent   = "recently synced"
	reasonInFlight = "sync in progress"
	reasonFailed   = "sync failed"
)

// Guard suppresses duplicate runs of the same logical action. The
// completion timestamp is recorded only when the action succeeds, so a
// failed action can be retried on the very next call instead of being
// suppressed for a full window.
type Guard struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastRun  map[string]time.Time
	inFlight map[string]bool
	now      func() time.Time
}

// New creates a guard with the given cooldown window.
func New(cooldown time.Duration) *Guard {
	return &Guard{
		cooldown: cooldown,
		lastRun:  make(map[string]time.Time),
		inFlight: make(map[string]bool),
		now:      time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (g *Guard) SetClock(now func() time.Time) { g.now = now }

// SyncOnce runs action unless the key completed successfully within the
// cooldown window or is currently running. Racing callers get at most one
// execution: the key is marked in flight before the guard's lock is
// released.
func (g *Guard) SyncOnce(ctx context.Context, key string, action func(context.Context) error) (Result, error) {
	g.mu.Lock()
	if g.inFlight[key] {
		g.mu.Unlock()
		return Result{Reason: reasonInFlight}, nil
	}
	if last, ok := g.lastRun[key]; ok && g.now().Sub(last) < g.cooldown {
		g.mu.Unlock()
		return Result{Reason: reasonRecent}, nil
	}
	g.inFlight[key] = true
	g.mu.Unlock()

	err := action(ctx)

	g.mu.Lock()
	delete(g.inFlight, key)
	if err == nil {
		g.lastRun[key] = g.now()
	}
	g.mu.Unlock()

	if err != nil {
		return Result{Reason: reasonFailed}, err
	}
	return Result{Synced: true}, nil
}
