// Package rebalance tracks advisory inter-venue transfer requests. A
// request is only ever a suggestion — execution is manual.
package rebalance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/ports"
)

// BalanceView is the read-only slice of the ledger the tracker composes
// over (no subclassing, no write access).
type BalanceView interface {
	Balance(venue domain.Venue) domain.PlatformBalance
	AllocationDelta(venue domain.Venue) float64
}

// Tracker suggests transfers when a venue drifts past the threshold from
// its target allocation, and tracks each request's lifecycle.
type Tracker struct {
	mu        sync.Mutex
	view      BalanceView
	store     ports.Store // may be nil
	threshold float64
	requests  map[string]*domain.RebalanceRequest
	now       func() time.Time
}

// New creates a tracker over a ledger view. threshold is the dollar drift
// that triggers a suggestion.
func New(view BalanceView, store ports.Store, threshold float64) *Tracker {
	return &Tracker{
		view:      view,
		store:     store,
		threshold: threshold,
		requests:  make(map[string]*domain.RebalanceRequest),
		now:       time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// Suggest returns a pending request when one venue is over-allocated past
// the threshold, or nil when the pool is balanced enough. At most one
// pending request exists at a time.
func (t *Tracker) Suggest(ctx context.Context) *domain.RebalanceRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range t.requests {
		if r.Status == domain.RebalancePending || r.Status == domain.RebalanceInitiated {
			return nil // an open request already covers the drift
		}
	}

	for _, from := range domain.Venues() {
		delta := t.view.AllocationDelta(from)
		if delta <= t.threshold {
			continue
		}
		// Never suggest moving more than the venue can spare.
		amount := min(delta, t.view.Balance(from).Available)
		if amount <= 0 {
			continue
		}

		r := &domain.RebalanceRequest{
			ID:        uuid.New().String(),
			From:      from,
			To:        from.Other(),
			Amount:    amount,
			Status:    domain.RebalancePending,
			CreatedAt: t.now().UTC(),
		}
		t.requests[r.ID] = r
		t.persist(ctx, *r)
		slog.Info("rebalance: transfer suggested",
			"from", r.From, "to", r.To, "amount", fmt.Sprintf("%.2f", r.Amount))
		return r
	}
	return nil
}

// MarkInitiated records that the manual transfer was started.
func (t *Tracker) MarkInitiated(ctx context.Context, id string) error {
	return t.transition(ctx, id, domain.RebalancePending, domain.RebalanceInitiated)
}

// MarkCompleted records that the manual transfer finished.
func (t *Tracker) MarkCompleted(ctx context.Context, id string) error {
	return t.transition(ctx, id, domain.RebalanceInitiated, domain.RebalanceCompleted)
}

// Cancel withdraws a pending or initiated request.
func (t *Tracker) Cancel(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.requests[id]
	if !ok {
		return fmt.Errorf("rebalance.Cancel: unknown request %s", id)
	}
	if r.Status == domain.RebalanceCompleted || r.Status == domain.RebalanceCancelled {
		return fmt.Errorf("rebalance.Cancel: request %s already %s", id, r.Status)
	}
	r.Status = domain.RebalanceCancelled
	t.persist(ctx, *r)
	return nil
}

// Requests returns a snapshot of all tracked requests.
func (t *Tracker) Requests() []domain.RebalanceRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.RebalanceRequest, 0, len(t.requests))
	for _, r := range t.requests {
		out = append(out, *r)
	}
	return out
}

func (t *Tracker) transition(ctx context.Context, id string, from, to domain.RebalanceStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.requests[id]
	if !ok {
		return fmt.Errorf("rebalance: unknown request %s", id)
	}
	if r.Status != from {
		return fmt.Errorf("rebalance: request %s is %s, expected %s", id, r.Status, from)
	}
	r.Status = to
	now := t.now().UTC()
	switch to {
	case domain.RebalanceInitiated:
		r.InitiatedAt = &now
	case domain.RebalanceCompleted:
		r.CompletedAt = &now
	}
	t.persist(ctx, *r)
	return nil
}

func (t *Tracker) persist(ctx context.Context, r domain.RebalanceRequest) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveRebalance(ctx, r); err != nil {
		slog.Warn("rebalance: persist failed", "request", r.ID, "err", err)
	}
}
