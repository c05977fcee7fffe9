// Package settlement reconciles open trades against the venue's settlement
// feed and closes them exactly once.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/guard"
	"github.com/areyes/bankroll/internal/ledger"
	"github.com/areyes/bankroll/internal/ports"
)

// Config controls one venue's settlement worker.
type Config struct {
	Interval         time.Duration // sweep cadence (default 2m)
	LookupLimit      int           // settlements fetched per instrument
	MaxRetries       int           // per-lookup retry cap inside one cycle
	LookupsPerSecond float64       // rate limit on venue settlement calls
	OpenTradesLimit  int
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		Interval:         2 * time.Minute,
		LookupLimit:      5,
		MaxRetries:       2,
		LookupsPerSecond: 4,
		OpenTradesLimit:  200,
	}
}

// CycleResult summarizes one reconciliation sweep.
type CycleResult struct {
	Scanned     int
	Closed      int
	Wins        int
	Losses      int
	Pending     int // markets not resolved yet
	Skipped     int // non-binary or underivable trades
	Errors      int
	RealizedPnL float64
}

// Worker polls a venue's settlement feed for the venue's open trades.
type Worker struct {
	venue   domain.Venue
	client  ports.VenueClient
	store   ports.Store
	ledger  *ledger.Ledger
	guard   *guard.Guard
	limiter *rate.Limiter
	cfg     Config
	now     func() time.Time
}

// New creates a settlement worker for one venue.
func New(venue domain.Venue, client ports.VenueClient, store ports.Store, led *ledger.Ledger, g *guard.Guard, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.LookupLimit <= 0 {
		cfg.LookupLimit = DefaultConfig().LookupLimit
	}
	if cfg.LookupsPerSecond <= 0 {
		cfg.LookupsPerSecond = DefaultConfig().LookupsPerSecond
	}
	if cfg.OpenTradesLimit <= 0 {
		cfg.OpenTradesLimit = DefaultConfig().OpenTradesLimit
	}
	return &Worker{
		venue:   venue,
		client:  client,
		store:   store,
		ledger:  led,
		guard:   g,
		limiter: rate.NewLimiter(rate.Limit(cfg.LookupsPerSecond), 1),
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (w *Worker) SetClock(now func() time.Time) { w.now = now }

// Run executes the reconciliation loop until the context is cancelled.
// A failed cycle is logged and retried on the next tick; the loop itself
// never crashes the host.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("settlement: worker starting", "venue", w.venue, "interval", w.cfg.Interval)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("settlement: worker stopped", "venue", w.venue)
			return nil
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle wraps one sweep behind the idempotency guard and a recover, so
// an overlapping tick or a panicking trade never takes the loop down.
func (w *Worker) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("settlement: cycle panicked", "venue", w.venue, "panic", r)
		}
	}()

	key := "settlement:" + string(w.venue)
	res, err := w.guard.SyncOnce(ctx, key, func(ctx context.Context) error {
		result, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if result.Closed > 0 || result.Errors > 0 {
			slog.Info("settlement: cycle complete",
				"venue", w.venue,
				"scanned", result.Scanned,
				"closed", result.Closed,
				"wins", result.Wins,
				"losses", result.Losses,
				"pending", result.Pending,
				"pnl", fmt.Sprintf("%.2f", result.RealizedPnL),
				"errors", result.Errors)
		}
		return nil
	})
	if err != nil {
		slog.Warn("settlement: cycle failed", "venue", w.venue, "err", err)
		return
	}
	if !res.Synced {
		slog.Debug("settlement: cycle skipped", "venue", w.venue, "reason", res.Reason)
	}
}

// RunOnce performs a single reconciliation sweep. One trade's failure never
// aborts the batch.
func (w *Worker) RunOnce(ctx context.Context) (*CycleResult, error) {
	trades, err := w.store.GetOpenTrades(ctx, w.venue, w.cfg.OpenTradesLimit)
	if err != nil {
		return nil, fmt.Errorf("settlement.RunOnce: open trades: %w", err)
	}

	result := &CycleResult{Scanned: len(trades)}
	for _, t := range trades {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		switch w.reconcile(ctx, t, result) {
		case reconcileClosed:
			result.Closed++
		case reconcilePending:
			result.Pending++
		case reconcileSkipped:
			result.Skipped++
		case reconcileError:
			result.Errors++
		}
	}
	return result, nil
}

type reconcileStatus int

const (
	reconcileClosed reconcileStatus = iota
	reconcilePending
	reconcileSkipped
	reconcileError
)

// reconcile settles one trade if its market has resolved.
func (w *Worker) reconcile(ctx context.Context, t domain.Trade, result *CycleResult) reconcileStatus {
	if t.Type != domain.TradeTypeBinary {
		return reconcileSkipped
	}

	contracts, ok := t.DerivedContracts()
	if !ok {
		slog.Warn("settlement: trade has no derivable contracts, skipping",
			"trade", t.ID, "instrument", t.InstrumentID)
		return reconcileSkipped
	}

	settlement, found, err := w.lookup(ctx, t.InstrumentID)
	if err != nil {
		slog.Warn("settlement: lookup failed, deferring to next cycle",
			"trade", t.ID, "instrument", t.InstrumentID, "err", err)
		return reconcileError
	}
	if !found {
		return reconcilePending
	}

	// Binary-market P&L: each contract pays $1 on the matching side.
	cost := contracts * t.EntryPriceCents / 100
	payout := 0.0
	outcome := "loss"
	exitPrice := 0.0
	if t.Side == settlement.Result {
		payout = contracts
		outcome = "win"
		exitPrice = 100
	}
	fees := t.Fees + settlement.Fee
	pnl := payout - cost - fees

	closedAt := settlement.SettledAt
	if closedAt.IsZero() {
		closedAt = w.now().UTC()
	}

	// Exactly-once boundary: a single atomic update carries the full
	// closure. When the update touched no row the trade was settled by an
	// earlier sweep, and its capital has already been released.
	closed, err := w.store.CloseTrade(ctx, t.ID, domain.TradeClose{
		Outcome:        outcome,
		PnL:            pnl,
		ExitPriceCents: exitPrice,
		Contracts:      contracts,
		ClosedAt:       closedAt,
	})
	if err != nil {
		slog.Warn("settlement: close failed, will retry next cycle",
			"trade", t.ID, "err", err)
		return reconcileError
	}
	if !closed {
		slog.Debug("settlement: trade already settled, skipping release",
			"trade", t.ID)
		w.ledger.MarkSettled(t.ID)
		return reconcileSkipped
	}

	if err := w.store.MarkPredictionsResolved(ctx, w.venue, t.InstrumentID, outcome, pnl); err != nil {
		slog.Warn("settlement: prediction resolution failed",
			"instrument", t.InstrumentID, "err", err)
	}

	w.ledger.ReleaseFunds(t.ID, t.Venue, t.Amount, pnl)
	w.ledger.MarkSettled(t.ID)

	if outcome == "win" {
		result.Wins++
	} else {
		result.Losses++
	}
	result.RealizedPnL += pnl

	slog.Info("settlement: trade closed",
		"trade", t.ID,
		"instrument", t.InstrumentID,
		"outcome", outcome,
		"pnl", fmt.Sprintf("%.2f", pnl))
	return reconcileClosed
}

// lookup queries the settlement feed with a capped retry. A miss is not an
// error — the market simply has not resolved yet.
func (w *Worker) lookup(ctx context.Context, instrumentID string) (domain.Settlement, bool, error) {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return domain.Settlement{}, false, err
		}
		settlements, err := w.client.GetSettlements(ctx, instrumentID, w.cfg.LookupLimit)
		if err != nil {
			lastErr = err
			continue
		}
		for _, s := range settlements {
			if s.InstrumentID == instrumentID && (s.Result == "yes" || s.Result == "no") {
				return s, true, nil
			}
		}
		return domain.Settlement{}, false, nil
	}
	return domain.Settlement{}, false, fmt.Errorf("settlement.lookup: %s: retries exhausted: %w", instrumentID, lastErr)
}
