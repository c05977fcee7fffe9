// Package trading runs the admission/execution pipeline: opportunities in,
// gated orders out, trades recorded and capital allocated.
package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/areyes/bankroll/internal/calibration"
	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/ledger"
	"github.com/areyes/bankroll/internal/ports"
)

// Config controls the trading loop.
type Config struct {
	Interval time.Duration
}

// CycleResult summarizes one trading cycle.
type CycleResult struct {
	Considered int
	Placed     int
	Denied     map[domain.DenialReason]int
	Deployed   float64
}

// Engine wires the admission chain to order placement. All state lives in
// the injected ledger; the engine itself holds only dependencies.
type Engine struct {
	clients  map[domain.Venue]ports.VenueClient
	source   ports.OpportunitySource
	ledger   *ledger.Ledger
	trackers map[domain.Venue]*calibration.Tracker
	notifier ports.Notifier // may be nil
	cfg      Config
}

// New creates a trading engine.
func New(
	clients map[domain.Venue]ports.VenueClient,
	source ports.OpportunitySource,
	led *ledger.Ledger,
	trackers map[domain.Venue]*calibration.Tracker,
	notifier ports.Notifier,
	cfg Config,
) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Engine{
		clients:  clients,
		source:   source,
		ledger:   led,
		trackers: trackers,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Run executes trading cycles until the context is cancelled. Cycle errors
// are logged and the loop continues on the next tick.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("trading: engine starting", "interval", e.cfg.Interval)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("trading: engine stopped")
			return nil
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				slog.Error("trading: cycle failed", "err", err)
			}
		}
	}
}

// RunOnce executes one trading cycle: refresh balances → fetch candidates →
// gate and place.
func (e *Engine) RunOnce(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{Denied: make(map[domain.DenialReason]int)}

	// 1. Refresh venue balances so admission sees current capital.
	for venue, client := range e.clients {
		available, inPositions, pending, err := client.GetBalance(ctx)
		if err != nil {
			slog.Warn("trading: balance refresh failed", "venue", venue, "err", err)
			continue
		}
		e.ledger.UpdateBalance(venue, available, inPositions, pending)
	}

	// 2. Pull candidates.
	opps, err := e.source.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("trading.RunOnce: opportunities: %w", err)
	}
	result.Considered = len(opps)

	// 3. Gate and execute.
	for _, opp := range opps {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		e.execute(ctx, opp, result)
	}

	e.notify(ctx)

	slog.Info("trading: cycle complete",
		"considered", result.Considered,
		"placed", result.Placed,
		"deployed", fmt.Sprintf("%.2f", result.Deployed))
	return result, nil
}

// execute runs one opportunity through calibration, the venue ladder and
// the admission chain, then places the order.
func (e *Engine) execute(ctx context.Context, opp domain.Opportunity, result *CycleResult) {
	// Rescale the raw confidence by the category's empirical calibration
	// before it reaches any threshold.
	if tracker, ok := e.trackers[opp.Venue]; ok {
		calibrated, err := tracker.CalibratedConfidence(ctx, opp.Category, opp.Confidence)
		if err != nil {
			slog.Warn("trading: calibration unavailable, using raw confidence",
				"category", opp.Category, "err", err)
		} else {
			opp.Confidence = calibrated
		}
	}

	if !e.ledger.ShouldTradeOnVenue(opp.Venue, opp.Score) {
		return
	}

	decision := e.ledger.CanTrade(ctx, opp)
	if !decision.Allowed {
		result.Denied[decision.Reason]++
		slog.Debug("trading: opportunity denied",
			"instrument", opp.InstrumentID, "reason", decision.Reason)
		return
	}

	client, ok := e.clients[opp.Venue]
	if !ok {
		slog.Warn("trading: no client for venue", "venue", opp.Venue)
		return
	}

	placed, err := client.PlaceOrder(ctx, domain.OrderRequest{
		InstrumentID: opp.InstrumentID,
		Side:         opp.Side,
		Amount:       opp.RequiredCapital,
	})
	if err != nil {
		slog.Warn("trading: order placement failed",
			"instrument", opp.InstrumentID, "venue", opp.Venue, "err", err)
		return
	}

	trade := domain.Trade{
		ID:              uuid.New().String(),
		OpportunityID:   opp.ID,
		Venue:           opp.Venue,
		Type:            domain.TradeTypeBinary,
		Side:            opp.Side,
		InstrumentID:    opp.InstrumentID,
		Amount:          opp.RequiredCapital,
		EntryPriceCents: placed.EntryPriceCents,
		Contracts:       placed.Contracts,
		Fees:            placed.Fees,
		Status:          domain.TradeStatusOpen,
		Category:        opp.Category,
		Confidence:      opp.Confidence,
		Edge:            opp.Edge,
		ExecutedAt:      time.Now().UTC(),
	}

	// Persist first, allocate second: if we crash in between, startup
	// Restore rebuilds the allocation from the persisted trade. Trade
	// records are the source of truth, ledger state is secondary.
	e.ledger.RecordTrade(ctx, trade)

	if err := e.ledger.AllocateFunds(trade.ID, trade.Venue, trade.Amount); err != nil {
		slog.Error("trading: allocation failed after placement",
			"trade", trade.ID, "err", err)
	}

	result.Placed++
	result.Deployed += trade.Amount
	slog.Info("trading: trade opened",
		"trade", trade.ID,
		"instrument", opp.InstrumentID,
		"venue", opp.Venue,
		"amount", fmt.Sprintf("%.2f", trade.Amount),
		"confidence", fmt.Sprintf("%.1f", opp.Confidence))
}

// notify hands the current portfolio snapshot to the notifier.
func (e *Engine) notify(ctx context.Context) {
	if e.notifier == nil {
		return
	}

	report := domain.Report{
		Balances:   make(map[domain.Venue]domain.PlatformBalance),
		Targets:    make(map[domain.Venue]float64),
		Deltas:     make(map[domain.Venue]float64),
		DailySpent: e.ledger.DailySpent(),
		DailyPnL:   e.ledger.DailyPnL(),
	}
	for _, v := range domain.Venues() {
		report.Balances[v] = e.ledger.Balance(v)
		report.Targets[v] = e.ledger.TargetAllocation(v)
		report.Deltas[v] = e.ledger.AllocationDelta(v)
		report.OpenTrades = append(report.OpenTrades, e.ledger.OpenTrades(ctx, v, 50)...)
	}

	if err := e.notifier.Notify(ctx, report); err != nil {
		slog.Warn("trading: notifier error", "err", err)
	}
}
