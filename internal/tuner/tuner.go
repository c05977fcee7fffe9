// Package tuner adjusts per-category risk thresholds from rolling
// closed-trade statistics. Adjustments are deliberately slow: one fixed
// step per cycle, clamped to hard bounds, no matter how extreme the sample.
package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/ports"
)

// Single-step parameter deltas. Tightening is harsher than loosening.
const (
	tightenConfidence = 2
	tightenEdge       = 0.5
	tightenTradeUSD   = -1

	loosenConfidence = -1
	loosenEdge       = -0.25
	loosenTradeUSD   = 1

	losingWinRate  = 45 // below → tighten
	winningWinRate = 55 // above (with positive pnl) → loosen
)

// Config controls the tuning loop.
type Config struct {
	Interval  time.Duration // cadence (default 5m)
	MinSample int           // closed trades required per category
	Window    int           // most recent closed trades considered
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		MinSample: 10,
		Window:    100,
	}
}

// Defaults supplies the starting StrategyParams for a category seen for the
// first time.
type Defaults func(venue domain.Venue, category string) domain.StrategyParams

// Tuner reads recent closed trades per category and nudges StrategyParams.
type Tuner struct {
	store    ports.Store
	cfg      Config
	defaults Defaults
	now      func() time.Time
}

// New creates a tuner. defaults may be nil, in which case the domain
// defaults are used.
func New(store ports.Store, cfg Config, defaults Defaults) *Tuner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MinSample <= 0 {
		cfg.MinSample = DefaultConfig().MinSample
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if defaults == nil {
		defaults = domain.DefaultStrategyParams
	}
	return &Tuner{store: store, cfg: cfg, defaults: defaults, now: time.Now}
}

// SetClock replaces the time source, for tests.
func (t *Tuner) SetClock(now func() time.Time) { t.now = now }

// Run executes the tuning loop until the context is cancelled. One
// category's failure never halts the others.
func (t *Tuner) Run(ctx context.Context) error {
	slog.Info("tuner: starting", "interval", t.cfg.Interval, "window", t.cfg.Window)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("tuner: stopped")
			return nil
		case <-ticker.C:
			for _, venue := range domain.Venues() {
				if err := t.RunOnce(ctx, venue); err != nil {
					slog.Warn("tuner: cycle failed", "venue", venue, "err", err)
				}
			}
		}
	}
}

// RunOnce tunes every category with enough signal on one venue.
func (t *Tuner) RunOnce(ctx context.Context, venue domain.Venue) error {
	trades, err := t.store.GetRecentClosedTrades(ctx, venue, t.cfg.Window)
	if err != nil {
		return fmt.Errorf("tuner.RunOnce: closed trades: %w", err)
	}

	byCategory := make(map[string][]domain.Trade)
	for _, tr := range trades {
		byCategory[tr.Category] = append(byCategory[tr.Category], tr)
	}

	for category, sample := range byCategory {
		if err := t.tuneCategory(ctx, venue, category, sample); err != nil {
			slog.Warn("tuner: category failed",
				"venue", venue, "category", category, "err", err)
		}
	}
	return nil
}

// tuneCategory applies the three-way decision to one category's sample.
func (t *Tuner) tuneCategory(ctx context.Context, venue domain.Venue, category string, sample []domain.Trade) error {
	if len(sample) < t.cfg.MinSample {
		return nil // insufficient signal
	}

	wins, losses, pnl := summarize(sample)
	if wins+losses == 0 {
		return nil
	}
	winRate := float64(wins) / float64(wins+losses) * 100

	var pattern string
	var dConf, dEdge, dTrade float64
	switch {
	case pnl < 0 || winRate < losingWinRate:
		pattern = domain.PatternLosing
		dConf, dEdge, dTrade = tightenConfidence, tightenEdge, tightenTradeUSD
	case pnl > 0 && winRate > winningWinRate:
		pattern = domain.PatternWinning
		dConf, dEdge, dTrade = loosenConfidence, loosenEdge, loosenTradeUSD
	default:
		return nil // mixed signal, leave the thresholds alone
	}

	params, err := t.store.GetStrategyParams(ctx, venue, category)
	if err != nil {
		return fmt.Errorf("get params: %w", err)
	}
	if params == nil {
		p := t.defaults(venue, category)
		params = &p
	}

	params.MinConfidence += dConf
	params.MinEdge += dEdge
	params.MaxTradeUSD += dTrade
	params.Clamp()
	params.UpdatedAt = t.now().UTC()

	if err := t.store.UpsertStrategyParams(ctx, *params); err != nil {
		return fmt.Errorf("upsert params: %w", err)
	}

	event := domain.LearningEvent{
		ID:         uuid.New().String(),
		Venue:      venue,
		Category:   category,
		Pattern:    pattern,
		WinRate:    winRate,
		PnL:        pnl,
		SampleSize: len(sample),
		CreatedAt:  t.now().UTC(),
	}
	if err := t.store.SaveLearningEvent(ctx, event); err != nil {
		slog.Warn("tuner: learning event persist failed",
			"category", category, "err", err)
	}

	slog.Info("tuner: parameters adjusted",
		"venue", venue,
		"category", category,
		"pattern", pattern,
		"win_rate", fmt.Sprintf("%.1f", winRate),
		"pnl", fmt.Sprintf("%.2f", pnl),
		"min_confidence", params.MinConfidence,
		"min_edge", params.MinEdge,
		"max_trade_usd", params.MaxTradeUSD)
	return nil
}

func summarize(sample []domain.Trade) (wins, losses int, pnl float64) {
	for _, tr := range sample {
		switch tr.Status {
		case domain.TradeStatusWon:
			wins++
		case domain.TradeStatusLost:
			losses++
		default:
			continue
		}
		if tr.Profit != nil {
			pnl += *tr.Profit
		}
	}
	return
}
