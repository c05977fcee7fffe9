package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/ports"
)

// LadderConfig holds the score thresholds of the venue decision ladder.
// The numbers have no documented derivation, so they live in configuration
// rather than as hard-coded literals.
type LadderConfig struct {
	UnderAllocatedMinScore float64 // delta < 0
	BalancedMinScore       float64 // |delta| inside the balanced band
	OverAllocatedMinScore  float64 // delta > 0
	BalancedBand           float64 // dollar band treated as balanced
	DefaultMinScore        float64 // fallback rung
	MinAvailable           float64 // hard floor before the fallback rung
}

// DefaultLadderConfig returns the production thresholds.
func DefaultLadderConfig() LadderConfig {
	return LadderConfig{
		UnderAllocatedMinScore: 60,
		BalancedMinScore:       70,
		OverAllocatedMinScore:  85,
		BalancedBand:           20,
		DefaultMinScore:        75,
		MinAvailable:           5,
	}
}

// Config is the ledger configuration. The trading limits act as defaults
// for categories that have no tuned StrategyParams yet.
type Config struct {
	Allocation         domain.AllocationConfig
	Ladder             LadderConfig
	MaxTradeUSD        float64
	MaxOpenPositions   int
	DailySpendingLimit float64
	DailyProfitTarget  float64
	MinConfidence      float64
	MinEdge            float64
}

type venueStats struct {
	wins   int
	losses int
	profit float64
}

// Ledger treats the balances of both venues as one logical capital pool.
// It gates trade admission, tracks per-trade allocations so settlement can
// release exactly what was reserved, and keeps daily spend/PnL counters.
//
// Every multi-step mutation runs under one mutex and validates against the
// live balance at commit time, so overlapping scheduler ticks cannot
// double-spend the same capital.
type Ledger struct {
	mu    sync.Mutex
	cfg   Config
	store ports.Store // may be nil (cache-only mode)
	now   func() time.Time

	balances    map[domain.Venue]*domain.PlatformBalance
	allocations map[string]map[domain.Venue]float64 // trade id → per-venue split
	stats       map[domain.Venue]*venueStats
	openCache   map[string]domain.Trade // fallback when the store is down

	day      time.Time // UTC date the daily counters belong to
	daySpent float64
	dayPnL   float64
}

// New creates a ledger with all dependencies injected. There is no global
// instance; workers receive the same handle at startup.
func New(cfg Config, store ports.Store) *Ledger {
	if !cfg.Allocation.SumsTo100() {
		slog.Warn("ledger: allocation shares do not sum to 100",
			"kalshi", cfg.Allocation.KalshiShare,
			"coinbase", cfg.Allocation.CoinbaseShare,
			"reserve", cfg.Allocation.ReserveShare)
	}

	l := &Ledger{
		cfg:         cfg,
		store:       store,
		now:         time.Now,
		balances:    make(map[domain.Venue]*domain.PlatformBalance),
		allocations: make(map[string]map[domain.Venue]float64),
		stats:       make(map[domain.Venue]*venueStats),
		openCache:   make(map[string]domain.Trade),
	}
	for _, v := range domain.Venues() {
		l.balances[v] = &domain.PlatformBalance{}
		l.stats[v] = &venueStats{}
	}
	l.day = l.today()
	return l
}

// SetClock replaces the time source, for tests.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// UpdateBalance replaces the per-venue snapshot. Negative inputs are
// clamped to zero with a warning; Total is recomputed.
func (l *Ledger) UpdateBalance(venue domain.Venue, available, inPositions, pending float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if available < 0 || inPositions < 0 || pending < 0 {
		slog.Warn("ledger: negative balance input clamped",
			"venue", venue, "available", available,
			"in_positions", inPositions, "pending", pending)
	}
	b := l.balances[venue]
	b.Available = max(available, 0)
	b.InPositions = max(inPositions, 0)
	b.Pending = max(pending, 0)
	b.Recompute()
	b.LastUpdated = l.now()
}

// Balance returns a copy of the venue snapshot.
func (l *Ledger) Balance(venue domain.Venue) domain.PlatformBalance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.balances[venue]
}

// TotalFunds is the combined Total across both venues.
func (l *Ledger) TotalFunds() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalFundsLocked()
}

func (l *Ledger) totalFundsLocked() float64 {
	var total float64
	for _, b := range l.balances {
		total += b.Total
	}
	return total
}

// TargetAllocation returns the dollar amount the venue should hold:
// the reserve share is set aside, and the rest is split pro-rata between
// the two venue shares.
func (l *Ledger) TargetAllocation(venue domain.Venue) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.targetLocked(venue)
}

func (l *Ledger) targetLocked(venue domain.Venue) float64 {
	a := l.cfg.Allocation
	shareSum := a.KalshiShare + a.CoinbaseShare
	if shareSum <= 0 {
		return 0
	}
	investable := l.totalFundsLocked() * (1 - a.ReserveShare/100)
	return investable * a.Share(venue) / shareSum
}

// AllocationDelta is current total minus target. Positive = over-allocated.
func (l *Ledger) AllocationDelta(venue domain.Venue) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deltaLocked(venue)
}

func (l *Ledger) deltaLocked(venue domain.Venue) float64 {
	return l.balances[venue].Total - l.targetLocked(venue)
}

// MaxTradeAmount returns how much the venue may put into a single trade.
// An under-allocated venue may use everything it has available; an
// over-allocated one is held back by its surplus.
func (l *Ledger) MaxTradeAmount(venue domain.Venue, perTradeCap float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxTradeLocked(venue, perTradeCap)
}

func (l *Ledger) maxTradeLocked(venue domain.Venue, perTradeCap float64) float64 {
	b := l.balances[venue]
	delta := l.deltaLocked(venue)

	usable := b.Available
	if delta >= 0 {
		usable = max(b.Available-delta, 0)
	}
	return min(usable, min(perTradeCap, b.Available))
}

// ShouldTradeOnVenue applies the decision ladder: prefer under-allocated
// venues, raise the score bar as a venue becomes over-allocated. The rungs
// are evaluated strictly in order.
func (l *Ledger) ShouldTradeOnVenue(venue domain.Venue, score float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	delta := l.deltaLocked(venue)
	lad := l.cfg.Ladder

	switch {
	case delta < 0 && score >= lad.UnderAllocatedMinScore:
		return true
	case delta > -lad.BalancedBand && delta < lad.BalancedBand && score >= lad.BalancedMinScore:
		return true
	case delta > 0 && score >= lad.OverAllocatedMinScore:
		return true
	case l.balances[venue].Available < lad.MinAvailable:
		return false
	default:
		return score >= lad.DefaultMinScore
	}
}

// CanTrade runs the admission chain for an opportunity. Checks run in a
// fixed order and the first failure short-circuits with its reason; a
// denial has no side effects.
func (l *Ledger) CanTrade(ctx context.Context, opp domain.Opportunity) domain.Decision {
	params := l.paramsFor(ctx, opp.Venue, opp.Category)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()

	// 1. Funds sufficiency across the whole pool.
	var availableTotal float64
	for _, b := range l.balances {
		availableTotal += b.Available
	}
	if opp.RequiredCapital > availableTotal {
		return domain.Deny(domain.DenyInsufficientFunds)
	}

	// 2. Per-trade size cap.
	if opp.RequiredCapital > params.MaxTradeUSD {
		return domain.Deny(domain.DenyTradeSizeExceeded)
	}

	// 3. Open-position count on the target venue.
	open := 0
	for _, t := range l.openCache {
		if t.Venue == opp.Venue && !t.Status.Terminal() {
			open++
		}
	}
	if open >= params.MaxOpenPositions {
		return domain.Deny(domain.DenyPositionLimit)
	}

	// 4. Daily loss limit (spend counts against the same budget).
	if l.dayPnL <= -params.DailySpendingLimit || l.daySpent >= params.DailySpendingLimit {
		return domain.Deny(domain.DenyDailyLossLimit)
	}

	// 5. Daily profit target already met.
	if l.cfg.DailyProfitTarget > 0 && l.dayPnL >= l.cfg.DailyProfitTarget {
		return domain.Deny(domain.DenyDailyTargetReached)
	}

	// 6. Minimum confidence.
	if opp.Confidence < params.MinConfidence {
		return domain.Deny(domain.DenyConfidenceBelowMin)
	}

	// 7. Venue allocation cap.
	if l.maxTradeLocked(opp.Venue, params.MaxTradeUSD) < opp.RequiredCapital {
		return domain.Deny(domain.DenyAllocationLimit)
	}

	return domain.Allow()
}

// paramsFor fetches tuned per-category parameters, falling back to the
// configured defaults when none exist or the store is unreachable.
func (l *Ledger) paramsFor(ctx context.Context, venue domain.Venue, category string) domain.StrategyParams {
	defaults := domain.StrategyParams{
		Venue:              venue,
		Category:           category,
		MinConfidence:      l.cfg.MinConfidence,
		MinEdge:            l.cfg.MinEdge,
		MaxTradeUSD:        l.cfg.MaxTradeUSD,
		DailySpendingLimit: l.cfg.DailySpendingLimit,
		MaxOpenPositions:   l.cfg.MaxOpenPositions,
	}

	if l.store == nil {
		return defaults
	}
	p, err := l.store.GetStrategyParams(ctx, venue, category)
	if err != nil {
		slog.Warn("ledger: strategy params lookup failed, using defaults",
			"venue", venue, "category", category, "err", err)
		return defaults
	}
	if p == nil {
		return defaults
	}
	return *p
}

func (l *Ledger) today() time.Time {
	return l.now().UTC().Truncate(24 * time.Hour)
}

// rollDayLocked resets the daily counters at UTC midnight.
func (l *Ledger) rollDayLocked() {
	if today := l.today(); !today.Equal(l.day) {
		l.day = today
		l.daySpent = 0
		l.dayPnL = 0
	}
}
