package ledger

import (
	"context"
	"log/slog"
	"sort"

	"github.com/areyes/bankroll/internal/domain"
)

// RecordTrade persists a newly placed trade. A store failure never blocks
// the mutation: the trade stays in the in-memory cache and the failure is
// logged for out-of-band reconciliation.
func (l *Ledger) RecordTrade(ctx context.Context, t domain.Trade) {
	l.mu.Lock()
	l.openCache[t.ID] = t
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	if err := l.store.SaveTrade(ctx, t); err != nil {
		slog.Warn("ledger: trade persist failed, cache-only",
			"trade", t.ID, "venue", t.Venue, "err", err)
	}
}

// UpdateTrade applies a trade mutation to cache and store. Trades that
// reached a terminal state drop out of the open cache.
func (l *Ledger) UpdateTrade(ctx context.Context, t domain.Trade) {
	l.mu.Lock()
	if t.Status.Terminal() {
		delete(l.openCache, t.ID)
	} else {
		l.openCache[t.ID] = t
	}
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	if err := l.store.UpdateTrade(ctx, t); err != nil {
		slog.Warn("ledger: trade update persist failed, cache-only",
			"trade", t.ID, "err", err)
	}
}

// MarkSettled drops a settled trade from the open cache. The authoritative
// closure lives in the store's CloseTrade; this only keeps the fallback
// view consistent.
func (l *Ledger) MarkSettled(id string) {
	l.mu.Lock()
	delete(l.openCache, id)
	l.mu.Unlock()
}

// OpenTrades returns the open trades for a venue, preferring the store and
// degrading to the in-memory cache when it is unreachable.
func (l *Ledger) OpenTrades(ctx context.Context, venue domain.Venue, limit int) []domain.Trade {
	if l.store != nil {
		trades, err := l.store.GetOpenTrades(ctx, venue, limit)
		if err == nil {
			return trades
		}
		slog.Warn("ledger: open trades query failed, serving cache",
			"venue", venue, "err", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var trades []domain.Trade
	for _, t := range l.openCache {
		if t.Venue == venue && !t.Status.Terminal() {
			trades = append(trades, t)
		}
	}
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].ExecutedAt.Before(trades[j].ExecutedAt)
	})
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades
}

// Restore rebuilds allocation records and the open-trade cache from
// persisted trades at startup. Persisted Trade records outrank whatever the
// in-memory ledger held before a crash: an open trade without an allocation
// gets one, so settlement can release it later.
func (l *Ledger) Restore(openTrades []domain.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range openTrades {
		if t.Status.Terminal() {
			continue
		}
		l.openCache[t.ID] = t
		if _, ok := l.allocations[t.ID]; !ok {
			l.allocations[t.ID] = map[domain.Venue]float64{t.Venue: t.Amount}
		}
	}
	slog.Info("ledger: restored open trades", "count", len(openTrades))
}
