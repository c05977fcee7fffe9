package ledger

import (
	"fmt"
	"log/slog"

	"github.com/areyes/bankroll/internal/domain"
)

// AllocateFunds moves amount from Available to InPositions for the trade id,
// draining the primary venue first and spilling the remainder to the other
// venue when it falls short. Both venues stay non-negative; the per-venue
// split is recorded so ReleaseFunds can undo exactly what was reserved.
//
// The available balances are read inside the lock, immediately before the
// mutation — never from a snapshot taken before an await point.
func (l *Ledger) AllocateFunds(id string, primary domain.Venue, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger.AllocateFunds: non-positive amount %.2f", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()

	first := l.balances[primary]
	second := l.balances[primary.Other()]
	if first.Available+second.Available < amount {
		return fmt.Errorf("ledger.AllocateFunds: %s: need %.2f, pool has %.2f available",
			id, amount, first.Available+second.Available)
	}

	split := make(map[domain.Venue]float64, 2)

	take := min(amount, first.Available)
	if take > 0 {
		first.Available -= take
		first.InPositions += take
		first.Recompute()
		first.LastUpdated = l.now()
		split[primary] = take
	}

	if rest := amount - take; rest > 0 {
		second.Available -= rest
		second.InPositions += rest
		second.Recompute()
		second.LastUpdated = l.now()
		split[primary.Other()] = rest
		slog.Debug("ledger: allocation split across venues",
			"trade", id, "primary", take, "spill", rest)
	}

	l.allocations[id] = split
	l.daySpent += amount
	return nil
}

// ReleaseFunds returns principal plus realized profit to Available on
// settlement. The amounts reserved per venue are looked up by trade id, not
// recomputed; when the ledger has no record (trade restored from
// persistence after a restart) originalAmount against the trade's venue is
// used instead. Profit lands on the trade's venue and feeds its win/loss
// counters.
func (l *Ledger) ReleaseFunds(id string, venue domain.Venue, originalAmount, profit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()

	split, ok := l.allocations[id]
	if !ok {
		split = map[domain.Venue]float64{venue: originalAmount}
	}

	for v, alloc := range split {
		b := l.balances[v]
		b.InPositions = max(b.InPositions-alloc, 0)
		b.Available += alloc
		b.Recompute()
		b.LastUpdated = l.now()
	}

	b := l.balances[venue]
	b.Available += profit
	if b.Available < 0 {
		// A loss larger than the venue's running balance means the venue
		// snapshot was stale; clamp and wait for the next balance refresh.
		slog.Warn("ledger: release drove available negative, clamping",
			"trade", id, "venue", venue, "profit", profit)
		b.Available = 0
	}
	b.Recompute()
	b.LastUpdated = l.now()

	st := l.stats[venue]
	if profit > 0 {
		st.wins++
	} else {
		st.losses++
	}
	st.profit += profit
	l.dayPnL += profit

	delete(l.allocations, id)
}

// AllocatedAmount returns the total reserved for a trade id, and whether
// the ledger has a record of it.
func (l *Ledger) AllocatedAmount(id string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	split, ok := l.allocations[id]
	if !ok {
		return 0, false
	}
	var total float64
	for _, a := range split {
		total += a
	}
	return total, true
}

// DailySpent returns today's allocated capital.
func (l *Ledger) DailySpent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()
	return l.daySpent
}

// DailyPnL returns today's realized profit and loss.
func (l *Ledger) DailyPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()
	return l.dayPnL
}

// VenueRecord returns the win/loss tally and cumulative profit for a venue.
func (l *Ledger) VenueRecord(venue domain.Venue) (wins, losses int, profit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.stats[venue]
	return st.wins, st.losses, st.profit
}
