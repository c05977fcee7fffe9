package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areyes/bankroll/internal/adapters/storage"
	"github.com/areyes/bankroll/internal/adapters/venue"
	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/guard"
	"github.com/areyes/bankroll/internal/ledger"
	"github.com/areyes/bankroll/internal/ports"
	"github.com/areyes/bankroll/internal/settlement"
)

type fixture struct {
	store  *storage.SQLiteStore
	ledger *ledger.Ledger
	client *venue.Paper
	worker *settlement.Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	led := ledger.New(ledger.Config{
		Allocation:         domain.AllocationConfig{KalshiShare: 50, CoinbaseShare: 50, ReserveShare: 0},
		Ladder:             ledger.DefaultLadderConfig(),
		MaxTradeUSD:        25,
		MaxOpenPositions:   10,
		DailySpendingLimit: 250,
		DailyProfitTarget:  100,
		MinConfidence:      65,
		MinEdge:            3,
	}, store)
	led.UpdateBalance(domain.VenueKalshi, 100, 0, 0)
	led.UpdateBalance(domain.VenueCoinbase, 100, 0, 0)

	client := venue.NewPaper(domain.VenueKalshi, 100)
	worker := settlement.New(domain.VenueKalshi, client, store, led,
		guard.New(time.Minute), settlement.Config{LookupsPerSecond: 1000})

	return &fixture{store: store, ledger: led, client: client, worker: worker}
}

// openTrade persists a trade through the ledger and allocates its capital,
// the same path the trading engine takes.
func (f *fixture) openTrade(t *testing.T, tr domain.Trade) {
	t.Helper()
	if tr.Type == "" {
		tr.Type = domain.TradeTypeBinary
	}
	if tr.Status == "" {
		tr.Status = domain.TradeStatusOpen
	}
	if tr.ExecutedAt.IsZero() {
		tr.ExecutedAt = time.Now().UTC()
	}
	f.ledger.RecordTrade(context.Background(), tr)
	if tr.Amount > 0 {
		require.NoError(t, f.ledger.AllocateFunds(tr.ID, tr.Venue, tr.Amount))
	}
}

func TestRunOnce_ClosesWinningTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTrade(t, domain.Trade{
		ID:              "t1",
		Venue:           domain.VenueKalshi,
		Side:            "yes",
		InstrumentID:    "KXTEST-1",
		Amount:          6,
		EntryPriceCents: 60,
		Contracts:       10,
		Fees:            0.5,
	})
	f.client.Resolve("KXTEST-1", "yes", 0)

	res, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Closed)
	assert.Equal(t, 1, res.Wins)
	// payout 10 × $1, cost 10 × $0.60, fees 0.50
	assert.InDelta(t, 3.50, res.RealizedPnL, 0.001)

	closed, err := f.store.GetRecentClosedTrades(ctx, domain.VenueKalshi, 10)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.TradeStatusWon, closed[0].Status)
	require.NotNil(t, closed[0].Profit)
	assert.InDelta(t, 3.50, *closed[0].Profit, 0.001)
	assert.InDelta(t, 100.0, closed[0].ExitPriceCents, 0.001)
	require.NotNil(t, closed[0].SettledAt)

	// principal + profit back in the ledger
	b := f.ledger.Balance(domain.VenueKalshi)
	assert.InDelta(t, 103.5, b.Available, 0.001)
	assert.InDelta(t, 0.0, b.InPositions, 0.001)
}

func TestRunOnce_ClosesLosingTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTrade(t, domain.Trade{
		ID:              "t1",
		Venue:           domain.VenueKalshi,
		Side:            "yes",
		InstrumentID:    "KXTEST-1",
		Amount:          6,
		EntryPriceCents: 60,
		Contracts:       10,
		Fees:            0.5,
	})
	f.client.Resolve("KXTEST-1", "no", 0)

	res, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Losses)
	// no payout: lose cost plus fees
	assert.InDelta(t, -6.50, res.RealizedPnL, 0.001)

	closed, err := f.store.GetRecentClosedTrades(ctx, domain.VenueKalshi, 10)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.TradeStatusLost, closed[0].Status)
	assert.InDelta(t, 0.0, closed[0].ExitPriceCents, 0.001)
}

func TestRunOnce_SecondSweepIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTrade(t, domain.Trade{
		ID: "t1", Venue: domain.VenueKalshi, Side: "yes",
		InstrumentID: "KXTEST-1", Amount: 6, EntryPriceCents: 60, Contracts: 10,
	})
	f.client.Resolve("KXTEST-1", "yes", 0)

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	res, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)
	assert.Equal(t, 0, res.Closed)

	// funds were released exactly once
	b := f.ledger.Balance(domain.VenueKalshi)
	assert.InDelta(t, 104.0, b.Available, 0.001)
}

func TestRunOnce_UnresolvedMarketStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTrade(t, domain.Trade{
		ID: "t1", Venue: domain.VenueKalshi, Side: "yes",
		InstrumentID: "KXTEST-1", Amount: 6, EntryPriceCents: 60, Contracts: 10,
	})
	// no Resolve call

	res, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)
	assert.Equal(t, 0, res.Closed)

	open, err := f.store.GetOpenTrades(ctx, domain.VenueKalshi, 10)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestRunOnce_SkipsNonBinaryAndUnderivable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTrade(t, domain.Trade{
		ID: "spot", Venue: domain.VenueKalshi, Side: "yes",
		InstrumentID: "BTC-USD", Type: "spot", Amount: 6,
	})
	// binary but no contracts and no entry price to derive them from
	f.openTrade(t, domain.Trade{
		ID: "bad", Venue: domain.VenueKalshi, Side: "yes",
		InstrumentID: "KXTEST-2", Amount: 6,
	})

	res, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, res.Closed)
}

func TestRunOnce_DerivesContractsFromEntryPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// contracts omitted: derived as 5 / 0.50 = 10
	f.openTrade(t, domain.Trade{
		ID: "t1", Venue: domain.VenueKalshi, Side: "no",
		InstrumentID: "KXTEST-1", Amount: 5, EntryPriceCents: 50,
	})
	f.client.Resolve("KXTEST-1", "no", 0.25)

	res, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Closed)
	// payout 10, cost 5, settlement fee 0.25
	assert.InDelta(t, 4.75, res.RealizedPnL, 0.001)
}

func TestRunOnce_ResolvesPredictions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SavePrediction(ctx, domain.Prediction{
		ID: "p1", Venue: domain.VenueKalshi, Category: "crypto",
		InstrumentID: "KXTEST-1", Side: "yes", Confidence: 70,
		CreatedAt: time.Now().UTC(),
	}))

	f.openTrade(t, domain.Trade{
		ID: "t1", Venue: domain.VenueKalshi, Side: "yes",
		InstrumentID: "KXTEST-1", Amount: 6, EntryPriceCents: 60, Contracts: 10,
	})
	f.client.Resolve("KXTEST-1", "yes", 0)

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	preds, err := f.store.GetPredictions(ctx, "", domain.VenueKalshi, 10)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.True(t, preds[0].Resolved)
	assert.Equal(t, "win", preds[0].Outcome)
}

// staleStore serves a fixed open-trades list regardless of what has been
// closed, like a sweep working from a snapshot taken before another sweep
// settled the same trades.
type staleStore struct {
	ports.Store
	stale []domain.Trade
}

func (s *staleStore) GetOpenTrades(context.Context, domain.Venue, int) ([]domain.Trade, error) {
	return s.stale, nil
}

func TestRunOnce_StaleSweepDoesNotReleaseTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := domain.Trade{
		ID: "t1", Venue: domain.VenueKalshi, Side: "yes",
		InstrumentID: "KXTEST-1", Amount: 6, EntryPriceCents: 60, Contracts: 10,
	}
	f.openTrade(t, tr)
	f.client.Resolve("KXTEST-1", "yes", 0)

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	// a second worker still sees the trade as open, but the closure update
	// touches no row, so no capital moves
	stale := settlement.New(domain.VenueKalshi, f.client,
		&staleStore{Store: f.store, stale: []domain.Trade{tr}},
		f.ledger, guard.New(time.Minute), settlement.Config{LookupsPerSecond: 1000})

	res, err := stale.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Closed)
	assert.InDelta(t, 0.0, res.RealizedPnL, 0.001)

	b := f.ledger.Balance(domain.VenueKalshi)
	assert.InDelta(t, 104.0, b.Available, 0.001)
	assert.InDelta(t, 0.0, b.InPositions, 0.001)
}

// flakyClient fails settlement lookups for specific instruments while
// serving the rest from a wrapped paper venue.
type flakyClient struct {
	*venue.Paper
	failing map[string]bool
}

func (c *flakyClient) GetSettlements(ctx context.Context, instrumentID string, limit int) ([]domain.Settlement, error) {
	if c.failing[instrumentID] {
		return nil, errors.New("venue 502")
	}
	return c.Paper.GetSettlements(ctx, instrumentID, limit)
}

func TestRunOnce_LookupFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paper := f.client
	worker := settlement.New(domain.VenueKalshi,
		&flakyClient{Paper: paper, failing: map[string]bool{"KXBROKEN-1": true}},
		f.store, f.ledger, guard.New(time.Minute),
		settlement.Config{LookupsPerSecond: 1000})

	f.openTrade(t, domain.Trade{
		ID: "broken", Venue: domain.VenueKalshi, Side: "yes",
		InstrumentID: "KXBROKEN-1", Amount: 5, EntryPriceCents: 50, Contracts: 10,
		ExecutedAt: time.Now().UTC().Add(-time.Minute),
	})
	f.openTrade(t, domain.Trade{
		ID: "good", Venue: domain.VenueKalshi, Side: "yes",
		InstrumentID: "KXTEST-1", Amount: 6, EntryPriceCents: 60, Contracts: 10,
	})
	paper.Resolve("KXTEST-1", "yes", 0)

	res, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Closed)

	// the failed trade stays open for the next cycle
	open, err := f.store.GetOpenTrades(ctx, domain.VenueKalshi, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "broken", open[0].ID)
}
