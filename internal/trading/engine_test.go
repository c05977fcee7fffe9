package trading_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areyes/bankroll/internal/adapters/storage"
	"github.com/areyes/bankroll/internal/adapters/venue"
	"github.com/areyes/bankroll/internal/calibration"
	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/guard"
	"github.com/areyes/bankroll/internal/ledger"
	"github.com/areyes/bankroll/internal/ports"
	"github.com/areyes/bankroll/internal/settlement"
	"github.com/areyes/bankroll/internal/trading"
)

type harness struct {
	store   *storage.SQLiteStore
	ledger  *ledger.Ledger
	clients map[domain.Venue]ports.VenueClient
	papers  map[domain.Venue]*venue.Paper
}

func newHarness(t *testing.T) *harness {
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
		DailyProfitTarget:  500,
		MinConfidence:      65,
		MinEdge:            3,
	}, store)

	papers := make(map[domain.Venue]*venue.Paper)
	clients := make(map[domain.Venue]ports.VenueClient)
	for _, v := range domain.Venues() {
		p := venue.NewPaper(v, 500)
		papers[v] = p
		clients[v] = p
	}

	return &harness{store: store, ledger: led, clients: clients, papers: papers}
}

func (h *harness) engine(source ports.OpportunitySource, notifier ports.Notifier) *trading.Engine {
	trackers := make(map[domain.Venue]*calibration.Tracker)
	for _, v := range domain.Venues() {
		trackers[v] = calibration.New(h.store, v)
	}
	return trading.New(h.clients, source, h.ledger, trackers, notifier, trading.Config{})
}

// captureNotifier records the last report it was handed.
type captureNotifier struct {
	reports []domain.Report
}

func (n *captureNotifier) Notify(_ context.Context, r domain.Report) error {
	n.reports = append(n.reports, r)
	return nil
}

func TestRunOnce_PlacesAdmittedOpportunities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	eng := h.engine(venue.NewFixtureSource(venue.DefaultFixtures()), nil)
	res, err := eng.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Considered)
	// fx-2 (score 66) misses the balanced rung's bar of 70
	assert.Equal(t, 2, res.Placed)
	assert.InDelta(t, 18.0, res.Deployed, 0.001)
	assert.Empty(t, res.Denied)

	// trades persisted and capital allocated on both venues
	kalshi, err := h.store.GetOpenTrades(ctx, domain.VenueKalshi, 10)
	require.NoError(t, err)
	require.Len(t, kalshi, 1)
	assert.Equal(t, "fx-1", kalshi[0].OpportunityID)
	assert.Equal(t, domain.TradeStatusOpen, kalshi[0].Status)
	assert.Greater(t, kalshi[0].Contracts, 0.0)

	coinbase, err := h.store.GetOpenTrades(ctx, domain.VenueCoinbase, 10)
	require.NoError(t, err)
	require.Len(t, coinbase, 1)

	b := h.ledger.Balance(domain.VenueKalshi)
	assert.InDelta(t, 492.0, b.Available, 0.001)
	assert.InDelta(t, 8.0, b.InPositions, 0.001)
	assert.InDelta(t, 18.0, h.ledger.DailySpent(), 0.001)
}

func TestRunOnce_DrainedSourceIsQuiet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	src := venue.NewFixtureSource(venue.DefaultFixtures())
	eng := h.engine(src, nil)

	_, err := eng.RunOnce(ctx)
	require.NoError(t, err)

	res, err := eng.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Considered)
	assert.Equal(t, 0, res.Placed)
}

func TestRunOnce_DenialsAreCounted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	opps := []domain.Opportunity{
		{ID: "low-conf", InstrumentID: "KX-1", Venue: domain.VenueKalshi,
			Category: "crypto", Side: "yes",
			RequiredCapital: 8, Confidence: 55, Edge: 5, Score: 80},
		{ID: "too-big", InstrumentID: "KX-2", Venue: domain.VenueKalshi,
			Category: "crypto", Side: "yes",
			RequiredCapital: 40, Confidence: 75, Edge: 5, Score: 80},
	}
	eng := h.engine(venue.NewFixtureSource(opps), nil)

	res, err := eng.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Placed)
	assert.Equal(t, 1, res.Denied[domain.DenyConfidenceBelowMin])
	assert.Equal(t, 1, res.Denied[domain.DenyTradeSizeExceeded])
}

func TestRunOnce_ReportsThroughNotifier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	n := &captureNotifier{}
	eng := h.engine(venue.NewFixtureSource(venue.DefaultFixtures()), n)

	_, err := eng.RunOnce(ctx)
	require.NoError(t, err)

	require.Len(t, n.reports, 1)
	report := n.reports[0]
	assert.Len(t, report.OpenTrades, 2)
	assert.InDelta(t, 18.0, report.DailySpent, 0.001)
	assert.InDelta(t, 500.0, report.Targets[domain.VenueKalshi], 0.001)
}

func TestRunOnce_CalibrationRescalesConfidence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// bucket 65 runs cold: 3 of 12 win → factor ≈ 0.37, well under the
	// admission threshold after rescale
	now := time.Now().UTC()
	for i := 0; i < 12; i++ {
		outcome := "loss"
		if i < 3 {
			outcome = "win"
		}
		require.NoError(t, h.store.SavePrediction(ctx, domain.Prediction{
			ID: string(rune('a' + i)), Venue: domain.VenueKalshi, Category: "crypto",
			InstrumentID: "KX-HIST", Confidence: 66, Resolved: true, Outcome: outcome,
			CreatedAt: now, ResolvedAt: &now,
		}))
	}

	opps := []domain.Opportunity{{
		ID: "hot-take", InstrumentID: "KX-1", Venue: domain.VenueKalshi,
		Category: "crypto", Side: "yes",
		RequiredCapital: 8, Confidence: 68, Edge: 5, Score: 80,
	}}
	eng := h.engine(venue.NewFixtureSource(opps), nil)

	res, err := eng.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Placed)
	assert.Equal(t, 1, res.Denied[domain.DenyConfidenceBelowMin])
}

func TestPipeline_TradeLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	opps := []domain.Opportunity{{
		ID: "opp-1", InstrumentID: "KX-LIFE", Venue: domain.VenueKalshi,
		Category: "crypto", Side: "yes",
		RequiredCapital: 8, Confidence: 72, Edge: 4.5, Score: 78,
	}}
	eng := h.engine(venue.NewFixtureSource(opps), nil)

	res, err := eng.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Placed)

	// market resolves in our favor
	h.papers[domain.VenueKalshi].Resolve("KX-LIFE", "yes", 0)

	worker := settlement.New(domain.VenueKalshi, h.clients[domain.VenueKalshi],
		h.store, h.ledger, guard.New(time.Minute),
		settlement.Config{LookupsPerSecond: 1000})
	sweep, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sweep.Closed)
	assert.Equal(t, 1, sweep.Wins)

	// no book was seeded, so the paper venue filled at 50¢: 16 contracts,
	// payout 16, cost 8, fee 0.07 × 16 × 0.25 = 0.28
	assert.InDelta(t, 7.72, sweep.RealizedPnL, 0.001)

	closed, err := h.store.GetRecentClosedTrades(ctx, domain.VenueKalshi, 10)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.TradeStatusWon, closed[0].Status)

	// capital is liquid again, principal plus profit
	b := h.ledger.Balance(domain.VenueKalshi)
	assert.InDelta(t, 0.0, b.InPositions, 0.001)
	assert.InDelta(t, 507.72, b.Available, 0.001)
	assert.InDelta(t, 7.72, h.ledger.DailyPnL(), 0.001)
}
