package tuner_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areyes/bankroll/internal/adapters/storage"
	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/tuner"
)

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedClosed inserts n settled trades for one venue/category with the given
// win count and total pnl spread evenly.
func seedClosed(t *testing.T, s *storage.SQLiteStore, venue domain.Venue, category string, n, wins int, totalPnL float64) {
	t.Helper()
	ctx := context.Background()
	perTrade := totalPnL / float64(n)
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		status := domain.TradeStatusLost
		if i < wins {
			status = domain.TradeStatusWon
		}
		p := perTrade
		settled := now.Add(-time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveTrade(ctx, domain.Trade{
			ID:           fmt.Sprintf("%s-%s-%d", venue, category, i),
			Venue:        venue,
			Type:         domain.TradeTypeBinary,
			Side:         "yes",
			InstrumentID: fmt.Sprintf("KX-%d", i),
			Amount:       5,
			Status:       status,
			Profit:       &p,
			Category:     category,
			ExecutedAt:   settled.Add(-time.Hour),
			SettledAt:    &settled,
		}))
	}
}

func TestRunOnce_LosingCategoryTightens(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// 5 wins / 7 losses, pnl −30 → losing pattern
	seedClosed(t, s, domain.VenueKalshi, "sports", 12, 5, -30)

	tn := tuner.New(s, tuner.Config{MinSample: 10, Window: 100}, nil)
	require.NoError(t, tn.RunOnce(ctx, domain.VenueKalshi))

	p, err := s.GetStrategyParams(ctx, domain.VenueKalshi, "sports")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 67.0, p.MinConfidence, 0.001)
	assert.InDelta(t, 3.5, p.MinEdge, 0.001)
	assert.InDelta(t, 9.0, p.MaxTradeUSD, 0.001)

	events, err := s.GetLearningEvents(ctx, domain.VenueKalshi, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.PatternLosing, events[0].Pattern)
	assert.Equal(t, 12, events[0].SampleSize)
	assert.InDelta(t, 41.67, events[0].WinRate, 0.01)
}

func TestRunOnce_WinningCategoryLoosens(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// 8 wins / 4 losses, pnl +24 → winning pattern
	seedClosed(t, s, domain.VenueKalshi, "crypto", 12, 8, 24)

	tn := tuner.New(s, tuner.Config{MinSample: 10, Window: 100}, nil)
	require.NoError(t, tn.RunOnce(ctx, domain.VenueKalshi))

	p, err := s.GetStrategyParams(ctx, domain.VenueKalshi, "crypto")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 64.0, p.MinConfidence, 0.001)
	assert.InDelta(t, 2.75, p.MinEdge, 0.001)
	assert.InDelta(t, 11.0, p.MaxTradeUSD, 0.001)

	events, err := s.GetLearningEvents(ctx, domain.VenueKalshi, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.PatternWinning, events[0].Pattern)
}

func TestRunOnce_MixedSignalLeavesParamsAlone(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// 6 wins / 6 losses with positive pnl: neither pattern fires
	seedClosed(t, s, domain.VenueKalshi, "politics", 12, 6, 10)

	tn := tuner.New(s, tuner.Config{MinSample: 10, Window: 100}, nil)
	require.NoError(t, tn.RunOnce(ctx, domain.VenueKalshi))

	p, err := s.GetStrategyParams(ctx, domain.VenueKalshi, "politics")
	require.NoError(t, err)
	assert.Nil(t, p)

	events, err := s.GetLearningEvents(ctx, domain.VenueKalshi, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRunOnce_SmallSampleIgnored(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedClosed(t, s, domain.VenueKalshi, "sports", 9, 1, -20)

	tn := tuner.New(s, tuner.Config{MinSample: 10, Window: 100}, nil)
	require.NoError(t, tn.RunOnce(ctx, domain.VenueKalshi))

	p, err := s.GetStrategyParams(ctx, domain.VenueKalshi, "sports")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRunOnce_RepeatedTighteningClampsAtBounds(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedClosed(t, s, domain.VenueKalshi, "sports", 12, 2, -50)
	tn := tuner.New(s, tuner.Config{MinSample: 10, Window: 100}, nil)

	// every cycle sees the same losing sample and tightens one more step
	for i := 0; i < 30; i++ {
		require.NoError(t, tn.RunOnce(ctx, domain.VenueKalshi))
	}

	p, err := s.GetStrategyParams(ctx, domain.VenueKalshi, "sports")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, float64(domain.MinConfidenceCeil), p.MinConfidence, 0.001)
	assert.InDelta(t, float64(domain.MinEdgeCeil), p.MinEdge, 0.001)
	assert.InDelta(t, float64(domain.MaxTradeUSDFloor), p.MaxTradeUSD, 0.001)
	assert.True(t, p.InBounds())
}

func TestRunOnce_CategoriesTunedIndependently(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedClosed(t, s, domain.VenueKalshi, "sports", 12, 3, -30)
	seedClosed(t, s, domain.VenueKalshi, "crypto", 12, 9, 30)

	tn := tuner.New(s, tuner.Config{MinSample: 10, Window: 100}, nil)
	require.NoError(t, tn.RunOnce(ctx, domain.VenueKalshi))

	sports, err := s.GetStrategyParams(ctx, domain.VenueKalshi, "sports")
	require.NoError(t, err)
	require.NotNil(t, sports)
	assert.InDelta(t, 67.0, sports.MinConfidence, 0.001)

	crypto, err := s.GetStrategyParams(ctx, domain.VenueKalshi, "crypto")
	require.NoError(t, err)
	require.NotNil(t, crypto)
	assert.InDelta(t, 64.0, crypto.MinConfidence, 0.001)
}

func TestRunOnce_OtherVenueUntouched(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedClosed(t, s, domain.VenueKalshi, "sports", 12, 3, -30)

	tn := tuner.New(s, tuner.Config{MinSample: 10, Window: 100}, nil)
	require.NoError(t, tn.RunOnce(ctx, domain.VenueKalshi))

	p, err := s.GetStrategyParams(ctx, domain.VenueCoinbase, "sports")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRunOnce_CustomDefaultsRespected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedClosed(t, s, domain.VenueKalshi, "sports", 12, 3, -30)

	defaults := func(venue domain.Venue, category string) domain.StrategyParams {
		p := domain.DefaultStrategyParams(venue, category)
		p.MinConfidence = 70
		return p
	}
	tn := tuner.New(s, tuner.Config{MinSample: 10, Window: 100}, defaults)
	require.NoError(t, tn.RunOnce(ctx, domain.VenueKalshi))

	p, err := s.GetStrategyParams(ctx, domain.VenueKalshi, "sports")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 72.0, p.MinConfidence, 0.001)
}
