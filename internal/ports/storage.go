package ports

import (
	"context"

	"github.com/areyes/bankroll/internal/domain"
)

// Store persists trades, tuned parameters, predictions and learning events.
// The core tolerates eventual consistency with this layer: a failed write
// degrades the ledger to cache-only operation, it never blocks a mutation.
type Store interface {
	// Trades
	SaveTrade(ctx context.Context, t domain.Trade) error
	UpdateTrade(ctx context.Context, t domain.Trade) error

	// CloseTrade settles an open trade in a single atomic update and reports
	// whether a row was actually closed. Closing an already-settled id is a
	// no-op returning false — this is the exactly-once boundary, and callers
	// must not release capital for a closure that did not happen here.
	CloseTrade(ctx context.Context, id string, c domain.TradeClose) (bool, error)

	GetOpenTrades(ctx context.Context, venue domain.Venue, limit int) ([]domain.Trade, error)
	GetRecentClosedTrades(ctx context.Context, venue domain.Venue, limit int) ([]domain.Trade, error)

	// Strategy parameters
	GetStrategyParams(ctx context.Context, venue domain.Venue, category string) (*domain.StrategyParams, error)
	UpsertStrategyParams(ctx context.Context, p domain.StrategyParams) error

	// Learning events
	SaveLearningEvent(ctx context.Context, e domain.LearningEvent) error
	GetLearningEvents(ctx context.Context, venue domain.Venue, limit int) ([]domain.LearningEvent, error)

	// Predictions (category may be empty for all categories)
	SavePrediction(ctx context.Context, p domain.Prediction) error
	GetPredictions(ctx context.Context, category string, venue domain.Venue, limit int) ([]domain.Prediction, error)
	MarkPredictionsResolved(ctx context.Context, venue domain.Venue, instrumentID, outcome string, pnl float64) error

	// Rebalance requests
	SaveRebalance(ctx context.Context, r domain.RebalanceRequest) error
	GetRebalances(ctx context.Context, limit int) ([]domain.RebalanceRequest, error)

	// Close releases the underlying database cleanly.
	Close() error
}
