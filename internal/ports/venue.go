package ports

import (
	"context"

	"github.com/areyes/bankroll/internal/domain"
)

// VenueClient is the surface the core consumes from a trading platform.
// Concrete HTTP/auth clients live outside this module; the paper adapter
// implements it for dry-run and tests.
type VenueClient interface {
	// GetBalance returns available / in-positions / pending capital.
	GetBalance(ctx context.Context) (available, inPositions, pending float64, err error)

	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error)
	GetOrderBook(ctx context.Context, instrumentID string) (domain.OrderBook, error)

	// GetSettlements returns recent settlement results for an instrument,
	// newest first. Empty result means the market has not resolved yet.
	GetSettlements(ctx context.Context, instrumentID string, limit int) ([]domain.Settlement, error)
}
