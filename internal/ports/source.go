package ports

import (
	"context"

	"github.com/areyes/bankroll/internal/domain"
)

// OpportunitySource produces trade candidates. The analysis that generates
// them is out of scope; the trading engine only consumes the stream.
type OpportunitySource interface {
	Next(ctx context.Context) ([]domain.Opportunity, error)
}
