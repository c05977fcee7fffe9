package ports

import (
	"context"

	"github.com/areyes/bankroll/internal/domain"
)

// Notifier receives the per-cycle portfolio report.
type Notifier interface {
	Notify(ctx context.Context, report domain.Report) error
}
