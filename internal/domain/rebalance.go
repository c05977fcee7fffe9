package domain

import "time"

// RebalanceStatus tracks the lifecycle of a manual inter-venue transfer.
type RebalanceStatus string

const (
	RebalancePending   RebalanceStatus = "pending"
	RebalanceInitiated RebalanceStatus = "initiated"
	RebalanceCompleted RebalanceStatus = "completed"
	RebalanceCancelled RebalanceStatus = "cancelled"
)

// RebalanceRequest is an advisory suggestion to move capital between venues.
// It is tracked, never auto-executed — the transfer itself is manual.
type RebalanceRequest struct {
	ID          string
	From        Venue
	To          Venue
	Amount      float64
	Status      RebalanceStatus
	CreatedAt   time.Time
	InitiatedAt *time.Time
	CompletedAt *time.Time
}
