package domain

// DenialReason enumerates why an admission check rejected an opportunity.
// Denials are values, never errors — the caller decides whether to try a
// different opportunity.
type DenialReason string

const (
	DenyInsufficientFunds  DenialReason = "insufficient_funds"
	DenyTradeSizeExceeded  DenialReason = "trade_size_exceeded"
	DenyPositionLimit      DenialReason = "position_limit_reached"
	DenyDailyLossLimit     DenialReason = "daily_loss_limit_reached"
	DenyDailyTargetReached DenialReason = "daily_target_reached"
	DenyConfidenceBelowMin DenialReason = "confidence_below_threshold"
	DenyAllocationLimit    DenialReason = "allocation_limit_exceeded"
)

// Decision is the outcome of a trade admission check.
type Decision struct {
	Allowed bool
	Reason  DenialReason
}

// Allow is the admitted decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny rejects with the given reason.
func Deny(reason DenialReason) Decision { return Decision{Reason: reason} }
