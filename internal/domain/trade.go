package domain

import "time"

// TradeStatus represents the lifecycle of a trade. A trade is created open,
// transitions to exactly one terminal state via settlement, and is never
// reopened.
type TradeStatus string

const (
	TradeStatusPending TradeStatus = "pending"
	TradeStatusOpen    TradeStatus = "open"
	TradeStatusWon     TradeStatus = "won"
	TradeStatusLost    TradeStatus = "lost"
)

// Terminal reports whether the status is a settled outcome.
func (s TradeStatus) Terminal() bool {
	return s == TradeStatusWon || s == TradeStatusLost
}

// TradeTypeBinary marks trades on binary-outcome markets — the only type
// the settlement worker reconciles.
const TradeTypeBinary = "binary"

// Trade is a position opened against a venue, tracked from order placement
// to settlement.
type Trade struct {
	ID              string // UUID (local tracking)
	OpportunityID   string
	Venue           Venue
	Type            string // "binary" or venue-specific
	Side            string // "yes" or "no"
	InstrumentID    string // market ticker used for settlement lookup
	Amount          float64
	EntryPriceCents float64
	ExitPriceCents  float64
	Contracts       float64
	Fees            float64
	Status          TradeStatus
	Profit          *float64
	Category        string
	Confidence      float64
	Edge            float64
	ExecutedAt      time.Time
	SettledAt       *time.Time
}

// DerivedContracts returns the contract count, falling back to
// amount / entry price when the venue response omitted it. Returns false
// when no fallback is derivable.
func (t Trade) DerivedContracts() (float64, bool) {
	if t.Contracts > 0 {
		return t.Contracts, true
	}
	if t.EntryPriceCents > 0 && t.Amount > 0 {
		return t.Amount / (t.EntryPriceCents / 100.0), true
	}
	return 0, false
}

// TradeClose carries everything persisted in the single atomic update that
// settles a trade.
type TradeClose struct {
	Outcome        string // "win" or "loss"
	PnL            float64
	ExitPriceCents float64
	Contracts      float64
	ClosedAt       time.Time
}

// Status maps the settlement outcome to the terminal trade status.
func (c TradeClose) StatusFor() TradeStatus {
	if c.Outcome == "win" {
		return TradeStatusWon
	}
	return TradeStatusLost
}

// Opportunity is a trade candidate produced by an out-of-scope analysis
// component. Read-only input to admission checks.
type Opportunity struct {
	ID              string
	InstrumentID    string
	Venue           Venue
	Category        string
	Side            string
	RequiredCapital float64
	Confidence      float64
	Edge            float64
	Score           float64
}

// Settlement is the external determination of a binary market's outcome.
type Settlement struct {
	InstrumentID string
	Result       string // "yes" or "no"
	SettledAt    time.Time
	Fee          float64
}

// OrderRequest is sent to a venue to open a position.
type OrderRequest struct {
	InstrumentID string
	Side         string
	Amount       float64
	PriceCents   float64
}

// PlacedOrder is the venue's response after placing an order.
type PlacedOrder struct {
	OrderID         string
	EntryPriceCents float64
	Contracts       float64
	Fees            float64
}

// OrderBook is the top-of-book snapshot for an instrument.
type OrderBook struct {
	InstrumentID string
	YesBidCents  float64
	YesAskCents  float64
	NoBidCents   float64
	NoAskCents   float64
}
