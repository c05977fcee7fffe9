package domain

import "time"

// Venue identifies one of the two trading platforms whose balances are
// pooled into a single logical bankroll.
type Venue string

const (
	// VenueKalshi is the prediction-market platform (primary).
	VenueKalshi Venue = "kalshi"
	// VenueCoinbase is the crypto exchange (secondary).
	VenueCoinbase Venue = "coinbase"
)

// Venues lists both platforms in primary-first order.
func Venues() []Venue {
	return []Venue{VenueKalshi, VenueCoinbase}
}

// Other returns the opposite venue, used when an allocation spills over.
func (v Venue) Other() Venue {
	if v == VenueKalshi {
		return VenueCoinbase
	}
	return VenueKalshi
}

// PlatformBalance is the per-venue capital snapshot. Total is derived and
// must be recomputed after every mutation, never stored independently.
type PlatformBalance struct {
	Available   float64
	InPositions float64
	Pending     float64
	Total       float64
	LastUpdated time.Time
}

// Recompute refreshes the derived Total field.
func (b *PlatformBalance) Recompute() {
	b.Total = b.Available + b.InPositions + b.Pending
}

// AllocationConfig holds the target capital split as percentages.
// The three shares are expected to sum to 100; a violation is warned
// about at load time, not rejected.
type AllocationConfig struct {
	KalshiShare   float64
	CoinbaseShare float64
	ReserveShare  float64
}

// Share returns the target percentage for a venue.
func (a AllocationConfig) Share(v Venue) float64 {
	if v == VenueKalshi {
		return a.KalshiShare
	}
	return a.CoinbaseShare
}

// SumsTo100 reports whether the shares add up to a full allocation.
func (a AllocationConfig) SumsTo100() bool {
	sum := a.KalshiShare + a.CoinbaseShare + a.ReserveShare
	return sum > 99.999 && sum < 100.001
}
