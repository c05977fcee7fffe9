package domain

import "time"

// Per-field clamp bounds for StrategyParams. The tuner moves parameters one
// step at a time and the result is always clamped into these ranges, so a
// noisy sample can never drag a threshold off the rails.
const (
	MinConfidenceFloor = 50
	MinConfidenceCeil  = 85
	MinEdgeFloor       = 1
	MinEdgeCeil        = 10
	MaxTradeUSDFloor   = 1
	MaxTradeUSDCeil    = 25
	DailySpendingFloor = 5
	DailySpendingCeil  = 250
	OpenPositionsFloor = 1
	OpenPositionsCeil  = 10
)

// StrategyParams are the per-venue, per-category risk thresholds consumed by
// admission checks. Created with defaults on first use; mutated only by the
// adaptive tuner.
type StrategyParams struct {
	Venue              Venue
	Category           string
	MinConfidence      float64
	MinEdge            float64
	MaxTradeUSD        float64
	DailySpendingLimit float64
	MaxOpenPositions   int
	UpdatedAt          time.Time
}

// DefaultStrategyParams returns the starting thresholds for a category that
// has no tuned parameters yet.
func DefaultStrategyParams(venue Venue, category string) StrategyParams {
	return StrategyParams{
		Venue:              venue,
		Category:           category,
		MinConfidence:      65,
		MinEdge:            3,
		MaxTradeUSD:        10,
		DailySpendingLimit: 50,
		MaxOpenPositions:   5,
	}
}

// Clamp forces every field into its configured bounds.
func (p *StrategyParams) Clamp() {
	p.MinConfidence = clampF(p.MinConfidence, MinConfidenceFloor, MinConfidenceCeil)
	p.MinEdge = clampF(p.MinEdge, MinEdgeFloor, MinEdgeCeil)
	p.MaxTradeUSD = clampF(p.MaxTradeUSD, MaxTradeUSDFloor, MaxTradeUSDCeil)
	p.DailySpendingLimit = clampF(p.DailySpendingLimit, DailySpendingFloor, DailySpendingCeil)
	if p.MaxOpenPositions < OpenPositionsFloor {
		p.MaxOpenPositions = OpenPositionsFloor
	}
	if p.MaxOpenPositions > OpenPositionsCeil {
		p.MaxOpenPositions = OpenPositionsCeil
	}
}

// InBounds reports whether every field already sits inside its range.
func (p StrategyParams) InBounds() bool {
	c := p
	c.Clamp()
	return c == p
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LearningEvent records a pattern detected by the tuner over a category's
// recent closed trades.
type LearningEvent struct {
	ID         string
	Venue      Venue
	Category   string
	Pattern    string // "losing_pattern" or "winning_pattern"
	WinRate    float64
	PnL        float64
	SampleSize int
	CreatedAt  time.Time
}

const (
	PatternLosing  = "losing_pattern"
	PatternWinning = "winning_pattern"
)
