package domain

// Report is the per-cycle snapshot handed to notifiers.
type Report struct {
	Balances   map[Venue]PlatformBalance
	Targets    map[Venue]float64
	Deltas     map[Venue]float64
	OpenTrades []Trade
	DailySpent float64
	DailyPnL   float64

	// Calibration summary, present when a tracker was queried this cycle.
	Buckets        []CalibrationBucket
	OverallFactor  float64
	Recommendation string
}
