package domain

import "time"

// Prediction is a confidence-scored forecast linked to an instrument. The
// settlement worker marks it resolved when the market settles; the
// calibration tracker consumes the resolved history.
type Prediction struct {
	ID           string
	Venue        Venue
	Category     string
	InstrumentID string
	Side         string
	Confidence   float64
	Resolved     bool
	Outcome      string // "win" or "loss" once resolved
	PnL          float64
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// CalibrationBucket aggregates resolved predictions whose confidence falls
// in one 5-point-wide bin. Factor is only meaningful once the bucket holds
// at least MinBucketOutcomes resolved outcomes.
type CalibrationBucket struct {
	Bucket          float64 // bin floor: 50, 55, … 90
	Predictions     int
	Wins            int
	Losses          int
	ActualWinRate   float64
	ExpectedWinRate float64
	Factor          float64
}

const (
	// MinBucketOutcomes is the resolved-outcome floor below which a bucket's
	// calibration factor is not computed.
	MinBucketOutcomes = 3
	// MinBucketForRescale is the sample floor below which a raw confidence
	// passes through unchanged.
	MinBucketForRescale = 10

	CalibrationBucketWidth = 5
	CalibrationBucketMin   = 50
	CalibrationBucketMax   = 90
)

// Calibrated reports whether the bucket holds enough resolved outcomes for
// its Factor to be meaningful. A calibrated bucket can legitimately carry a
// Factor of 0 (every resolved prediction lost).
func (b CalibrationBucket) Calibrated() bool {
	return b.Wins+b.Losses >= MinBucketOutcomes
}

// BucketFloor returns the 5-point bin floor containing the confidence,
// clamped into the tracked range.
func BucketFloor(confidence float64) float64 {
	if confidence < CalibrationBucketMin {
		return CalibrationBucketMin
	}
	if confidence >= CalibrationBucketMax+CalibrationBucketWidth {
		return CalibrationBucketMax
	}
	bin := float64(int(confidence)/CalibrationBucketWidth) * CalibrationBucketWidth
	if bin > CalibrationBucketMax {
		bin = CalibrationBucketMax
	}
	return bin
}
