// Package calibration compares stated prediction confidence against
// realized outcomes and rescales future confidence scores accordingly.
package calibration

import (
	"context"
	"fmt"
	"sort"

	"github.com/areyes/bankroll/internal/domain"
	"github.com/areyes/bankroll/internal/ports"
)

// Recommendation thresholds on the overall calibration factor.
const (
	underconfidentAbove = 1.15
	overconfidentBelow  = 0.85
	bucketDriftMax      = 0.3
)

// Report is the calibration summary for one category.
type Report struct {
	Category       string
	Buckets        []domain.CalibrationBucket
	OverallFactor  float64
	Recommendation string
}

// Tracker buckets resolved predictions by confidence bin.
type Tracker struct {
	store ports.Store
	venue domain.Venue
	limit int
}

// New creates a tracker reading predictions for one venue.
func New(store ports.Store, venue domain.Venue) *Tracker {
	return &Tracker{store: store, venue: venue, limit: 500}
}

// Build computes the calibration report for a category (empty category
// covers all of them).
func (t *Tracker) Build(ctx context.Context, category string) (*Report, error) {
	preds, err := t.store.GetPredictions(ctx, category, t.venue, t.limit)
	if err != nil {
		return nil, fmt.Errorf("calibration.Build: predictions: %w", err)
	}

	buckets := Bucketize(preds)
	report := &Report{
		Category:      category,
		Buckets:       buckets,
		OverallFactor: OverallFactor(buckets),
	}
	report.Recommendation = recommend(report.OverallFactor, buckets)
	return report, nil
}

// CalibratedConfidence rescales a raw confidence by the empirical factor of
// its bucket. Thinly populated buckets (<10 predictions) pass the raw value
// through unchanged; the result is clamped to [50, 95].
func (t *Tracker) CalibratedConfidence(ctx context.Context, category string, raw float64) (float64, error) {
	report, err := t.Build(ctx, category)
	if err != nil {
		return raw, err
	}
	return Rescale(report.Buckets, raw), nil
}

// Bucketize groups resolved predictions into 5-point bins and computes each
// bin's factor once it has at least 3 resolved outcomes.
func Bucketize(preds []domain.Prediction) []domain.CalibrationBucket {
	byBin := make(map[float64]*domain.CalibrationBucket)
	for _, p := range preds {
		if !p.Resolved {
			continue
		}
		bin := domain.BucketFloor(p.Confidence)
		b, ok := byBin[bin]
		if !ok {
			b = &domain.CalibrationBucket{Bucket: bin}
			byBin[bin] = b
		}
		b.Predictions++
		switch p.Outcome {
		case "win":
			b.Wins++
		case "loss":
			b.Losses++
		}
	}

	var buckets []domain.CalibrationBucket
	for _, b := range byBin {
		if b.Calibrated() {
			b.ActualWinRate = float64(b.Wins) / float64(b.Wins+b.Losses) * 100
			b.ExpectedWinRate = b.Bucket + float64(domain.CalibrationBucketWidth)/2
			b.Factor = b.ActualWinRate / b.ExpectedWinRate
		}
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Bucket < buckets[j].Bucket })
	return buckets
}

// OverallFactor is the prediction-count-weighted mean of bucket factors.
// Uncalibrated buckets carry no weight; a calibrated all-loss bucket
// contributes its factor of 0.
func OverallFactor(buckets []domain.CalibrationBucket) float64 {
	var weighted, count float64
	for _, b := range buckets {
		if !b.Calibrated() {
			continue
		}
		weighted += b.Factor * float64(b.Predictions)
		count += float64(b.Predictions)
	}
	if count == 0 {
		return 1
	}
	return weighted / count
}

// Rescale applies the bucket factor to a raw confidence.
func Rescale(buckets []domain.CalibrationBucket, raw float64) float64 {
	bin := domain.BucketFloor(raw)
	for _, b := range buckets {
		if b.Bucket != bin {
			continue
		}
		if b.Predictions < domain.MinBucketForRescale || !b.Calibrated() {
			return raw
		}
		// A factor of 0 is a real signal: the bucket never wins, so the
		// rescaled confidence lands on the floor.
		return clamp(raw*b.Factor, 50, 95)
	}
	return raw
}

func recommend(overall float64, buckets []domain.CalibrationBucket) string {
	if overall > underconfidentAbove {
		return "underconfident: actual win rate beats stated confidence, thresholds can loosen"
	}
	if overall < overconfidentBelow {
		return "overconfident: stated confidence beats actual win rate, thresholds should tighten"
	}
	for _, b := range buckets {
		if b.Predictions >= domain.MinBucketForRescale && b.Calibrated() {
			if drift := b.Factor - 1; drift > bucketDriftMax || drift < -bucketDriftMax {
				return fmt.Sprintf("bucket %.0f miscalibrated (factor %.2f), review", b.Bucket, b.Factor)
			}
		}
	}
	return "well calibrated"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
