package venue

import (
	"context"
	"sync"

	"github.com/areyes/bankroll/internal/domain"
)

// FixtureSource implements ports.OpportunitySource with a fixed candidate
// list, drained once. Used by dry-run mode and tests.
type FixtureSource struct {
	mu      sync.Mutex
	opps    []domain.Opportunity
	drained bool
}

// NewFixtureSource creates a source over the given candidates.
func NewFixtureSource(opps []domain.Opportunity) *FixtureSource {
	return &FixtureSource{opps: opps}
}

// Next returns the fixture set on the first call and nothing afterwards.
func (s *FixtureSource) Next(_ context.Context) ([]domain.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drained {
		return nil, nil
	}
	s.drained = true
	return s.opps, nil
}

// DefaultFixtures is a small dry-run candidate set.
func DefaultFixtures() []domain.Opportunity {
	return []domain.Opportunity{
		{
			ID: "fx-1", InstrumentID: "KXBTC-25DEC31-T100", Venue: domain.VenueKalshi,
			Category: "crypto", Side: "yes",
			RequiredCapital: 8, Confidence: 72, Edge: 4.5, Score: 78,
		},
		{
			ID: "fx-2", InstrumentID: "KXHIGHNY-26AUG30", Venue: domain.VenueKalshi,
			Category: "weather", Side: "no",
			RequiredCapital: 5, Confidence: 68, Edge: 3.2, Score: 66,
		},
		{
			ID: "fx-3", InstrumentID: "BTC-PERP-UP", Venue: domain.VenueCoinbase,
			Category: "crypto", Side: "yes",
			RequiredCapital: 10, Confidence: 80, Edge: 6.0, Score: 88,
		},
	}
}
