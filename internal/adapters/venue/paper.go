// Package venue provides a paper trading client: a deterministic simulated
// venue behind ports.VenueClient, used by dry-run mode and tests. Real
// venue HTTP clients live outside this module.
package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/areyes/bankroll/internal/domain"
)

// Paper simulates one venue: orders always fill at the requested price and
// settlements appear when a test (or the dry-run driver) resolves an
// instrument. The rate limiter mirrors a real client's API budget.
type Paper struct {
	mu          sync.Mutex
	venue       domain.Venue
	available   float64
	inPositions float64
	pending     float64
	books       map[string]domain.OrderBook
	settlements map[string]domain.Settlement
	orders      int
	limiter     *rate.Limiter
	now         func() time.Time
}

// NewPaper creates a paper venue with a starting available balance.
func NewPaper(v domain.Venue, available float64) *Paper {
	return &Paper{
		venue:       v,
		available:   available,
		books:       make(map[string]domain.OrderBook),
		settlements: make(map[string]domain.Settlement),
		limiter:     rate.NewLimiter(20, 5),
		now:         time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (p *Paper) SetClock(now func() time.Time) { p.now = now }

// GetBalance returns the simulated capital snapshot.
func (p *Paper) GetBalance(ctx context.Context) (available, inPositions, pending float64, err error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, 0, 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available, p.inPositions, p.pending, nil
}

// PlaceOrder fills immediately at the requested price (best ask when no
// price was given) and moves the capital into positions.
func (p *Paper) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.PlacedOrder{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Amount <= 0 {
		return domain.PlacedOrder{}, fmt.Errorf("venue.PlaceOrder: non-positive amount %.2f", req.Amount)
	}
	if req.Amount > p.available {
		return domain.PlacedOrder{}, fmt.Errorf("venue.PlaceOrder: amount %.2f exceeds available %.2f",
			req.Amount, p.available)
	}

	price := req.PriceCents
	if price <= 0 {
		if book, ok := p.books[req.InstrumentID]; ok && req.Side == "no" {
			price = book.NoAskCents
		} else if ok {
			price = book.YesAskCents
		} else {
			price = 50
		}
	}

	contracts := req.Amount / (price / 100)
	// Taker fee in the prediction-market convention: 7% of expected variance.
	frac := price / 100
	fee := roundCents(0.07 * contracts * frac * (1 - frac))

	p.available -= req.Amount
	p.inPositions += req.Amount
	p.orders++

	return domain.PlacedOrder{
		OrderID:         fmt.Sprintf("paper-%s-%d", p.venue, p.orders),
		EntryPriceCents: price,
		Contracts:       contracts,
		Fees:            fee,
	}, nil
}

// GetOrderBook returns the seeded book, or a flat 50/50 book for unknown
// instruments.
func (p *Paper) GetOrderBook(ctx context.Context, instrumentID string) (domain.OrderBook, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.OrderBook{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if book, ok := p.books[instrumentID]; ok {
		return book, nil
	}
	return domain.OrderBook{
		InstrumentID: instrumentID,
		YesBidCents:  49, YesAskCents: 51,
		NoBidCents: 49, NoAskCents: 51,
	}, nil
}

// GetSettlements returns the settlement for an instrument once it has been
// resolved, empty otherwise.
func (p *Paper) GetSettlements(ctx context.Context, instrumentID string, limit int) ([]domain.Settlement, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.settlements[instrumentID]
	if !ok || limit <= 0 {
		return nil, nil
	}
	return []domain.Settlement{s}, nil
}

// SetBook seeds the order book for an instrument.
func (p *Paper) SetBook(book domain.OrderBook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books[book.InstrumentID] = book
}

// Resolve settles an instrument with the given result ("yes" or "no").
func (p *Paper) Resolve(instrumentID, result string, fee float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settlements[instrumentID] = domain.Settlement{
		InstrumentID: instrumentID,
		Result:       result,
		SettledAt:    p.now().UTC(),
		Fee:          fee,
	}
}

// SetBalance overrides the simulated snapshot.
func (p *Paper) SetBalance(available, inPositions, pending float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = available
	p.inPositions = inPositions
	p.pending = pending
}

func roundCents(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
