package gateway

import (
	"context"
	"sync"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

// Mirror forwards locally emitted order events to the venue. A real run
// keeps the simulated session as the source of truth for strategy state
// and mirrors its order flow: new limit orders are submitted, market
// orders are submitted on their fill row, cancels and expiries are
// forwarded by the venue-assigned id. Venue errors are logged, never
// propagated, so a flaky venue cannot fail the run loop.
type Mirror struct {
	gw Gateway

	mu        sync.Mutex
	venueID   map[string]string
	submitted map[string]bool
}

// NewMirror creates a mirror in front of the given gateway.
func NewMirror(gw Gateway) *Mirror {
	return &Mirror{
		gw:        gw,
		venueID:   make(map[string]string),
		submitted: make(map[string]bool),
	}
}

// Observe inspects one session event and mirrors it to the venue when it
// is an order transition the venue needs to see. Non-order events are
// ignored.
func (m *Mirror) Observe(ctx context.Context, e market.Event) {
	o, ok := e.(*market.Order)
	if !ok {
		return
	}

	switch o.Status {
	case market.StatusNew:
		m.submit(ctx, o)

	case market.StatusCancelled, market.StatusExpired:
		m.mu.Lock()
		id, found := m.venueID[o.ID]
		delete(m.venueID, o.ID)
		m.mu.Unlock()
		if !found {
			return
		}
		if err := m.gw.Cancel(ctx, id); err != nil {
			logger.Errorf("Mirror: cancel %s (venue %s) failed: %v", o.ID, id, err)
		}

	case market.StatusFilled:
		// In simulated runs market orders never pass through New; their
		// first visible event is the fill row. The submit is
		// deduplicated, which also covers doten rows sharing an id and
		// venue-reported fills of orders submitted at New.
		if o.Type == market.Market {
			m.submit(ctx, o)
		}
		m.mu.Lock()
		delete(m.venueID, o.ID)
		m.mu.Unlock()
	}
}

func (m *Mirror) submit(ctx context.Context, o *market.Order) {
	m.mu.Lock()
	if m.submitted[o.ID] {
		m.mu.Unlock()
		return
	}
	m.submitted[o.ID] = true
	m.mu.Unlock()

	id, err := m.gw.Submit(ctx, o)
	if err != nil {
		logger.Errorf("Mirror: submit %s failed: %v", o.ID, err)
		return
	}
	if o.Status == market.StatusNew {
		m.mu.Lock()
		m.venueID[o.ID] = id
		m.mu.Unlock()
	}
}

// Pending returns how many mirrored orders are still resting at the
// venue.
func (m *Mirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.venueID)
}
