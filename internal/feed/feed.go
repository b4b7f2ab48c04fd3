// Package feed supplies the public trade stream a session consumes. A
// backtest replays a CSV capture, dry and real runs subscribe to the
// exchange websocket; both surface as the same Source.
package feed

import (
	"context"
	"errors"

	"github.com/your-org/tick-session-engine/internal/market"
)

// ErrFeedDisconnected is returned when a live feed exhausts its
// reconnection attempts.
var ErrFeedDisconnected = errors.New("feed disconnected")

// Source streams ticks in non-decreasing time order. The tick channel is
// closed when the source is exhausted or the context is cancelled; a
// terminal failure is reported on the error channel before closing.
type Source interface {
	Stream(ctx context.Context) (<-chan market.Tick, <-chan error)
}

// MemorySource replays an in-memory tick slice. Used in tests and for
// synthetic runs.
type MemorySource struct {
	Ticks []market.Tick
}

// Stream implements Source.
func (m *MemorySource) Stream(ctx context.Context) (<-chan market.Tick, <-chan error) {
	tickCh := make(chan market.Tick)
	errCh := make(chan error, 1)

	go func() {
		defer close(tickCh)
		defer close(errCh)
		for _, t := range m.Ticks {
			select {
			case tickCh <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	return tickCh, errCh
}
