package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/internal/queue"
)

// EventSource streams heterogeneous market events. A backtest only ever
// carries ticks; a real run merges the public trade stream with the
// venue's private order and account notifications so the session sees
// everything on one consumer goroutine.
type EventSource interface {
	Events(ctx context.Context) (<-chan market.Event, <-chan error)
}

// TickEvents lifts a tick Source into an EventSource.
type TickEvents struct {
	Source Source
}

// Events implements EventSource.
func (t *TickEvents) Events(ctx context.Context) (<-chan market.Event, <-chan error) {
	eventCh := make(chan market.Event)
	errCh := make(chan error, 1)

	tickCh, innerErrs := t.Source.Stream(ctx)
	go func() {
		defer close(eventCh)
		defer close(errCh)
		for tick := range tickCh {
			select {
			case eventCh <- tick:
			case <-ctx.Done():
				return
			}
		}
		if err := <-innerErrs; err != nil {
			errCh <- err
		}
	}()

	return eventCh, errCh
}

// Merge funnels several event sources into one single-consumer stream.
// Each source publishes from its own goroutine into a bounded queue, so
// events from one source keep their relative order while the consumer
// sees a single interleaved stream. The merged stream ends when every
// source has ended cleanly, or as soon as one fails; the caller is
// expected to cancel the context afterwards to release the survivors.
type Merge struct {
	Sources []EventSource
	Size    int
}

// Events implements EventSource.
func (m *Merge) Events(ctx context.Context) (<-chan market.Event, <-chan error) {
	eventCh := make(chan market.Event)
	errCh := make(chan error, 1)

	q := queue.New(m.Size)
	firstErr := make(chan error, 1)

	var wg sync.WaitGroup
	for _, src := range m.Sources {
		events, errs := src.Events(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range events {
				if err := q.Publish(ctx, e); err != nil {
					return
				}
			}
			if err := <-errs; err != nil {
				select {
				case firstErr <- err:
				default:
				}
				// A dead source ends the merged stream.
				q.Close()
			}
		}()
	}
	go func() {
		wg.Wait()
		q.Close()
	}()

	go func() {
		defer close(eventCh)
		defer close(errCh)

		runErr := q.Run(ctx, func(e market.Event) error {
			select {
			case eventCh <- e:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if runErr != nil {
			if !errors.Is(runErr, context.Canceled) {
				errCh <- runErr
			}
			return
		}

		select {
		case err := <-firstErr:
			errCh <- err
		default:
		}
	}()

	return eventCh, errCh
}
