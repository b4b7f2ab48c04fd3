package feed

import (
	"context"
	"errors"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/internal/queue"
)

// BufferedSource decouples a network source from its consumer with a
// bounded queue. Live feeds read from the socket on an I/O goroutine
// while the session drains at its own pace; a burst is absorbed by the
// queue instead of stalling the socket read and tripping the read
// deadline.
type BufferedSource struct {
	Inner Source
	Size  int
}

// Stream implements Source. Ordering is preserved: the producer blocks
// when the queue is full, so no tick is ever dropped or reordered.
func (b *BufferedSource) Stream(ctx context.Context) (<-chan market.Tick, <-chan error) {
	tickCh := make(chan market.Tick)
	errCh := make(chan error, 1)

	q := queue.New(b.Size)
	innerTicks, innerErrs := b.Inner.Stream(ctx)
	innerDone := make(chan error, 1)

	go func() {
		defer q.Close()
		for t := range innerTicks {
			if err := q.Publish(ctx, t); err != nil {
				return
			}
		}
		if err := <-innerErrs; err != nil {
			innerDone <- err
		}
	}()

	go func() {
		defer close(tickCh)
		defer close(errCh)

		runErr := q.Run(ctx, func(e market.Event) error {
			select {
			case tickCh <- e.(market.Tick):
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

		// The queue closed after a drain, so the producer has already
		// parked the inner source's terminal error, if any.
		select {
		case err := <-innerDone:
			errCh <- err
		default:
		}
	}()

	return tickCh, errCh
}
