// Package queue provides the bounded single-consumer event queue that
// sits between network ingestion and the session. Producers on I/O
// goroutines publish; exactly one worker drains in arrival order, so
// session state is never mutated concurrently.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/your-org/tick-session-engine/internal/market"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue is closed")

// Queue is a bounded FIFO of market events. The internal channel is
// never closed; shutdown is signalled through done so that producers
// can never panic on a late publish.
type Queue struct {
	ch        chan market.Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// New creates a queue with the given capacity.
func New(size int) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{
		ch:   make(chan market.Event, size),
		done: make(chan struct{}),
	}
}

// TryPublish enqueues without blocking. It returns false when the queue
// is full or closed; a full-queue drop is counted.
func (q *Queue) TryPublish(e market.Event) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.ch <- e:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Publish enqueues, blocking until there is room, the context is done,
// or the queue is closed. The closed check runs before the send is
// attempted so a publish after Close never lands past the final drain.
func (q *Queue) Publish(ctx context.Context, e market.Event) error {
	select {
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case q.ch <- e:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops publication. Events already queued are still delivered to
// the consumer. Close is idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

// Dropped returns the number of events rejected because the queue was
// full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Len returns the number of events waiting to be consumed.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Run drains the queue with handler until the queue is closed and
// drained, the context is cancelled, or the handler returns an error.
// Run must be called from exactly one goroutine.
func (q *Queue) Run(ctx context.Context, handler func(market.Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-q.ch:
			if err := handler(e); err != nil {
				return err
			}
		case <-q.done:
			// Deliver whatever was queued before the close.
			for {
				select {
				case e := <-q.ch:
					if err := handler(e); err != nil {
						return err
					}
				case <-ctx.Done():
					return ctx.Err()
				default:
					return nil
				}
			}
		}
	}
}
