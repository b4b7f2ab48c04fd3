package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/tick-session-engine/internal/market"
)

type failingSource struct {
	ticks []market.Tick
	err   error
}

func (f *failingSource) Stream(ctx context.Context) (<-chan market.Tick, <-chan error) {
	tickCh := make(chan market.Tick)
	errCh := make(chan error, 1)
	go func() {
		defer close(tickCh)
		defer close(errCh)
		for _, t := range f.ticks {
			select {
			case tickCh <- t:
			case <-ctx.Done():
				return
			}
		}
		if f.err != nil {
			errCh <- f.err
		}
	}()
	return tickCh, errCh
}

func TestBufferedSourcePreservesOrder(t *testing.T) {
	ticks := []market.Tick{
		{Time: market.Sec(1), Side: market.Buy, Price: mustDec("100"), Size: mustDec("1")},
		{Time: market.Sec(2), Side: market.Sell, Price: mustDec("99"), Size: mustDec("2")},
		{Time: market.Sec(3), Side: market.Buy, Price: mustDec("101"), Size: mustDec("3")},
	}

	src := &BufferedSource{Inner: &MemorySource{Ticks: ticks}, Size: 2}
	got, err := collect(t, src)
	require.NoError(t, err)

	require.Len(t, got, 3)
	for i, tick := range got {
		assert.Equal(t, ticks[i].Time, tick.Time)
	}
}

func TestBufferedSourceForwardsTerminalError(t *testing.T) {
	src := &BufferedSource{
		Inner: &failingSource{
			ticks: []market.Tick{{Time: market.Sec(1), Side: market.Buy, Price: mustDec("100"), Size: mustDec("1")}},
			err:   ErrFeedDisconnected,
		},
		Size: 8,
	}

	got, err := collect(t, src)
	assert.Len(t, got, 1)
	assert.ErrorIs(t, err, ErrFeedDisconnected)
}

func TestBufferedSourceStopsOnCancel(t *testing.T) {
	ticks := make([]market.Tick, 100)
	for i := range ticks {
		ticks[i] = market.Tick{Time: market.Sec(int64(i)), Side: market.Buy, Price: mustDec("100"), Size: mustDec("1")}
	}

	ctx, cancel := context.WithCancel(context.Background())
	src := &BufferedSource{Inner: &MemorySource{Ticks: ticks}, Size: 4}
	tickCh, _ := src.Stream(ctx)

	<-tickCh
	cancel()

	for range tickCh {
	}
}
