// Package ohlcv buckets a tick stream into fixed-width candles. The
// aggregator keeps one incrementally-maintained bar series per window
// size that has been requested, so repeated queries on a live session
// never rescan the tick history. A bounded tick ring is retained to
// seed series for window sizes requested after the run has started.
package ohlcv

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/pkg/ringbuf"
)

// ErrInvalidBarCount is returned when fewer than one bar is requested.
var ErrInvalidBarCount = errors.New("bar count must be at least 1")

// DefaultHistorySize bounds the tick ring used to seed new window
// caches.
const DefaultHistorySize = 100_000

// Bar is one candle. Time is the window start. The trailing bar of any
// query is Unconfirmed until its window closes; Incomplete marks bars
// whose window may be missing ticks that fell out of retained history.
type Bar struct {
	Time   market.MicroSec
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
	Count  int64

	Unconfirmed bool
	Incomplete  bool
}

// series is the cached bar sequence for one window size. Buckets with
// no ticks are absent rather than zero-filled.
type series struct {
	windowSec int64
	bars      []Bar

	// incompleteBefore is set when the series was seeded from a history
	// ring that had already dropped ticks: buckets at or before it may
	// be missing data. Series maintained incrementally from the start
	// leave it at -1 and are always whole.
	incompleteBefore market.MicroSec
}

func (s *series) append(t market.Tick) {
	bucket := market.FloorSec(t.Time, s.windowSec)

	if n := len(s.bars); n > 0 && s.bars[n-1].Time == bucket {
		bar := &s.bars[n-1]
		if t.Price.GreaterThan(bar.High) {
			bar.High = t.Price
		}
		if t.Price.LessThan(bar.Low) {
			bar.Low = t.Price
		}
		bar.Close = t.Price
		bar.Volume = bar.Volume.Add(t.Size)
		bar.Count++
		return
	}

	s.bars = append(s.bars, Bar{
		Time:   bucket,
		Open:   t.Price,
		High:   t.Price,
		Low:    t.Price,
		Close:  t.Price,
		Volume: t.Size,
		Count:  1,
	})
}

// Aggregator is not safe for concurrent use; the owning session
// serialises access.
type Aggregator struct {
	history  *ringbuf.Ring[market.Tick]
	caches   map[int64]*series
	lastTime market.MicroSec
}

// New creates an aggregator retaining up to historySize ticks for
// seeding late window requests.
func New(historySize int) *Aggregator {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Aggregator{
		history: ringbuf.New[market.Tick](historySize),
		caches:  make(map[int64]*series),
	}
}

// Append folds one tick into every cached series and the history ring.
// Ticks must arrive in non-decreasing time order.
func (a *Aggregator) Append(t market.Tick) {
	a.history.Add(t)
	a.lastTime = t.Time
	for _, s := range a.caches {
		s.append(t)
	}
}

// LastTime returns the timestamp of the most recent tick seen.
func (a *Aggregator) LastTime() market.MicroSec {
	return a.lastTime
}

// Bars returns the most recent count bars of the given window size,
// oldest first. The final bar is flagged Unconfirmed when its window has
// not closed yet. Fewer bars are returned when history does not cover
// the request; missing buckets inside the range stay absent.
func (a *Aggregator) Bars(windowSec int64, count int) ([]Bar, error) {
	if count < 1 {
		return nil, fmt.Errorf("ohlcv window=%ds count=%d: %w", windowSec, count, ErrInvalidBarCount)
	}
	if windowSec <= 0 {
		return nil, fmt.Errorf("ohlcv: window must be positive, got %ds", windowSec)
	}

	s := a.seriesFor(windowSec)
	bars := s.bars
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	out := make([]Bar, len(bars))
	copy(out, bars)
	a.flag(out, s)
	return out, nil
}

// BarsBetween returns the bars of the given window whose start falls in
// [start, end), oldest first.
func (a *Aggregator) BarsBetween(windowSec int64, start, end market.MicroSec) ([]Bar, error) {
	if windowSec <= 0 {
		return nil, fmt.Errorf("ohlcv: window must be positive, got %ds", windowSec)
	}

	s := a.seriesFor(windowSec)
	var out []Bar
	for _, b := range s.bars {
		if b.Time >= start && b.Time < end {
			out = append(out, b)
		}
	}
	a.flag(out, s)
	return out, nil
}

// flag marks the trailing unconfirmed bar and any bar whose window may
// reach before the history the series was seeded from.
func (a *Aggregator) flag(bars []Bar, s *series) {
	if len(bars) == 0 {
		return
	}

	last := &bars[len(bars)-1]
	if last.Time == market.FloorSec(a.lastTime, s.windowSec) {
		last.Unconfirmed = true
	}

	if s.incompleteBefore >= 0 {
		for i := range bars {
			if bars[i].Time <= s.incompleteBefore {
				bars[i].Incomplete = true
			}
		}
	}
}

// seriesFor returns the cached series for the window, seeding it from
// the retained tick history on first request.
func (a *Aggregator) seriesFor(windowSec int64) *series {
	if s, ok := a.caches[windowSec]; ok {
		return s
	}

	s := &series{windowSec: windowSec, incompleteBefore: -1}
	if a.history.Wrapped() {
		if oldest, ok := a.history.Oldest(); ok {
			s.incompleteBefore = market.FloorSec(oldest.Time, windowSec)
		}
	}
	for _, t := range a.history.Items() {
		s.append(t)
	}
	a.caches[windowSec] = s
	return s
}

// RangeStart returns the window-aligned start time that yields count
// bars ending at end. The bar containing end-1 is the last of the range.
func RangeStart(end market.MicroSec, windowSec int64, count int) (market.MicroSec, error) {
	if count < 1 {
		return 0, fmt.Errorf("ohlcv range end=%d count=%d: %w", end, count, ErrInvalidBarCount)
	}
	start := end - 1 - market.Sec(windowSec)*market.MicroSec(count-1)
	return market.FloorSec(start, windowSec), nil
}
