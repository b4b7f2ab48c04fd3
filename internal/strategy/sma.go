// Package strategy holds the built-in trading agents. SMACross is the
// reference strategy: it exists to exercise the whole pipeline end to
// end and as a template for writing real agents.
package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/internal/ohlcv"
	"github.com/your-org/tick-session-engine/internal/session"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

// SMACross trades a fast/slow moving-average crossover on closed
// candles. A golden cross targets a long position, a dead cross a short
// one; the position is adjusted with market orders on each clock.
type SMACross struct {
	WindowSec int64
	FastBars  int
	SlowBars  int
	OrderSize decimal.Decimal
	OrderTTL  int64
}

// NewSMACross creates the strategy with the given candle window and
// moving-average lengths.
func NewSMACross(windowSec int64, fast, slow int, orderSize decimal.Decimal) *SMACross {
	return &SMACross{
		WindowSec: windowSec,
		FastBars:  fast,
		SlowBars:  slow,
		OrderSize: orderSize,
		OrderTTL:  2 * windowSec,
	}
}

// Name implements runner.Agent.
func (a *SMACross) Name() string { return "sma-cross" }

// ClockIntervalSec implements runner.ClockHandler.
func (a *SMACross) ClockIntervalSec() int64 { return a.WindowSec }

// OnInit implements runner.Initializer.
func (a *SMACross) OnInit(s *session.Session) error {
	logger.Infof("sma-cross initialized: window=%ds fast=%d slow=%d", a.WindowSec, a.FastBars, a.SlowBars)
	return nil
}

// OnClock implements runner.ClockHandler. Signals are computed on
// confirmed candles only, so the trailing unconfirmed bar never flips
// the position mid-window.
func (a *SMACross) OnClock(s *session.Session, _ market.MicroSec) error {
	s.ExpireOrders(a.OrderTTL)

	bars, err := s.OHLCV(a.WindowSec, a.SlowBars+1)
	if err != nil {
		return err
	}
	bars = confirmed(bars)
	if len(bars) < a.SlowBars {
		return nil
	}

	fast := closeAverage(bars[len(bars)-a.FastBars:])
	slow := closeAverage(bars[len(bars)-a.SlowBars:])
	s.LogIndicator("sma_fast", decToFloat(fast))
	s.LogIndicator("sma_slow", decToFloat(slow))

	var target decimal.Decimal
	if fast.GreaterThan(slow) {
		target = a.OrderSize
	} else if fast.LessThan(slow) {
		target = a.OrderSize.Neg()
	} else {
		return nil
	}

	delta := target.Sub(s.Position())
	if delta.IsZero() {
		return nil
	}

	side := market.Buy
	if delta.IsNegative() {
		side = market.Sell
	}
	_, err = s.MarketOrder(side, delta.Abs())
	return err
}

// OnUpdate implements runner.UpdateHandler.
func (a *SMACross) OnUpdate(_ *session.Session, o *market.Order) error {
	logger.Debugf("sma-cross fill: %s %s %s at %s profit=%s", o.Side, o.Status, o.ExecuteSize, o.ExecutePrice, o.Profit)
	return nil
}

func confirmed(bars []ohlcv.Bar) []ohlcv.Bar {
	for len(bars) > 0 && bars[len(bars)-1].Unconfirmed {
		bars = bars[:len(bars)-1]
	}
	return bars
}

func closeAverage(bars []ohlcv.Bar) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars))))
}

func decToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
