// Package session ties the matching engine, ledger and candle aggregator
// together behind the surface a strategy programs against. One session
// tracks one instrument; every method runs on the single consumer
// goroutine draining the event queue, so nothing here locks.
package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/engine"
	"github.com/your-org/tick-session-engine/internal/ledger"
	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/internal/ohlcv"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

var (
	// ErrOrderRejected is returned when an order fails validation before
	// reaching the engine.
	ErrOrderRejected = errors.New("order rejected")

	// ErrMarketNotReady is returned when a market order arrives before
	// both board edges have been observed.
	ErrMarketNotReady = errors.New("market edges not initialized")
)

// Config carries the per-instrument session parameters.
type Config struct {
	Symbol          string
	PriceUnit       decimal.Decimal
	MakerFeeRate    decimal.Decimal
	TakerFeeRate    decimal.Decimal
	MarketOrderSlip decimal.Decimal
	HistorySize     int

	// ExternalFills hands execution to the venue: public ticks no longer
	// match resting orders locally, market orders are emitted in the New
	// state for gateway submission, and bookkeeping waits for the fills
	// the venue reports through OnVenueOrder and OnVenueAccount.
	ExternalFills bool
}

// OrderCounts tallies accepted orders by type and side.
type OrderCounts struct {
	LimitBuy   int64
	LimitSell  int64
	MarketBuy  int64
	MarketSell int64
}

// Session is the strategy-facing façade. Not safe for concurrent use.
type Session struct {
	cfg Config

	engine *engine.Engine
	ledger *ledger.Ledger
	agg    *ohlcv.Aggregator

	currentTime market.MicroSec

	bestBid decimal.Decimal
	bestAsk decimal.Decimal
	hasBid  bool
	hasAsk  bool

	counts OrderCounts

	// sink receives every emitted log row, account snapshot and
	// indicator. Nil means nothing is recorded.
	sink func(market.Event)
}

// New creates a session from the given parameters.
func New(cfg Config) *Session {
	if cfg.PriceUnit.IsZero() {
		cfg.PriceUnit = decimal.New(1, -2)
	}
	return &Session{
		cfg:    cfg,
		engine: engine.New(),
		ledger: ledger.New(cfg.MakerFeeRate, cfg.TakerFeeRate),
		agg:    ohlcv.New(cfg.HistorySize),
	}
}

// SetSink installs the event recorder. Pass nil to disable recording.
func (s *Session) SetSink(fn func(market.Event)) {
	s.sink = fn
}

func (s *Session) emit(e market.Event) {
	if s.sink != nil {
		s.sink(e)
	}
}

// Symbol returns the instrument the session trades.
func (s *Session) Symbol() string {
	return s.cfg.Symbol
}

// CurrentTime returns the timestamp of the last consumed tick. In replay
// this is the virtual clock; nothing in the session reads the wall clock.
func (s *Session) CurrentTime() market.MicroSec {
	return s.currentTime
}

// Initialized reports whether both board edges have been observed. Market
// orders and edge queries are valid only after initialization.
func (s *Session) Initialized() bool {
	return s.hasBid && s.hasAsk
}

// BestBid returns the current bid edge estimate.
func (s *Session) BestBid() (decimal.Decimal, bool) {
	return s.bestBid, s.hasBid
}

// BestAsk returns the current ask edge estimate.
func (s *Session) BestAsk() (decimal.Decimal, bool) {
	return s.bestAsk, s.hasAsk
}

// OnTick advances the session by one public trade: the virtual clock and
// board edges move, the candle aggregator folds the tick in, and the tick
// is matched against resting orders. A tick older than the session clock
// is dropped so time never moves backwards. Completed fills come back as
// accounting rows, already booked into the ledger and reported to the
// sink together with the post-fill account snapshot.
func (s *Session) OnTick(t market.Tick) []*market.Order {
	if t.Time < s.currentTime {
		logger.Warnf("Dropping out-of-order tick: %s < %s", t.Time, s.currentTime)
		return nil
	}
	s.currentTime = t.Time
	s.updateEdges(t)
	s.agg.Append(t)

	if s.cfg.ExternalFills {
		// The venue owns execution; fills arrive through OnVenueOrder.
		return nil
	}

	filled := s.engine.OnTick(t)
	if len(filled) == 0 {
		return nil
	}

	var rows []*market.Order
	for _, o := range filled {
		rows = append(rows, s.ledger.ApplyFill(o)...)
	}
	for _, row := range rows {
		s.emit(row)
	}
	s.emit(s.ledger.Snapshot(t.Time))
	return rows
}

// updateEdges estimates the touch from trade prints. A sell print hit the
// bid, a buy print lifted the ask; when the estimate crosses, the stale
// opposite edge is pushed one price unit away.
func (s *Session) updateEdges(t market.Tick) {
	switch t.Side {
	case market.Sell:
		s.bestBid = t.Price
		s.hasBid = true
		if s.hasAsk && s.bestAsk.LessThanOrEqual(s.bestBid) {
			s.bestAsk = s.bestBid.Add(s.cfg.PriceUnit)
		}
	case market.Buy:
		s.bestAsk = t.Price
		s.hasAsk = true
		if s.hasBid && s.bestBid.GreaterThanOrEqual(s.bestAsk) {
			s.bestBid = s.bestAsk.Sub(s.cfg.PriceUnit)
		}
	}
}

// LimitOrder places a resting limit order. The order rests until a trade
// prints strictly through its price; placement itself never fills and
// carries no fee. The returned order is a snapshot of the accepted state.
func (s *Session) LimitOrder(side market.Side, price, size decimal.Decimal) (*market.Order, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("limit order: side %q: %w", side, ErrOrderRejected)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("limit order: price %s: %w", price, ErrOrderRejected)
	}
	if !size.IsPositive() {
		return nil, fmt.Errorf("limit order: size %s: %w", size, ErrOrderRejected)
	}

	o := market.NewOrder(s.newOrderID(), side, market.Limit, price, size, s.currentTime)
	s.engine.Place(o)

	if side == market.Buy {
		s.counts.LimitBuy++
	} else {
		s.counts.LimitSell++
	}

	snap := o.Clone()
	s.emit(snap)
	return snap, nil
}

// MarketOrder fills immediately at the current edge plus slip: a buy
// pays the ask edge plus slip, a sell receives the bid edge minus slip.
// Market fills are takers. The resulting accounting rows are returned,
// one row normally, two when the fill flips the position. Under
// ExternalFills no local fill is simulated: the order is emitted in the
// New state for gateway submission and the rows arrive later through
// OnVenueOrder.
func (s *Session) MarketOrder(side market.Side, size decimal.Decimal) ([]*market.Order, error) {
	if !s.Initialized() {
		return nil, fmt.Errorf("market order: %w", ErrMarketNotReady)
	}
	if !side.Valid() {
		return nil, fmt.Errorf("market order: side %q: %w", side, ErrOrderRejected)
	}
	if !size.IsPositive() {
		return nil, fmt.Errorf("market order: size %s: %w", size, ErrOrderRejected)
	}

	var price decimal.Decimal
	if side == market.Buy {
		price = s.bestAsk.Add(s.cfg.MarketOrderSlip)
		s.counts.MarketBuy++
	} else {
		price = s.bestBid.Sub(s.cfg.MarketOrderSlip)
		s.counts.MarketSell++
	}

	o := market.NewOrder(s.newOrderID(), side, market.Market, price, size, s.currentTime)
	if s.cfg.ExternalFills {
		s.emit(o.Clone())
		return nil, nil
	}
	o.Status = market.StatusFilled
	o.RemainSize = decimal.Zero
	o.ExecutePrice = price
	o.ExecuteSize = size
	o.IsMaker = false

	rows := s.ledger.ApplyFill(o)
	for _, row := range rows {
		s.emit(row)
	}
	s.emit(s.ledger.Snapshot(s.currentTime))
	return rows, nil
}

// CancelOrder removes a resting order regardless of age.
func (s *Session) CancelOrder(id string) (*market.Order, error) {
	o, err := s.engine.Cancel(id, s.currentTime)
	if err != nil {
		return nil, err
	}
	s.emit(o.Clone())
	return o, nil
}

// ExpireOrders removes every resting order older than ttlSec and returns
// them marked Expired.
func (s *Session) ExpireOrders(ttlSec int64) []*market.Order {
	expired := s.engine.Expire(s.currentTime, ttlSec)
	for _, o := range expired {
		s.emit(o.Clone())
	}
	return expired
}

// OnVenueOrder reconciles the session with an order event the venue
// reported. A fill books the venue's execution into the ledger exactly
// as reported and returns the accounting rows; a partial fill shrinks
// the resting copy silently; a cancellation or expiry removes the local
// copy and returns it marked. Venue event times only ever advance the
// session clock.
func (s *Session) OnVenueOrder(v *market.Order) []*market.Order {
	if v.UpdateTime > s.currentTime {
		s.currentTime = v.UpdateTime
	}

	switch v.Status {
	case market.StatusFilled:
		o := s.engine.Take(v.ID)
		if o == nil {
			// A market order submitted through the gateway never rested
			// locally; the venue's copy is all there is.
			o = v.Clone()
		}
		o.Status = market.StatusFilled
		o.UpdateTime = v.UpdateTime
		o.RemainSize = decimal.Zero
		o.ExecutePrice = v.ExecutePrice
		o.ExecuteSize = v.ExecuteSize
		o.IsMaker = v.IsMaker
		if o.ExecutePrice.IsZero() {
			o.ExecutePrice = o.Price
		}
		if o.ExecuteSize.IsZero() {
			o.ExecuteSize = o.Size
		}

		rows := s.ledger.ApplyFill(o)
		for _, row := range rows {
			s.emit(row)
		}
		s.emit(s.ledger.Snapshot(s.currentTime))
		return rows

	case market.StatusPartiallyFilled:
		s.engine.Resize(v.ID, v.RemainSize)
		return nil

	case market.StatusCancelled, market.StatusExpired:
		o := s.engine.Take(v.ID)
		if o == nil {
			return nil
		}
		o.Status = v.Status
		o.UpdateTime = s.currentTime
		snap := o.Clone()
		s.emit(snap)
		return []*market.Order{snap}
	}

	// New is the venue acknowledging the submission; nothing to do.
	return nil
}

// OnVenueAccount records an account snapshot the venue reported.
func (s *Session) OnVenueAccount(a market.AccountSnapshot) {
	if a.Time > s.currentTime {
		s.currentTime = a.Time
	}
	s.emit(a)
}

// OHLCV returns the most recent count candles of the given window size,
// oldest first.
func (s *Session) OHLCV(windowSec int64, count int) ([]ohlcv.Bar, error) {
	return s.agg.Bars(windowSec, count)
}

// LogIndicator records a named strategy value at the current session
// time.
func (s *Session) LogIndicator(name string, value float64) {
	s.emit(market.Indicator{Time: s.currentTime, Name: name, Value: value})
}

// Position returns the current signed position size.
func (s *Session) Position() decimal.Decimal {
	return s.ledger.Position()
}

// AveragePrice returns the weighted average entry price of the open
// position.
func (s *Session) AveragePrice() decimal.Decimal {
	return s.ledger.AveragePrice()
}

// Profit returns cumulative realized profit before fees.
func (s *Session) Profit() decimal.Decimal {
	return s.ledger.SumProfit()
}

// TotalProfit returns cumulative realized profit net of fees.
func (s *Session) TotalProfit() decimal.Decimal {
	return s.ledger.TotalProfit()
}

// Account returns the current account snapshot stamped with the session
// time.
func (s *Session) Account() market.AccountSnapshot {
	return s.ledger.Snapshot(s.currentTime)
}

// Buys returns the resting buy orders, best price first.
func (s *Session) Buys() []*market.Order {
	return s.engine.Buys()
}

// Sells returns the resting sell orders, best price first.
func (s *Session) Sells() []*market.Order {
	return s.engine.Sells()
}

// RemainSize returns the aggregate unfilled size resting on one side.
func (s *Session) RemainSize(side market.Side) decimal.Decimal {
	return s.engine.RemainSize(side)
}

// Counts returns the per-type order tallies.
func (s *Session) Counts() OrderCounts {
	return s.counts
}

func (s *Session) newOrderID() string {
	return uuid.NewString()
}
