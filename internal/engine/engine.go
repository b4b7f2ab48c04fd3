// Package engine simulates order matching against a public trade stream.
// It keeps two resting-order queues and fills them with a conservative
// price-improvement rule: a resting order only fills when the incoming
// trade prints strictly through its price. Matching at the touch never
// fills, which keeps simulated results pessimistic rather than flattering.
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
)

// ErrOrderNotFound is returned by Cancel when the id does not reference
// a resting order.
var ErrOrderNotFound = errors.New("order not found")

// Engine is the matching simulator for one instrument. It is not safe
// for concurrent use; the owning session serialises access.
type Engine struct {
	buys  *orderQueue
	sells *orderQueue
}

// New creates an empty matching engine.
func New() *Engine {
	return &Engine{
		buys:  newOrderQueue(market.Buy),
		sells: newOrderQueue(market.Sell),
	}
}

// Place enqueues a resting order. No fee or fill occurs at placement.
func (e *Engine) Place(o *market.Order) {
	e.queueFor(o.Side).insert(o)
}

// OnTick matches the tick against the resting orders on the opposite
// side and returns the orders it completed, in fill order. A sell trade
// can fill resting buys, a buy trade can fill resting sells.
func (e *Engine) OnTick(tick market.Tick) []*market.Order {
	return e.queueFor(tick.Side.Opposite()).consume(tick)
}

// Cancel removes a resting order immediately regardless of age. It
// returns the cancelled order, or ErrOrderNotFound when the id is absent
// or already terminal.
func (e *Engine) Cancel(id string, now market.MicroSec) (*market.Order, error) {
	o := e.buys.remove(id)
	if o == nil {
		o = e.sells.remove(id)
	}
	if o == nil {
		return nil, fmt.Errorf("cancel %s: %w", id, ErrOrderNotFound)
	}

	o.Status = market.StatusCancelled
	o.UpdateTime = now
	return o, nil
}

// Take removes a resting order without changing its state. Used when
// the venue, not the simulator, decides the order's fate. It returns
// nil when the id is not resting.
func (e *Engine) Take(id string) *market.Order {
	if o := e.buys.remove(id); o != nil {
		return o
	}
	return e.sells.remove(id)
}

// Resize updates the unfilled size of a resting order after the venue
// reports a partial fill. It returns false when the id is not resting.
func (e *Engine) Resize(id string, remain decimal.Decimal) bool {
	for _, q := range []*orderQueue{e.buys, e.sells} {
		for _, o := range q.orders {
			if o.ID == id {
				o.RemainSize = remain
				o.Status = market.StatusPartiallyFilled
				return true
			}
		}
	}
	return false
}

// Expire removes every resting order older than ttlSec and returns them
// marked Expired. The returned slice is empty when nothing qualified.
func (e *Engine) Expire(now market.MicroSec, ttlSec int64) []*market.Order {
	expired := e.buys.removeExpired(now, ttlSec)
	expired = append(expired, e.sells.removeExpired(now, ttlSec)...)
	return expired
}

// Buys returns a snapshot of the resting buy orders, best price first.
func (e *Engine) Buys() []*market.Order {
	return e.buys.snapshot()
}

// Sells returns a snapshot of the resting sell orders, best price first.
func (e *Engine) Sells() []*market.Order {
	return e.sells.snapshot()
}

// RemainSize returns the aggregate unfilled size resting on one side.
func (e *Engine) RemainSize(side market.Side) decimal.Decimal {
	return e.queueFor(side).remainSize()
}

func (e *Engine) queueFor(side market.Side) *orderQueue {
	if side == market.Buy {
		return e.buys
	}
	return e.sells
}
