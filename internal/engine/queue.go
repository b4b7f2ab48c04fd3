package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
)

// orderQueue holds the resting orders of one side, best price first.
// For buys the best price is the highest, for sells the lowest; ties are
// broken by creation time so matching stays price-time ordered.
type orderQueue struct {
	side   market.Side
	orders []*market.Order
}

func newOrderQueue(side market.Side) *orderQueue {
	return &orderQueue{side: side}
}

func (q *orderQueue) insert(o *market.Order) {
	q.orders = append(q.orders, o)
	q.sortOrders()
}

func (q *orderQueue) sortOrders() {
	sort.SliceStable(q.orders, func(i, j int) bool {
		a, b := q.orders[i], q.orders[j]
		if !a.Price.Equal(b.Price) {
			if q.side == market.Buy {
				return a.Price.GreaterThan(b.Price)
			}
			return a.Price.LessThan(b.Price)
		}
		return a.CreateTime < b.CreateTime
	})
}

func (q *orderQueue) len() int {
	return len(q.orders)
}

// snapshot returns clones of the resting orders in queue order.
func (q *orderQueue) snapshot() []*market.Order {
	out := make([]*market.Order, 0, len(q.orders))
	for _, o := range q.orders {
		out = append(out, o.Clone())
	}
	return out
}

func (q *orderQueue) remainSize() decimal.Decimal {
	total := decimal.Zero
	for _, o := range q.orders {
		total = total.Add(o.RemainSize)
	}
	return total
}

func (q *orderQueue) remove(id string) *market.Order {
	for i, o := range q.orders {
		if o.ID == id {
			q.orders = append(q.orders[:i], q.orders[i+1:]...)
			return o
		}
	}
	return nil
}

// matches reports whether a resting order at price would fill against a
// tick at tickPrice. The order price must be strictly better than the
// tick price; an equal-price tick never fills.
func (q *orderQueue) matches(orderPrice, tickPrice decimal.Decimal) bool {
	if q.side == market.Buy {
		return tickPrice.LessThan(orderPrice)
	}
	return tickPrice.GreaterThan(orderPrice)
}

// consume matches tick against the queue in price-time order and returns
// the orders the tick completed. Partial fills decrement RemainSize in
// place without emitting anything; only the fill that drives RemainSize
// to zero produces a completed order.
func (q *orderQueue) consume(tick market.Tick) []*market.Order {
	var filled []*market.Order
	tickRemain := tick.Size

	for tickRemain.IsPositive() && len(q.orders) > 0 {
		head := q.orders[0]
		if !q.matches(head.Price, tick.Price) {
			break
		}

		fill := decimal.Min(tickRemain, head.RemainSize)
		tickRemain = tickRemain.Sub(fill)
		head.RemainSize = head.RemainSize.Sub(fill)
		head.UpdateTime = tick.Time

		if head.RemainSize.IsZero() {
			head.Status = market.StatusFilled
			head.ExecutePrice = head.Price
			head.ExecuteSize = head.Size
			head.IsMaker = true
			q.orders = q.orders[1:]
			filled = append(filled, head)
		} else {
			head.Status = market.StatusPartiallyFilled
		}
	}

	return filled
}

// removeExpired drops orders created before the cutoff and returns them
// marked Expired.
func (q *orderQueue) removeExpired(now market.MicroSec, ttlSec int64) []*market.Order {
	cutoff := now - market.Sec(ttlSec)

	var expired []*market.Order
	kept := q.orders[:0]
	for _, o := range q.orders {
		if o.CreateTime < cutoff {
			o.Status = market.StatusExpired
			o.UpdateTime = now
			expired = append(expired, o)
		} else {
			kept = append(kept, o)
		}
	}
	q.orders = kept
	return expired
}
