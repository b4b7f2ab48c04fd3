// Package market defines the basic market-data and order types shared by
// the matching engine, ledger, aggregator and runner.
package market

import (
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or order.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign returns +1 for Buy and -1 for Sell, used for signed position math.
func (s Side) Sign() decimal.Decimal {
	if s == Buy {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	Limit  OrderType = "Limit"
	Market OrderType = "Market"
)

// OrderStatus is the lifecycle state of an order.
//
// Transitions: New -> {PartiallyFilled -> Filled} | Cancelled | Expired.
// Terminal states are never left.
type OrderStatus string

const (
	StatusNew             OrderStatus = "New"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCancelled       OrderStatus = "Cancelled"
	StatusExpired         OrderStatus = "Expired"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Tick is one executed trade reported by the market. Ticks are immutable
// and delivered to a session in non-decreasing Time order.
type Tick struct {
	Time  MicroSec        `json:"time"`
	Side  Side            `json:"side"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	ID    string          `json:"id,omitempty"`
}

// EventTime implements Event.
func (t Tick) EventTime() MicroSec {
	return t.Time
}

// AccountSnapshot is the simulated account state after a fill, or the
// gateway-reported balance in production.
type AccountSnapshot struct {
	Time         MicroSec        `json:"time"`
	Position     decimal.Decimal `json:"position"`
	AveragePrice decimal.Decimal `json:"average_price"`
	Profit       decimal.Decimal `json:"profit"`
	Fee          decimal.Decimal `json:"fee"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
}

// EventTime implements Event.
func (a AccountSnapshot) EventTime() MicroSec {
	return a.Time
}

// Indicator is a named strategy value recorded alongside the run log,
// for later plotting against the price series.
type Indicator struct {
	Time  MicroSec `json:"t"`
	Name  string   `json:"name"`
	Value float64  `json:"value"`
}

// EventTime implements Event.
func (i Indicator) EventTime() MicroSec {
	return i.Time
}

// Event is anything that can flow through the session event queue.
// Concrete kinds are Tick, *Order, AccountSnapshot and Indicator.
type Event interface {
	EventTime() MicroSec
}
