package market

import (
	"github.com/shopspring/decimal"
)

// Order is a resting or closed instruction together with its accounting
// columns. One Order value doubles as a log row: when a fill closes or
// flips a position the ledger emits copies of the order with the
// position/profit columns filled in.
type Order struct {
	ID         string      `json:"order_id"`
	SubID      int         `json:"sub_id"`
	Side       Side        `json:"side"`
	Type       OrderType   `json:"order_type"`
	Status     OrderStatus `json:"status"`
	CreateTime MicroSec    `json:"create_time"`
	UpdateTime MicroSec    `json:"update_time"`

	Price      decimal.Decimal `json:"order_price"`
	Size       decimal.Decimal `json:"order_size"`
	RemainSize decimal.Decimal `json:"remain_size"`

	// Execution columns, populated when the order completes.
	ExecutePrice decimal.Decimal `json:"execute_price"`
	ExecuteSize  decimal.Decimal `json:"execute_size"`
	IsMaker      bool            `json:"is_maker"`

	// Ledger columns, populated by the ledger when the fill is applied.
	OpenSize    decimal.Decimal `json:"open_size"`
	CloseSize   decimal.Decimal `json:"close_size"`
	Position    decimal.Decimal `json:"position"`
	Profit      decimal.Decimal `json:"profit"`
	Fee         decimal.Decimal `json:"fee"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	SumProfit   decimal.Decimal `json:"sum_profit"`

	LogID   int64  `json:"log_id"`
	Message string `json:"message,omitempty"`
}

// NewOrder creates a resting order in the New state.
func NewOrder(id string, side Side, orderType OrderType, price, size decimal.Decimal, createTime MicroSec) *Order {
	return &Order{
		ID:         id,
		Side:       side,
		Type:       orderType,
		Status:     StatusNew,
		Price:      price,
		Size:       size,
		RemainSize: size,
		CreateTime: createTime,
		UpdateTime: createTime,
	}
}

// Clone returns a copy of the order. Emitted log rows are clones so that
// later queue mutation never changes what was already reported.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// IsTerminal reports whether the order can no longer change state.
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// EventTime implements Event.
func (o *Order) EventTime() MicroSec {
	return o.UpdateTime
}
