// Package gateway places orders at the venue. Backtest and dry runs use
// the Nop implementation so strategy code is identical across modes; a
// real run talks to the exchange REST API.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
)

// Gateway submits and cancels venue orders.
type Gateway interface {
	// Submit places an order and returns the venue-assigned id.
	Submit(ctx context.Context, o *market.Order) (string, error)

	// Cancel cancels a resting venue order by its venue id.
	Cancel(ctx context.Context, venueID string) error

	// Balance fetches the venue account balance.
	Balance(ctx context.Context) (Balance, error)
}

// Balance is the venue-reported account state.
type Balance struct {
	Cash     decimal.Decimal
	Position decimal.Decimal
}

// Nop accepts everything and touches nothing. Backtest and dry runs
// simulate fills internally, so the venue leg is a no-op.
type Nop struct {
	submitted int64
	cancelled int64
}

// Submit implements Gateway.
func (n *Nop) Submit(_ context.Context, o *market.Order) (string, error) {
	n.submitted++
	return o.ID, nil
}

// Cancel implements Gateway.
func (n *Nop) Cancel(context.Context, string) error {
	n.cancelled++
	return nil
}

// Balance implements Gateway.
func (n *Nop) Balance(context.Context) (Balance, error) {
	return Balance{}, nil
}

// Submitted returns how many orders were accepted.
func (n *Nop) Submitted() int64 {
	return n.submitted
}
