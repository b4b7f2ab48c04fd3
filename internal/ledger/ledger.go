// Package ledger tracks the signed position, weighted average entry
// price and realized profit of one session. Fills flow in as completed
// orders and come back out as one or two accounting rows; the two-row
// case is the position flip ("doten"), where a single fill closes the
// open exposure and opens the remainder in the other direction.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
)

// Ledger is not safe for concurrent use; the owning session serialises
// access.
type Ledger struct {
	position     decimal.Decimal
	averagePrice decimal.Decimal

	sumProfit   decimal.Decimal
	totalProfit decimal.Decimal
	sumFee      decimal.Decimal

	makerFeeRate decimal.Decimal
	takerFeeRate decimal.Decimal

	logID int64
}

// New creates a ledger with the given fee rates.
func New(makerFeeRate, takerFeeRate decimal.Decimal) *Ledger {
	return &Ledger{
		makerFeeRate: makerFeeRate,
		takerFeeRate: takerFeeRate,
	}
}

// Position returns the current signed position size.
func (l *Ledger) Position() decimal.Decimal {
	return l.position
}

// AveragePrice returns the weighted average entry price of the open
// position, or zero when flat.
func (l *Ledger) AveragePrice() decimal.Decimal {
	return l.averagePrice
}

// SumProfit returns cumulative realized profit before fees.
func (l *Ledger) SumProfit() decimal.Decimal {
	return l.sumProfit
}

// TotalProfit returns cumulative realized profit net of fees.
func (l *Ledger) TotalProfit() decimal.Decimal {
	return l.totalProfit
}

// Snapshot captures the account state at the given time.
func (l *Ledger) Snapshot(t market.MicroSec) market.AccountSnapshot {
	return market.AccountSnapshot{
		Time:         t,
		Position:     l.position,
		AveragePrice: l.averagePrice,
		Profit:       l.sumProfit,
		Fee:          l.sumFee,
		TotalProfit:  l.totalProfit,
	}
}

// ApplyFill books a completed order and returns the resulting log rows.
// A fill that extends the position or reduces it without crossing zero
// produces one row. A fill that crosses zero produces two rows sharing
// the order id: the closing half keeps the order's sub id, the opening
// half gets sub id + 1, and both carry the same fill timestamp.
func (l *Ledger) ApplyFill(o *market.Order) []*market.Order {
	size := o.ExecuteSize
	price := o.ExecutePrice
	sign := o.Side.Sign()

	// Same direction, or flat: the whole fill opens.
	if l.position.IsZero() || l.position.Sign() == int(sign.IntPart()) {
		return []*market.Order{l.open(o, price, size)}
	}

	held := l.position.Abs()
	if size.LessThanOrEqual(held) {
		return []*market.Order{l.close(o, price, size)}
	}

	// Doten: close everything held, open the remainder the other way.
	closeRow := l.close(o, price, held)
	closeRow.ExecuteSize = held

	openRow := l.open(o, price, size.Sub(held))
	openRow.SubID = o.SubID + 1
	openRow.ExecuteSize = size.Sub(held)

	return []*market.Order{closeRow, openRow}
}

func (l *Ledger) open(o *market.Order, price, size decimal.Decimal) *market.Order {
	sign := o.Side.Sign()

	held := l.position.Abs()
	newHeld := held.Add(size)
	if held.IsZero() {
		l.averagePrice = price
	} else {
		l.averagePrice = l.averagePrice.Mul(held).Add(price.Mul(size)).Div(newHeld)
	}
	l.position = l.position.Add(size.Mul(sign))

	fee := l.fee(o, price, size)
	return l.row(o, func(row *market.Order) {
		row.OpenSize = size
		row.Profit = decimal.Zero
		row.Fee = fee
	})
}

func (l *Ledger) close(o *market.Order, price, size decimal.Decimal) *market.Order {
	posSign := decimal.NewFromInt(int64(l.position.Sign()))
	profit := price.Sub(l.averagePrice).Mul(size).Mul(posSign)

	l.position = l.position.Sub(size.Mul(posSign))
	if l.position.IsZero() {
		l.averagePrice = decimal.Zero
	}

	fee := l.fee(o, price, size)
	return l.row(o, func(row *market.Order) {
		row.CloseSize = size
		row.Profit = profit
		row.Fee = fee
	})
}

func (l *Ledger) fee(o *market.Order, price, size decimal.Decimal) decimal.Decimal {
	rate := l.takerFeeRate
	if o.IsMaker {
		rate = l.makerFeeRate
	}
	return price.Mul(size).Mul(rate)
}

// row clones the filled order, applies the per-fill columns and folds
// them into the running totals. Cumulative columns are carried forward,
// never recomputed.
func (l *Ledger) row(o *market.Order, fill func(*market.Order)) *market.Order {
	row := o.Clone()
	fill(row)

	row.TotalProfit = row.Profit.Sub(row.Fee)
	l.sumProfit = l.sumProfit.Add(row.Profit)
	l.sumFee = l.sumFee.Add(row.Fee)
	l.totalProfit = l.totalProfit.Add(row.TotalProfit)

	l.logID++
	row.LogID = l.logID
	row.Position = l.position
	row.SumProfit = l.sumProfit

	return row
}
