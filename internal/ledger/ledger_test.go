package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/tick-session-engine/internal/market"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

func fill(id string, sub int, side market.Side, price, size string, t market.MicroSec, maker bool) *market.Order {
	o := market.NewOrder(id, side, market.Limit, dec(price), dec(size), t)
	o.Status = market.StatusFilled
	o.RemainSize = decimal.Zero
	o.ExecutePrice = dec(price)
	o.ExecuteSize = dec(size)
	o.UpdateTime = t
	o.SubID = sub
	o.IsMaker = maker
	return o
}

func noFees() *Ledger {
	return New(decimal.Zero, decimal.Zero)
}

func TestOpenExtendsWithWeightedAverage(t *testing.T) {
	l := noFees()

	rows := l.ApplyFill(fill("a", 0, market.Buy, "100", "10", market.Sec(1), true))
	require.Len(t, rows, 1)
	assertDec(t, "10", l.Position())
	assertDec(t, "100", l.AveragePrice())
	assertDec(t, "10", rows[0].OpenSize)
	assert.True(t, rows[0].Profit.IsZero())

	l.ApplyFill(fill("b", 0, market.Buy, "110", "10", market.Sec(2), true))
	assertDec(t, "20", l.Position())
	assertDec(t, "105", l.AveragePrice())
}

func TestCloseRealizesProfit(t *testing.T) {
	l := noFees()
	l.ApplyFill(fill("a", 0, market.Buy, "100", "10", market.Sec(1), true))

	rows := l.ApplyFill(fill("b", 0, market.Sell, "104", "4", market.Sec(2), true))
	require.Len(t, rows, 1)
	assertDec(t, "16", rows[0].Profit)
	assertDec(t, "4", rows[0].CloseSize)
	assertDec(t, "6", l.Position())
	// Average price of the remainder is untouched by a reducing fill.
	assertDec(t, "100", l.AveragePrice())

	rows = l.ApplyFill(fill("c", 0, market.Sell, "99", "6", market.Sec(3), true))
	require.Len(t, rows, 1)
	assertDec(t, "-6", rows[0].Profit)
	assert.True(t, l.Position().IsZero())
	assert.True(t, l.AveragePrice().IsZero())
	assertDec(t, "10", l.SumProfit())
}

func TestShortSideProfitSign(t *testing.T) {
	l := noFees()
	l.ApplyFill(fill("a", 0, market.Sell, "100", "5", market.Sec(1), true))
	assertDec(t, "-5", l.Position())

	// Buying back lower is a gain for a short.
	rows := l.ApplyFill(fill("b", 0, market.Buy, "98", "5", market.Sec(2), true))
	require.Len(t, rows, 1)
	assertDec(t, "10", rows[0].Profit)
	assert.True(t, l.Position().IsZero())
}

func TestDotenSplitsIntoCloseThenOpen(t *testing.T) {
	l := noFees()
	l.ApplyFill(fill("a", 0, market.Buy, "100", "3", market.Sec(1), true))

	rows := l.ApplyFill(fill("b", 0, market.Sell, "105", "8", market.Sec(2), true))
	require.Len(t, rows, 2)

	closeRow, openRow := rows[0], rows[1]
	assert.Equal(t, "b", closeRow.ID)
	assert.Equal(t, "b", openRow.ID)
	assert.Equal(t, 0, closeRow.SubID)
	assert.Equal(t, 1, openRow.SubID)
	assert.Equal(t, closeRow.UpdateTime, openRow.UpdateTime)

	assertDec(t, "3", closeRow.CloseSize)
	assertDec(t, "15", closeRow.Profit)
	assert.True(t, closeRow.Position.IsZero())

	assertDec(t, "5", openRow.OpenSize)
	assert.True(t, openRow.Profit.IsZero())
	assertDec(t, "-5", openRow.Position)

	assertDec(t, "-5", l.Position())
	assertDec(t, "105", l.AveragePrice())
}

func TestFeesReduceTotalProfit(t *testing.T) {
	l := New(dec("0.0002"), dec("0.00055"))

	rows := l.ApplyFill(fill("a", 0, market.Buy, "1000", "2", market.Sec(1), true))
	require.Len(t, rows, 1)
	assertDec(t, "0.4", rows[0].Fee) // 1000 * 2 * 0.0002
	assertDec(t, "-0.4", rows[0].TotalProfit)

	rows = l.ApplyFill(fill("b", 0, market.Sell, "1010", "2", market.Sec(2), false))
	require.Len(t, rows, 1)
	assertDec(t, "20", rows[0].Profit)
	assertDec(t, "1.111", rows[0].Fee) // 1010 * 2 * 0.00055
	assertDec(t, "18.889", rows[0].TotalProfit)

	assertDec(t, "20", l.SumProfit())
	assertDec(t, "18.489", l.TotalProfit())
}

func TestCumulativeColumnsCarryForward(t *testing.T) {
	l := noFees()
	l.ApplyFill(fill("a", 0, market.Buy, "100", "1", market.Sec(1), true))
	r1 := l.ApplyFill(fill("b", 0, market.Sell, "110", "1", market.Sec(2), true))
	l.ApplyFill(fill("c", 0, market.Buy, "100", "1", market.Sec(3), true))
	r2 := l.ApplyFill(fill("d", 0, market.Sell, "95", "1", market.Sec(4), true))

	assertDec(t, "10", r1[0].SumProfit)
	assertDec(t, "5", r2[0].SumProfit)
	assert.Equal(t, int64(4), r2[0].LogID)
}

func TestSnapshot(t *testing.T) {
	l := New(dec("0.001"), dec("0.001"))
	l.ApplyFill(fill("a", 0, market.Buy, "100", "2", market.Sec(1), true))
	l.ApplyFill(fill("b", 0, market.Sell, "105", "1", market.Sec(2), true))

	snap := l.Snapshot(market.Sec(2))
	assert.Equal(t, market.Sec(2), snap.Time)
	assertDec(t, "1", snap.Position)
	assertDec(t, "100", snap.AveragePrice)
	assertDec(t, "5", snap.Profit)
	assertDec(t, "0.305", snap.Fee) // 0.2 + 0.105
	assertDec(t, "4.695", snap.TotalProfit)
}
