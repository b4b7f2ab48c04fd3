package session

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

func newTestSession() *Session {
	return New(Config{
		Symbol:          "BTCUSDT",
		PriceUnit:       dec("0.1"),
		MakerFeeRate:    dec("0.0002"),
		TakerFeeRate:    dec("0.00055"),
		MarketOrderSlip: dec("0.5"),
	})
}

func tick(at market.MicroSec, side market.Side, price, size string) market.Tick {
	return market.Tick{Time: at, Side: side, Price: dec(price), Size: dec(size)}
}

func TestEdgesFromTradePrints(t *testing.T) {
	s := newTestSession()
	assert.False(t, s.Initialized())

	s.OnTick(tick(market.Sec(1), market.Sell, "99.9", "1"))
	assert.False(t, s.Initialized(), "bid alone must not initialize")

	s.OnTick(tick(market.Sec(2), market.Buy, "100.1", "1"))
	require.True(t, s.Initialized())

	bid, ok := s.BestBid()
	require.True(t, ok)
	assertDec(t, "99.9", bid)

	ask, ok := s.BestAsk()
	require.True(t, ok)
	assertDec(t, "100.1", ask)
}

func TestCrossedEdgesAreCorrected(t *testing.T) {
	s := newTestSession()
	s.OnTick(tick(market.Sec(1), market.Sell, "100", "1"))
	s.OnTick(tick(market.Sec(2), market.Buy, "100.2", "1"))

	// A sell print above the ask drags the bid through it; the ask is
	// pushed one price unit back above.
	s.OnTick(tick(market.Sec(3), market.Sell, "100.5", "1"))
	bid, _ := s.BestBid()
	ask, _ := s.BestAsk()
	assertDec(t, "100.5", bid)
	assertDec(t, "100.6", ask)

	// And symmetrically for a buy print below the bid.
	s.OnTick(tick(market.Sec(4), market.Buy, "100.2", "1"))
	bid, _ = s.BestBid()
	ask, _ = s.BestAsk()
	assertDec(t, "100.1", bid)
	assertDec(t, "100.2", ask)
}

func TestOutOfOrderTickIsDropped(t *testing.T) {
	s := newTestSession()
	s.OnTick(tick(market.Sec(99), market.Sell, "100", "1"))
	s.OnTick(tick(market.Sec(100), market.Buy, "100.2", "1"))

	rows := s.OnTick(tick(market.Sec(50), market.Sell, "90", "1"))
	assert.Empty(t, rows)
	assert.Equal(t, market.Sec(100), s.CurrentTime(), "a stale tick must not rewind the clock")

	// The stale print touched neither the edges nor the candles.
	bid, _ := s.BestBid()
	assertDec(t, "100", bid)
	bars, err := s.OHLCV(60, 5)
	require.NoError(t, err)
	for _, bar := range bars {
		assert.False(t, bar.Low.Equal(dec("90")))
	}
}

func TestLimitOrderValidation(t *testing.T) {
	s := newTestSession()

	_, err := s.LimitOrder(market.Buy, dec("0"), dec("1"))
	assert.ErrorIs(t, err, ErrOrderRejected)

	_, err = s.LimitOrder(market.Buy, dec("100"), dec("-1"))
	assert.ErrorIs(t, err, ErrOrderRejected)

	_, err = s.LimitOrder(market.Side("Both"), dec("100"), dec("1"))
	assert.ErrorIs(t, err, ErrOrderRejected)

	o, err := s.LimitOrder(market.Buy, dec("100"), dec("1"))
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, market.StatusNew, o.Status)
	assertDec(t, "1", o.RemainSize)
}

// TestLimitFillLifecycle walks a buy order from placement through partial
// fills to completion, checking the position and that partial progress is
// never reported.
func TestLimitFillLifecycle(t *testing.T) {
	s := newTestSession()

	var events []market.Event
	s.SetSink(func(e market.Event) { events = append(events, e) })

	s.OnTick(tick(market.Sec(1), market.Sell, "100", "1"))
	s.OnTick(tick(market.Sec(2), market.Buy, "100.2", "1"))

	_, err := s.LimitOrder(market.Buy, dec("100"), dec("50"))
	require.NoError(t, err)

	// A sell at a higher price does not touch the buy.
	rows := s.OnTick(tick(market.Sec(3), market.Sell, "101", "10"))
	assert.Empty(t, rows)

	// Equal price never fills.
	rows = s.OnTick(tick(market.Sec(4), market.Sell, "100", "10"))
	assert.Empty(t, rows)

	// A strict print-through fills partially and stays silent.
	before := len(events)
	rows = s.OnTick(tick(market.Sec(5), market.Sell, "99.9", "1"))
	assert.Empty(t, rows)
	assert.Equal(t, before, len(events), "partial fill must not emit")
	assertDec(t, "49", s.RemainSize(market.Buy))

	// The completing fill reports the whole order at the order price.
	rows = s.OnTick(tick(market.Sec(6), market.Sell, "99.9", "49"))
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, market.StatusFilled, row.Status)
	assertDec(t, "100", row.ExecutePrice)
	assertDec(t, "50", row.ExecuteSize)
	assert.True(t, row.IsMaker)
	assertDec(t, "50", s.Position())
	assertDec(t, "100", s.AveragePrice())

	// The sink saw the row and then an account snapshot.
	require.GreaterOrEqual(t, len(events), 2)
	_, ok := events[len(events)-1].(market.AccountSnapshot)
	assert.True(t, ok, "last event after a fill must be the account snapshot")
}

func TestMarketOrder(t *testing.T) {
	s := newTestSession()

	_, err := s.MarketOrder(market.Buy, dec("1"))
	assert.ErrorIs(t, err, ErrMarketNotReady)

	s.OnTick(tick(market.Sec(1), market.Sell, "99.9", "1"))
	s.OnTick(tick(market.Sec(2), market.Buy, "100.1", "1"))

	rows, err := s.MarketOrder(market.Buy, dec("2"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, market.Market, row.Type)
	assert.False(t, row.IsMaker)
	assertDec(t, "100.6", row.ExecutePrice) // ask 100.1 + slip 0.5
	assertDec(t, "2", s.Position())

	rows, err = s.MarketOrder(market.Sell, dec("1"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assertDec(t, "99.4", rows[0].ExecutePrice) // bid 99.9 - slip 0.5
	assertDec(t, "1", s.Position())

	counts := s.Counts()
	assert.Equal(t, int64(1), counts.MarketBuy)
	assert.Equal(t, int64(1), counts.MarketSell)
}

func TestMarketOrderDoten(t *testing.T) {
	s := newTestSession()
	s.OnTick(tick(market.Sec(1), market.Sell, "100", "1"))
	s.OnTick(tick(market.Sec(2), market.Buy, "100.2", "1"))

	_, err := s.MarketOrder(market.Buy, dec("3"))
	require.NoError(t, err)

	rows, err := s.MarketOrder(market.Sell, dec("8"))
	require.NoError(t, err)
	require.Len(t, rows, 2, "a flip produces a close row and an open row")

	assertDec(t, "3", rows[0].CloseSize)
	assertDec(t, "5", rows[1].OpenSize)
	assert.Equal(t, rows[0].ID, rows[1].ID)
	assert.Equal(t, rows[0].SubID+1, rows[1].SubID)
	assertDec(t, "-5", s.Position())
}

func newVenueSession() *Session {
	return New(Config{
		Symbol:          "BTCUSDT",
		PriceUnit:       dec("0.1"),
		MakerFeeRate:    dec("0.0002"),
		TakerFeeRate:    dec("0.00055"),
		MarketOrderSlip: dec("0.5"),
		ExternalFills:   true,
	})
}

func TestExternalFillsSkipLocalMatching(t *testing.T) {
	s := newVenueSession()
	s.OnTick(tick(market.Sec(1), market.Sell, "100", "1"))
	s.OnTick(tick(market.Sec(2), market.Buy, "100.2", "1"))

	_, err := s.LimitOrder(market.Buy, dec("100"), dec("1"))
	require.NoError(t, err)

	// A print straight through the order price must not fill it; the
	// venue owns execution.
	rows := s.OnTick(tick(market.Sec(3), market.Sell, "99", "1"))
	assert.Empty(t, rows)
	assertDec(t, "0", s.Position())
	require.Len(t, s.Buys(), 1)
	assert.Equal(t, market.StatusNew, s.Buys()[0].Status)
}

func TestExternalFillsMarketOrderIsSubmittedNotBooked(t *testing.T) {
	s := newVenueSession()

	var orders []*market.Order
	s.SetSink(func(e market.Event) {
		if o, ok := e.(*market.Order); ok {
			orders = append(orders, o)
		}
	})

	s.OnTick(tick(market.Sec(1), market.Sell, "99.9", "1"))
	s.OnTick(tick(market.Sec(2), market.Buy, "100.1", "1"))

	rows, err := s.MarketOrder(market.Buy, dec("1"))
	require.NoError(t, err)
	assert.Empty(t, rows, "no local fill is simulated")
	assertDec(t, "0", s.Position())

	require.Len(t, orders, 1)
	assert.Equal(t, market.StatusNew, orders[0].Status)
	assert.Equal(t, market.Market, orders[0].Type)
	assertDec(t, "100.6", orders[0].Price) // ask 100.1 + slip 0.5
	assert.Equal(t, int64(1), s.Counts().MarketBuy)
}

func TestVenueFillBooksReportedExecution(t *testing.T) {
	s := newVenueSession()

	var events []market.Event
	s.SetSink(func(e market.Event) { events = append(events, e) })

	s.OnTick(tick(market.Sec(1), market.Sell, "100", "1"))
	s.OnTick(tick(market.Sec(2), market.Buy, "100.2", "1"))

	o, err := s.LimitOrder(market.Buy, dec("100"), dec("2"))
	require.NoError(t, err)

	rows := s.OnVenueOrder(&market.Order{
		ID:           o.ID,
		Status:       market.StatusFilled,
		UpdateTime:   market.Sec(10),
		ExecutePrice: dec("99.8"),
		ExecuteSize:  dec("2"),
		IsMaker:      true,
	})
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, market.StatusFilled, row.Status)
	// The venue's execution price wins over the order price.
	assertDec(t, "99.8", row.ExecutePrice)
	assert.True(t, row.IsMaker)
	assertDec(t, "2", s.Position())
	assertDec(t, "99.8", s.AveragePrice())
	assert.Empty(t, s.Buys(), "the filled copy left the local book")
	assert.Equal(t, market.Sec(10), s.CurrentTime())

	_, ok := events[len(events)-1].(market.AccountSnapshot)
	assert.True(t, ok, "a venue fill reports the account snapshot")
}

func TestVenueMarketFillWithoutLocalCopy(t *testing.T) {
	s := newVenueSession()
	s.OnTick(tick(market.Sec(1), market.Sell, "99.9", "1"))
	s.OnTick(tick(market.Sec(2), market.Buy, "100.1", "1"))

	var submitted *market.Order
	s.SetSink(func(e market.Event) {
		if o, ok := e.(*market.Order); ok && o.Status == market.StatusNew {
			submitted = o
		}
	})
	_, err := s.MarketOrder(market.Buy, dec("1"))
	require.NoError(t, err)
	require.NotNil(t, submitted)

	rows := s.OnVenueOrder(&market.Order{
		ID:         submitted.ID,
		Side:       market.Buy,
		Type:       market.Market,
		Status:     market.StatusFilled,
		UpdateTime: market.Sec(3),
		Price:      submitted.Price,
		Size:       submitted.Size,
	})
	require.Len(t, rows, 1)
	// The venue omitted execution columns; the submitted price stands in.
	assertDec(t, "100.6", rows[0].ExecutePrice)
	assertDec(t, "1", s.Position())
}

func TestVenuePartialFillShrinksRestingCopy(t *testing.T) {
	s := newVenueSession()

	var emitted int
	s.SetSink(func(market.Event) { emitted++ })

	s.OnTick(tick(market.Sec(1), market.Sell, "100", "1"))
	o, err := s.LimitOrder(market.Buy, dec("99"), dec("5"))
	require.NoError(t, err)

	before := emitted
	rows := s.OnVenueOrder(&market.Order{
		ID:         o.ID,
		Status:     market.StatusPartiallyFilled,
		UpdateTime: market.Sec(2),
		RemainSize: dec("3"),
	})
	assert.Empty(t, rows)
	assert.Equal(t, before, emitted, "partial progress stays silent")
	assertDec(t, "3", s.RemainSize(market.Buy))
	assertDec(t, "0", s.Position())
}

func TestVenueCancelRemovesLocalCopy(t *testing.T) {
	s := newVenueSession()
	s.OnTick(tick(market.Sec(1), market.Sell, "100", "1"))

	o, err := s.LimitOrder(market.Buy, dec("99"), dec("1"))
	require.NoError(t, err)

	rows := s.OnVenueOrder(&market.Order{ID: o.ID, Status: market.StatusCancelled, UpdateTime: market.Sec(2)})
	require.Len(t, rows, 1)
	assert.Equal(t, market.StatusCancelled, rows[0].Status)
	assert.Empty(t, s.Buys())

	// Unknown ids and plain acknowledgements are no-ops.
	assert.Empty(t, s.OnVenueOrder(&market.Order{ID: "missing", Status: market.StatusCancelled}))
	assert.Empty(t, s.OnVenueOrder(&market.Order{ID: o.ID, Status: market.StatusNew}))
}

func TestVenueEventsNeverRewindClock(t *testing.T) {
	s := newVenueSession()
	s.OnTick(tick(market.Sec(100), market.Sell, "100", "1"))

	s.OnVenueOrder(&market.Order{ID: "stale", Status: market.StatusCancelled, UpdateTime: market.Sec(50)})
	assert.Equal(t, market.Sec(100), s.CurrentTime())

	s.OnVenueAccount(market.AccountSnapshot{Time: market.Sec(40)})
	assert.Equal(t, market.Sec(100), s.CurrentTime())

	s.OnVenueAccount(market.AccountSnapshot{Time: market.Sec(120)})
	assert.Equal(t, market.Sec(120), s.CurrentTime())
}

func TestCancelAndExpire(t *testing.T) {
	s := newTestSession()
	s.OnTick(tick(market.Sec(1), market.Sell, "100", "1"))

	o1, err := s.LimitOrder(market.Buy, dec("99"), dec("1"))
	require.NoError(t, err)

	cancelled, err := s.CancelOrder(o1.ID)
	require.NoError(t, err)
	assert.Equal(t, market.StatusCancelled, cancelled.Status)

	_, err = s.CancelOrder("missing")
	assert.Error(t, err)

	o2, err := s.LimitOrder(market.Buy, dec("98"), dec("1"))
	require.NoError(t, err)

	s.OnTick(tick(market.Sec(120), market.Sell, "100", "1"))
	expired := s.ExpireOrders(60)
	require.Len(t, expired, 1)
	assert.Equal(t, o2.ID, expired[0].ID)
	assert.Equal(t, market.StatusExpired, expired[0].Status)
	assert.Empty(t, s.Buys())
}

func TestOHLCVThroughSession(t *testing.T) {
	s := newTestSession()
	s.OnTick(tick(market.Sec(0), market.Sell, "100", "1"))
	s.OnTick(tick(market.Sec(10), market.Buy, "101", "2"))
	s.OnTick(tick(market.Sec(65), market.Buy, "102", "1"))

	bars, err := s.OHLCV(60, 5)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assertDec(t, "100", bars[0].Open)
	assertDec(t, "101", bars[0].Close)
	assertDec(t, "3", bars[0].Volume)
	assert.False(t, bars[0].Unconfirmed)
	assert.True(t, bars[1].Unconfirmed)

	_, err = s.OHLCV(60, 0)
	assert.Error(t, err)
}

func TestIndicatorReachesSink(t *testing.T) {
	s := newTestSession()

	var got []market.Indicator
	s.SetSink(func(e market.Event) {
		if ind, ok := e.(market.Indicator); ok {
			got = append(got, ind)
		}
	})

	s.OnTick(tick(market.Sec(5), market.Sell, "100", "1"))
	s.LogIndicator("sma_fast", 100.25)

	require.Len(t, got, 1)
	assert.Equal(t, "sma_fast", got[0].Name)
	assert.Equal(t, 100.25, got[0].Value)
	assert.Equal(t, market.Sec(5), got[0].Time)
}
