package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/tick-session-engine/internal/market"
)

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// newTradeServer starts a websocket server that waits for a subscribe
// message and then sends the given frames before closing normally.
func newTradeServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var sub subscriptionMessage
		require.NoError(t, conn.ReadJSON(&sub))
		assert.Equal(t, "subscribe", sub.Type)

		for _, frame := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketStreamParsesTrades(t *testing.T) {
	srv := newTradeServer(t, []string{
		`["btc_usdt-trades",{"id":"1","timestamp":1000000,"taker_side":"buy","rate":"100.5","amount":"0.25"}]`,
		`["btc_usdt-trades",{"id":"2","timestamp":2000000,"taker_side":"sell","rate":"100.4","amount":"1"}]`,
	})
	defer srv.Close()

	src := &WebSocketSource{
		URL:            wsURL(srv),
		Channel:        "btc_usdt-trades",
		MaxRetries:     1,
		InitialBackoff: 10 * time.Millisecond,
	}

	ticks, err := collect(t, src)
	require.NoError(t, err)
	require.Len(t, ticks, 2)

	assert.Equal(t, market.Sec(1), ticks[0].Time)
	assert.Equal(t, market.Buy, ticks[0].Side)
	assert.True(t, ticks[0].Price.Equal(mustDec("100.5")))
	assert.True(t, ticks[0].Size.Equal(mustDec("0.25")))
	assert.Equal(t, market.Sell, ticks[1].Side)
}

func TestWebSocketStreamIgnoresOtherChannels(t *testing.T) {
	srv := newTradeServer(t, []string{
		`["btc_usdt-orderbook",{"bids":[],"asks":[]}]`,
		`"keepalive"`,
		`["btc_usdt-trades",{"id":"1","timestamp":1000000,"taker_side":"buy","rate":"100","amount":"1"}]`,
		`["btc_usdt-trades",{"id":"2","timestamp":2000000,"taker_side":"hold","rate":"100","amount":"1"}]`,
	})
	defer srv.Close()

	src := &WebSocketSource{
		URL:        wsURL(srv),
		Channel:    "btc_usdt-trades",
		MaxRetries: 1,
	}

	ticks, err := collect(t, src)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "1", ticks[0].ID)
}

func TestWebSocketStreamDropsOutOfOrderTrades(t *testing.T) {
	srv := newTradeServer(t, []string{
		`["btc_usdt-trades",{"id":"1","timestamp":100000000,"taker_side":"buy","rate":"100","amount":"1"}]`,
		`["btc_usdt-trades",{"id":"2","timestamp":50000000,"taker_side":"sell","rate":"99","amount":"1"}]`,
		`["btc_usdt-trades",{"id":"3","timestamp":150000000,"taker_side":"sell","rate":"101","amount":"1"}]`,
	})
	defer srv.Close()

	src := &WebSocketSource{
		URL:        wsURL(srv),
		Channel:    "btc_usdt-trades",
		MaxRetries: 1,
	}

	ticks, err := collect(t, src)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, market.Sec(100), ticks[0].Time)
	assert.Equal(t, market.Sec(150), ticks[1].Time)
}

func TestWebSocketStreamReportsDialFailure(t *testing.T) {
	src := &WebSocketSource{
		URL:            "ws://127.0.0.1:1", // nothing listens here
		Channel:        "btc_usdt-trades",
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
	}

	_, err := collect(t, src)
	assert.ErrorIs(t, err, ErrFeedDisconnected)
}

func TestWebSocketStreamStopsOnCancel(t *testing.T) {
	srv := newTradeServer(t, nil)
	defer srv.Close()

	src := &WebSocketSource{
		URL:     wsURL(srv),
		Channel: "btc_usdt-trades",
	}

	ctx, cancel := context.WithCancel(context.Background())
	tickCh, _ := src.Stream(ctx)
	cancel()

	select {
	case _, open := <-tickCh:
		if open {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}
