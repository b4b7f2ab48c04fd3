package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultReadTimeout  = 60 * time.Second
)

// WebSocketSource subscribes to the exchange trade channel and streams
// the executions as ticks. Lost connections are re-dialed with
// exponential backoff; the stream only fails after MaxRetries
// consecutive dial failures. Trades that would move time backwards,
// including replays after a reconnect, are dropped.
type WebSocketSource struct {
	URL            string
	Channel        string
	MaxRetries     int
	InitialBackoff time.Duration
	ReadTimeout    time.Duration
}

// tradeMessage is one execution as the exchange reports it. Prices and
// sizes arrive as strings and are parsed into decimals untouched.
type tradeMessage struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // unix microseconds
	Side      string `json:"taker_side"`
	Price     string `json:"rate"`
	Size      string `json:"amount"`
}

type subscriptionMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Stream implements Source.
func (w *WebSocketSource) Stream(ctx context.Context) (<-chan market.Tick, <-chan error) {
	tickCh := make(chan market.Tick)
	errCh := make(chan error, 1)

	go func() {
		defer close(tickCh)
		defer close(errCh)

		var lastTime market.MicroSec
		retries := 0
		backoff := w.InitialBackoff
		if backoff <= 0 {
			backoff = time.Second
		}
		maxRetries := w.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 5
		}

		for {
			err := w.runConnection(ctx, tickCh, &lastTime)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				// Server closed the stream cleanly.
				return
			}

			retries++
			if retries > maxRetries {
				errCh <- fmt.Errorf("%w: %v", ErrFeedDisconnected, err)
				return
			}
			logger.Errorf("Feed connection lost (attempt %d/%d): %v. Retrying in %v...", retries, maxRetries, err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
		}
	}()

	return tickCh, errCh
}

// runConnection dials, subscribes and pumps trades until the connection
// drops or the context is cancelled. lastTime carries the high-water
// timestamp across reconnects so a replayed trade never moves the
// stream backwards.
func (w *WebSocketSource) runConnection(ctx context.Context, tickCh chan<- market.Tick, lastTime *market.MicroSec) error {
	logger.Infof("Attempting to connect to %s", w.URL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.URL, err)
	}
	defer conn.Close()
	logger.Infof("Successfully connected to %s", w.URL)

	if err := conn.WriteJSON(subscriptionMessage{Type: "subscribe", Channel: w.Channel}); err != nil {
		return fmt.Errorf("subscribe %s: %w", w.Channel, err)
	}
	logger.Infof("Subscribed to channel: %s", w.Channel)

	readTimeout := w.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Close the connection on cancellation so the read loop unblocks.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	pingTicker := time.NewTicker(defaultPingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					logger.Errorf("Ping error: %v", err)
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("Connection closed by server.")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		tick, ok := w.parseMessage(message)
		if !ok {
			continue
		}
		if tick.Time < *lastTime {
			logger.Warnf("Skipping out-of-order trade: %s < %s", tick.Time, *lastTime)
			continue
		}
		*lastTime = tick.Time
		select {
		case tickCh <- tick:
		case <-ctx.Done():
			return nil
		}
	}
}

// parseMessage decodes a channel frame. Frames are two-element JSON
// arrays of channel name and payload; anything else is logged and
// dropped.
func (w *WebSocketSource) parseMessage(message []byte) (market.Tick, bool) {
	var frame []json.RawMessage
	if err := json.Unmarshal(message, &frame); err != nil || len(frame) != 2 {
		logger.Debugf("Ignoring non-channel message: %s", message)
		return market.Tick{}, false
	}

	var channel string
	if err := json.Unmarshal(frame[0], &channel); err != nil {
		logger.Errorf("Error unmarshalling channel name: %v. Original message: %s", err, message)
		return market.Tick{}, false
	}
	if channel != w.Channel {
		logger.Debugf("Received message for non-subscribed channel: %s", channel)
		return market.Tick{}, false
	}

	var trade tradeMessage
	if err := json.Unmarshal(frame[1], &trade); err != nil {
		logger.Errorf("Error unmarshalling trade for channel %s: %v. Trade JSON: %s", channel, err, frame[1])
		return market.Tick{}, false
	}

	var side market.Side
	switch trade.Side {
	case "buy":
		side = market.Buy
	case "sell":
		side = market.Sell
	default:
		logger.Warnf("Skipping trade with unknown side %q", trade.Side)
		return market.Tick{}, false
	}

	price, err := decimal.NewFromString(trade.Price)
	if err != nil {
		logger.Errorf("Error parsing trade rate %q: %v", trade.Price, err)
		return market.Tick{}, false
	}
	size, err := decimal.NewFromString(trade.Size)
	if err != nil {
		logger.Errorf("Error parsing trade amount %q: %v", trade.Size, err)
		return market.Tick{}, false
	}

	return market.Tick{
		Time:  market.MicroSec(trade.Timestamp),
		Side:  side,
		Price: price,
		Size:  size,
		ID:    trade.ID,
	}, true
}
