package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

const (
	userStreamPingInterval = 30 * time.Second
	userStreamReadTimeout  = 60 * time.Second

	ordersChannel  = "orders"
	accountChannel = "account"
)

// ErrUserStreamDisconnected is returned when the user stream exhausts
// its reconnection attempts.
var ErrUserStreamDisconnected = errors.New("user stream disconnected")

// UserStream subscribes to the venue's private notification channels and
// surfaces them as market events: order transitions arrive as *Order
// keyed by our client order id, balance changes as AccountSnapshot. Lost
// connections are re-dialed with exponential backoff the same way the
// public trade feed is.
type UserStream struct {
	URL            string
	APIKey         string
	SecretKey      string
	MaxRetries     int
	InitialBackoff time.Duration
	ReadTimeout    time.Duration
}

type userAuthMessage struct {
	Type      string `json:"type"` // "auth"
	APIKey    string `json:"access_key"`
	Nonce     string `json:"access_nonce"`
	Signature string `json:"access_signature"`
}

// orderMessage is one order transition as the venue reports it.
type orderMessage struct {
	ClientOrderID  string `json:"client_order_id"`
	VenueID        int64  `json:"id"`
	Status         string `json:"status"`
	Side           string `json:"side"`
	OrderType      string `json:"order_type"`
	Timestamp      int64  `json:"timestamp"` // unix microseconds
	Rate           string `json:"rate"`
	Amount         string `json:"amount"`
	RemainAmount   string `json:"remain_amount"`
	ExecutedRate   string `json:"executed_rate"`
	ExecutedAmount string `json:"executed_amount"`
	Maker          bool   `json:"maker"`
}

// accountMessage is one balance update as the venue reports it.
type accountMessage struct {
	Timestamp    int64  `json:"timestamp"` // unix microseconds
	Position     string `json:"position"`
	AveragePrice string `json:"average_price"`
}

// Events streams the venue's private notifications. The event channel is
// closed when the server ends the stream or the context is cancelled; a
// terminal failure is reported on the error channel before closing.
func (u *UserStream) Events(ctx context.Context) (<-chan market.Event, <-chan error) {
	eventCh := make(chan market.Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		retries := 0
		backoff := u.InitialBackoff
		if backoff <= 0 {
			backoff = time.Second
		}
		maxRetries := u.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 5
		}

		for {
			err := u.runConnection(ctx, eventCh)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				return
			}

			retries++
			if retries > maxRetries {
				errCh <- fmt.Errorf("%w: %v", ErrUserStreamDisconnected, err)
				return
			}
			logger.Errorf("User stream lost (attempt %d/%d): %v. Retrying in %v...", retries, maxRetries, err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
		}
	}()

	return eventCh, errCh
}

func (u *UserStream) runConnection(ctx context.Context, eventCh chan<- market.Event) error {
	logger.Infof("Attempting to connect to user stream %s", u.URL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.URL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(u.authMessage()); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	logger.Infof("Authenticated on user stream %s", u.URL)

	readTimeout := u.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = userStreamReadTimeout
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

	pingTicker := time.NewTicker(userStreamPingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					logger.Errorf("User stream ping error: %v", err)
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
				logger.Info("User stream closed by server.")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		event, ok := u.parseFrame(message)
		if !ok {
			continue
		}
		select {
		case eventCh <- event:
		case <-ctx.Done():
			return nil
		}
	}
}

// authMessage signs the nonce and stream URL with the account secret,
// the same scheme the REST client uses.
func (u *UserStream) authMessage() userAuthMessage {
	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	mac := hmac.New(sha256.New, []byte(u.SecretKey))
	mac.Write([]byte(nonce + u.URL))
	return userAuthMessage{
		Type:      "auth",
		APIKey:    u.APIKey,
		Nonce:     nonce,
		Signature: hex.EncodeToString(mac.Sum(nil)),
	}
}

// parseFrame decodes a channel frame. Frames are two-element JSON arrays
// of channel name and payload; anything else is logged and dropped.
func (u *UserStream) parseFrame(message []byte) (market.Event, bool) {
	var frame []json.RawMessage
	if err := json.Unmarshal(message, &frame); err != nil || len(frame) != 2 {
		logger.Debugf("Ignoring non-channel user-stream message: %s", message)
		return nil, false
	}

	var channel string
	if err := json.Unmarshal(frame[0], &channel); err != nil {
		logger.Errorf("Error unmarshalling user-stream channel name: %v. Original message: %s", err, message)
		return nil, false
	}

	switch channel {
	case ordersChannel:
		return u.parseOrder(frame[1])
	case accountChannel:
		return u.parseAccount(frame[1])
	default:
		logger.Debugf("Received user-stream message for unknown channel: %s", channel)
		return nil, false
	}
}

func (u *UserStream) parseOrder(payload json.RawMessage) (market.Event, bool) {
	var msg orderMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.Errorf("Error unmarshalling order notification: %v. Payload: %s", err, payload)
		return nil, false
	}
	if msg.ClientOrderID == "" {
		logger.Warnf("Skipping order notification without client order id (venue id %d)", msg.VenueID)
		return nil, false
	}

	status, ok := parseOrderStatus(msg.Status)
	if !ok {
		logger.Warnf("Skipping order notification with unknown status %q", msg.Status)
		return nil, false
	}

	o := &market.Order{
		ID:         msg.ClientOrderID,
		Status:     status,
		UpdateTime: market.MicroSec(msg.Timestamp),
		IsMaker:    msg.Maker,
	}
	switch msg.Side {
	case "buy":
		o.Side = market.Buy
	case "sell":
		o.Side = market.Sell
	}
	if msg.OrderType == "market" {
		o.Type = market.Market
	} else {
		o.Type = market.Limit
	}

	// Decimal columns the venue may omit stay zero; the session falls
	// back to its own copy of the order.
	o.Price = parseDecimalField(msg.Rate, "rate")
	o.Size = parseDecimalField(msg.Amount, "amount")
	o.RemainSize = parseDecimalField(msg.RemainAmount, "remain_amount")
	o.ExecutePrice = parseDecimalField(msg.ExecutedRate, "executed_rate")
	o.ExecuteSize = parseDecimalField(msg.ExecutedAmount, "executed_amount")

	return o, true
}

func (u *UserStream) parseAccount(payload json.RawMessage) (market.Event, bool) {
	var msg accountMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.Errorf("Error unmarshalling account notification: %v. Payload: %s", err, payload)
		return nil, false
	}
	return market.AccountSnapshot{
		Time:         market.MicroSec(msg.Timestamp),
		Position:     parseDecimalField(msg.Position, "position"),
		AveragePrice: parseDecimalField(msg.AveragePrice, "average_price"),
	}, true
}

func parseOrderStatus(s string) (market.OrderStatus, bool) {
	switch s {
	case "new":
		return market.StatusNew, true
	case "partially_filled":
		return market.StatusPartiallyFilled, true
	case "filled":
		return market.StatusFilled, true
	case "cancelled":
		return market.StatusCancelled, true
	case "expired":
		return market.StatusExpired, true
	}
	return "", false
}

func parseDecimalField(s, name string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		logger.Errorf("Error parsing %s %q: %v", name, s, err)
		return decimal.Zero
	}
	return d
}
