package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

var (
	// defaultBaseURL can be overridden for testing.
	defaultBaseURL = "https://api.exchange.example.com"
)

// GetBaseURL returns the current base URL used by the client.
func GetBaseURL() string {
	return defaultBaseURL
}

// SetBaseURL sets the base URL for the client. This is intended for use
// in tests to redirect requests to a mock server.
func SetBaseURL(url string) {
	defaultBaseURL = url
}

// Client is the signed REST client for the exchange private API. It
// implements Gateway.
type Client struct {
	pair       string
	apiKey     string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new exchange API client for one trading pair.
func NewClient(pair, apiKey, secretKey string) *Client {
	return &Client{
		pair:       pair,
		apiKey:     apiKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type orderRequest struct {
	Pair      string `json:"pair"`
	OrderType string `json:"order_type"`
	Rate      string `json:"rate,omitempty"`
	Amount    string `json:"amount"`

	// ClientOrderID is our local order id. The venue echoes it on every
	// user-stream notification, which is how fills find their way back
	// to the session's copy of the order.
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type orderResponse struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id"`
	Error   string `json:"error"`
}

type cancelResponse struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id"`
	Error   string `json:"error"`
}

type balanceResponse struct {
	Success  bool   `json:"success"`
	Cash     string `json:"cash"`
	Position string `json:"position"`
	Error    string `json:"error"`
}

// newRequest builds a signed request. The signature covers nonce, url
// and body with HMAC-SHA256 over the secret key; the nonce is the
// current time in nanoseconds so it survives restarts.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body []byte) (*http.Request, error) {
	url := defaultBaseURL + endpoint

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	message := nonce + url + string(body)

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(message))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ACCESS-KEY", c.apiKey)
	req.Header.Set("ACCESS-NONCE", nonce)
	req.Header.Set("ACCESS-SIGNATURE", signature)

	return req, nil
}

// Submit implements Gateway. Limit orders carry a rate, market orders
// only an amount.
func (c *Client) Submit(ctx context.Context, o *market.Order) (string, error) {
	reqBody := orderRequest{
		Pair:          c.pair,
		Amount:        o.Size.String(),
		ClientOrderID: o.ID,
	}
	switch {
	case o.Type == market.Limit && o.Side == market.Buy:
		reqBody.OrderType = "buy"
		reqBody.Rate = o.Price.String()
	case o.Type == market.Limit && o.Side == market.Sell:
		reqBody.OrderType = "sell"
		reqBody.Rate = o.Price.String()
	case o.Side == market.Buy:
		reqBody.OrderType = "market_buy"
	default:
		reqBody.OrderType = "market_sell"
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/exchange/orders", jsonBody)
	if err != nil {
		return "", fmt.Errorf("failed to create new order request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute new order request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read new order response body (status: %d): %w", resp.StatusCode, err)
	}

	var orderResp orderResponse
	if err := json.Unmarshal(bodyBytes, &orderResp); err != nil {
		return "", fmt.Errorf("failed to decode new order response (status: %d, body: %s): %w", resp.StatusCode, string(bodyBytes), err)
	}
	if !orderResp.Success {
		if orderResp.Error != "" {
			return "", fmt.Errorf("exchange API error on new order: %s", orderResp.Error)
		}
		return "", fmt.Errorf("exchange API returned success=false for new order, status: %d", resp.StatusCode)
	}

	logger.Debugf("Submitted %s %s order %s as venue id %d", o.Side, o.Type, o.ID, orderResp.ID)
	return strconv.FormatInt(orderResp.ID, 10), nil
}

// Cancel implements Gateway.
func (c *Client) Cancel(ctx context.Context, venueID string) error {
	httpReq, err := c.newRequest(ctx, http.MethodDelete, "/api/exchange/orders/"+venueID, nil)
	if err != nil {
		return fmt.Errorf("failed to create cancel order request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute cancel order request: %w", err)
	}
	defer resp.Body.Close()

	var cancelResp cancelResponse
	if err := json.NewDecoder(resp.Body).Decode(&cancelResp); err != nil {
		return fmt.Errorf("failed to decode cancel order response (status: %d): %w", resp.StatusCode, err)
	}
	if !cancelResp.Success {
		if cancelResp.Error != "" {
			return fmt.Errorf("exchange API error on cancel order: %s", cancelResp.Error)
		}
		return fmt.Errorf("exchange API returned success=false for cancel order, status: %d, ID: %s", resp.StatusCode, venueID)
	}
	return nil
}

// Balance implements Gateway.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/api/accounts/balance", nil)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to create get balance request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to execute get balance request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to read get balance response body (status: %d): %w", resp.StatusCode, err)
	}

	var balanceResp balanceResponse
	if err := json.Unmarshal(bodyBytes, &balanceResp); err != nil {
		return Balance{}, fmt.Errorf("failed to decode get balance response (status: %d, body: %s): %w", resp.StatusCode, string(bodyBytes), err)
	}
	if !balanceResp.Success {
		if balanceResp.Error != "" {
			return Balance{}, fmt.Errorf("exchange API error on get balance: %s", balanceResp.Error)
		}
		return Balance{}, fmt.Errorf("exchange API returned success=false for get balance, status: %d", resp.StatusCode)
	}

	cash, err := decimal.NewFromString(balanceResp.Cash)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to parse balance cash %q: %w", balanceResp.Cash, err)
	}
	position, err := decimal.NewFromString(balanceResp.Position)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to parse balance position %q: %w", balanceResp.Position, err)
	}

	return Balance{Cash: cash, Position: position}, nil
}
