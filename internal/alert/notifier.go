// Package alert handles sending failure notifications.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/your-org/tick-session-engine/pkg/logger"
)

// Notifier is the interface for sending alert messages.
type Notifier interface {
	Send(message string) error
	Close() error
}

// NoOpNotifier is a notifier that does nothing. It is used when
// alerting is disabled.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing and returns nil.
func (n *NoOpNotifier) Send(message string) error {
	return nil
}

// Close does nothing and returns nil.
func (n *NoOpNotifier) Close() error {
	return nil
}

// WebhookNotifier posts alert messages as JSON to a webhook URL, the
// format Slack-compatible endpoints accept.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier creates a notifier for the given webhook URL.
func NewWebhookNotifier(url string) (*WebhookNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL must be configured")
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type webhookPayload struct {
	Text string `json:"text"`
}

// Send posts the message. Failures are returned, not retried; alerting
// is best effort.
func (n *WebhookNotifier) Send(message string) error {
	body, err := json.Marshal(webhookPayload{Text: message})
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	resp, err := n.httpClient.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	logger.Debugf("Alert sent: %s", message)
	return nil
}

// Close does nothing; the notifier holds no connection state.
func (n *WebhookNotifier) Close() error {
	return nil
}

// FromConfig returns a webhook notifier when a URL is configured and
// the no-op notifier otherwise.
func FromConfig(webhookURL string) Notifier {
	if webhookURL == "" {
		return NewNoOpNotifier()
	}
	n, err := NewWebhookNotifier(webhookURL)
	if err != nil {
		logger.Warnf("Falling back to no-op notifier: %v", err)
		return NewNoOpNotifier()
	}
	return n
}
