package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Sender delivers one alert to a channel URL. Delivery is at-least-once
// at best: failures are retried a few times and then dropped.
type Sender interface {
	Send(ctx context.Context, channelURL string, alert Alert) error
}

// WebhookSender POSTs alerts as JSON to the profile's channel URL.
type WebhookSender struct {
	client *retryablehttp.Client
	logger *slog.Logger
}

// NewWebhookSender creates a sender with bounded retries.
func NewWebhookSender(logger *slog.Logger) *WebhookSender {
	if logger == nil {
		logger = slog.Default()
	}
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = nil
	return &WebhookSender{client: c, logger: logger}
}

// Send delivers the alert. A non-2xx response after retries is an error.
func (s *WebhookSender) Send(ctx context.Context, channelURL string, alert Alert) error {
	if channelURL == "" {
		return fmt.Errorf("notify: no channel URL configured")
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("notify: marshal alert: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, channelURL,
		bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: deliver to %s: %w", channelURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: channel returned %d", resp.StatusCode)
	}
	s.logger.Info("notify: alert delivered", "title", alert.Title)
	return nil
}
