package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"threatrelay/pkg/models"
)

// WebhookSender posts alerts to a remote HTTP endpoint.
type WebhookSender struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// WebhookConfig configures the webhook sink.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(cfg WebhookConfig) (*WebhookSender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Send posts one alert. Transient failures (timeout or 5xx) are retried
// once; anything else fails immediately.
func (w *WebhookSender) Send(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(func() error {
		return w.post(ctx, body)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx))
}

func (w *WebhookSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("webhook request timed out: %w", err)
		}
		return fmt.Errorf("webhook request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook request failed with status %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return backoff.Permanent(fmt.Errorf("webhook request rejected with status %s", resp.Status))
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
