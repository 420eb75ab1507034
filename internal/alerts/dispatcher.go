package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"threatrelay/internal/logger"
	"threatrelay/pkg/models"
)

// ErrDeliveryFailed reports that no configured sink accepted the alert.
// Callers log it and continue; alerting is best-effort by contract.
var ErrDeliveryFailed = errors.New("alert delivery failed")

// Dispatcher fans an alert out to the configured sinks. Both sinks are
// optional and independent; with neither configured, Send is a no-op
// success. Concurrent sends may interleave, no ordering is guaranteed.
type Dispatcher struct {
	webhook *WebhookSender
	email   *EmailSender
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. Either sender may be nil.
func NewDispatcher(webhook *WebhookSender, email *EmailSender) *Dispatcher {
	return &Dispatcher{webhook: webhook, email: email, now: time.Now}
}

// Send delivers one alert to every configured sink. The webhook gets one
// retry on transient failure inside a 10s budget; email is a single
// attempt. A receipt is always returned, even on delivery failure.
func (d *Dispatcher) Send(ctx context.Context, alert *models.Alert) (*models.AlertReceipt, error) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = d.now().UTC()
	}
	if alert.Source == "" {
		alert.Source = "threatrelay"
	}

	receipt := &models.AlertReceipt{
		AlertID:      uuid.NewString(),
		DispatchedAt: d.now().UTC(),
	}

	if d.webhook == nil && d.email == nil {
		return receipt, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var webhookErr, emailErr error
	if d.webhook != nil {
		if webhookErr = d.webhook.Send(sendCtx, alert); webhookErr == nil {
			receipt.WebhookSent = true
		} else {
			logger.Warnf("Alert webhook delivery failed: %v", webhookErr)
		}
	}
	if d.email != nil {
		if emailErr = d.email.Send(sendCtx, alert); emailErr == nil {
			receipt.EmailSent = true
		} else {
			logger.Warnf("Alert email delivery failed: %v", emailErr)
		}
	}

	if !receipt.WebhookSent && !receipt.EmailSent {
		return receipt, fmt.Errorf("%w: level=%s type=%s", ErrDeliveryFailed, alert.Level, alert.Type)
	}
	return receipt, nil
}
