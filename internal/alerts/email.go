package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"threatrelay/pkg/models"
)

// EmailSender delivers alerts over SMTP. Delivery is fire-and-forget:
// one attempt, no retry.
type EmailSender struct {
	smtpAddr string
	from     string
	to       string
	send     func(addr, from string, to []string, msg []byte) error
}

// EmailConfig configures the email sink.
type EmailConfig struct {
	SMTPAddr string
	From     string
	To       string
}

// NewEmailSender creates an email sender.
func NewEmailSender(cfg EmailConfig) (*EmailSender, error) {
	if cfg.To == "" {
		return nil, fmt.Errorf("alert email recipient is empty")
	}
	if cfg.SMTPAddr == "" {
		cfg.SMTPAddr = "127.0.0.1:25"
	}
	if cfg.From == "" {
		cfg.From = "threatrelay@localhost"
	}
	return &EmailSender{
		smtpAddr: cfg.SMTPAddr,
		from:     cfg.From,
		to:       cfg.To,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}, nil
}

// Send delivers one alert email. The SMTP exchange is raced against ctx
// so a hung server cannot hold the caller past its deadline; an
// abandoned send finishes (or fails) on its own in the background.
func (e *EmailSender) Send(ctx context.Context, alert *models.Alert) error {
	subject := fmt.Sprintf("[%s] Security Alert from ThreatRelay", alert.Level)

	var body strings.Builder
	fmt.Fprintf(&body, "Threat Type: %s\n", alert.Type)
	if alert.Data != nil {
		fmt.Fprintf(&body, "Threat Level: %d/5\n", alert.Data.ThreatLevel)
		fmt.Fprintf(&body, "Confidence: %.0f%%\n", alert.Data.Confidence*100)
	}
	fmt.Fprintf(&body, "Time: %s\n\n%s\n", alert.Timestamp.Format(time.RFC3339), alert.Message)

	msg := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s", e.to, e.from, subject, body.String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.send(e.smtpAddr, e.from, []string{e.to}, []byte(msg))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("send alert email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send alert email: %w", ctx.Err())
	}
}
