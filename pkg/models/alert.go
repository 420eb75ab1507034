package models

import "time"

// Alert is an escalation notification sent to configured sinks.
type Alert struct {
	Level       EscalationTier `json:"level"`
	Type        string         `json:"type"`
	Message     string         `json:"message"`
	ThreatID    string         `json:"threat_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Data        *ThreatRecord  `json:"data,omitempty"`
	Source      string         `json:"source"`
	Timestamp   time.Time      `json:"timestamp"`
}

// AlertReceipt reports which sinks accepted an alert.
type AlertReceipt struct {
	AlertID      string    `json:"alert_id"`
	WebhookSent  bool      `json:"webhook_sent"`
	EmailSent    bool      `json:"email_sent"`
	DispatchedAt time.Time `json:"dispatched_at"`
}
