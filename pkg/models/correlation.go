package models

import "time"

// CorrelationRecord links an agent execution to threat intelligence.
// Created once per correlation event and never updated.
type CorrelationRecord struct {
	ID               string         `json:"id"`
	AgentID          string         `json:"agent_id"`
	ExecutionID      string         `json:"execution_id"`
	ThreatID         string         `json:"threat_id,omitempty"`
	CorrelationScore float64        `json:"correlation_score"`
	Severity         EscalationTier `json:"severity"`
	ThreatIntel      []byte         `json:"threat_intel,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ThreatStats summarizes stored threats.
type ThreatStats struct {
	Critical      int64   `json:"critical"`
	High          int64   `json:"high"`
	Medium        int64   `json:"medium"`
	Low           int64   `json:"low"`
	Info          int64   `json:"info"`
	AvgConfidence float64 `json:"avg_confidence"`
	TotalThreats  int64   `json:"total_threats"`
}
