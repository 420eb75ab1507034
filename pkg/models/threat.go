package models

import (
	"strings"
	"time"
)

// EscalationTier is the derived severity bucket for a threat.
type EscalationTier string

const (
	TierCritical EscalationTier = "critical"
	TierHigh     EscalationTier = "high"
	TierMedium   EscalationTier = "medium"
	TierLow      EscalationTier = "low"
	TierInfo     EscalationTier = "info"
)

// Rank orders tiers from info (0) to critical (4).
func (t EscalationTier) Rank() int {
	switch t {
	case TierCritical:
		return 4
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// Tiers lists all tiers from most to least severe.
func Tiers() []EscalationTier {
	return []EscalationTier{TierCritical, TierHigh, TierMedium, TierLow, TierInfo}
}

// Recommendation is a suggested containment step attached to a threat.
type Recommendation struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

// ThreatTag labels a threat with a matched detection rule.
type ThreatTag struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Severity  string `json:"severity,omitempty"`
	Technique string `json:"technique,omitempty"`
}

// ThreatRecord is one detected or reported threat. Records are append-only:
// a record is never mutated after creation.
type ThreatRecord struct {
	ID                string           `json:"id"`
	SourceExecutionID string           `json:"source_execution_id,omitempty"`
	AgentID           string           `json:"agent_id,omitempty"`
	Type              string           `json:"type"`
	ThreatLevel       int              `json:"threat_level"`
	Confidence        float64          `json:"confidence"`
	Analysis          string           `json:"analysis,omitempty"`
	Findings          string           `json:"findings,omitempty"`
	Recommendations   []Recommendation `json:"recommendations,omitempty"`
	Tags              []ThreatTag      `json:"tags,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// ExecutionResult is the outcome reported by an agent execution.
type ExecutionResult struct {
	ExecutionID     string           `json:"execution_id"`
	AgentID         string           `json:"agent_id"`
	Status          string           `json:"status"`
	Type            string           `json:"type,omitempty"`
	ThreatLevel     int              `json:"threat_level"`
	Confidence      float64          `json:"confidence"`
	Analysis        string           `json:"analysis,omitempty"`
	Findings        string           `json:"findings,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

// ThreatType returns the reported threat category, defaulting to unknown.
func (r *ExecutionResult) ThreatType() string {
	if r == nil || strings.TrimSpace(r.Type) == "" {
		return "unknown"
	}
	return r.Type
}
