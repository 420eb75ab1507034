package rules

import "threatrelay/pkg/models"

// Engine applies detection rules to agent execution results.
type Engine interface {
	Apply(result *models.ExecutionResult) []models.ThreatTag
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns an empty tag list.
func (n *NoopEngine) Apply(result *models.ExecutionResult) []models.ThreatTag {
	return nil
}
