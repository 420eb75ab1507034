package models

import (
	"fmt"
	"time"
)

// Frequency is a recurring execution cadence.
type Frequency string

const (
	Every30Minutes Frequency = "every_30_minutes"
	Every4Hours    Frequency = "every_4_hours"
	Hourly         Frequency = "hourly"
	Daily          Frequency = "daily"
	Weekly         Frequency = "weekly"
	Monthly        Frequency = "monthly"
)

// ParseFrequency validates a frequency string.
func ParseFrequency(raw string) (Frequency, error) {
	f := Frequency(raw)
	switch f {
	case Every30Minutes, Every4Hours, Hourly, Daily, Weekly, Monthly:
		return f, nil
	}
	return "", fmt.Errorf("invalid frequency: %q", raw)
}

// Next computes the execution time following now. Monthly advances by one
// calendar month, not a fixed number of days.
func (f Frequency) Next(now time.Time) time.Time {
	switch f {
	case Every30Minutes:
		return now.Add(30 * time.Minute)
	case Every4Hours:
		return now.Add(4 * time.Hour)
	case Hourly:
		return now.Add(1 * time.Hour)
	case Weekly:
		return now.AddDate(0, 0, 7)
	case Monthly:
		return now.AddDate(0, 1, 0)
	default:
		return now.AddDate(0, 0, 1)
	}
}

// Schedule is a recurring directive to execute an agent. Execution
// timestamps are written only by the poller; IsActive and Frequency are
// operator-mutable.
type Schedule struct {
	ID            string                 `json:"id"`
	AgentID       string                 `json:"agent_id"`
	Frequency     Frequency              `json:"frequency"`
	Config        map[string]interface{} `json:"config,omitempty"`
	IsActive      bool                   `json:"is_active"`
	LastExecution time.Time              `json:"last_execution,omitempty"`
	NextExecution time.Time              `json:"next_execution"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Due reports whether the schedule should fire at now.
func (s *Schedule) Due(now time.Time) bool {
	if s == nil || !s.IsActive || s.NextExecution.IsZero() {
		return false
	}
	return !now.Before(s.NextExecution)
}
