package handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"threatrelay/internal/alerts"
	"threatrelay/internal/classify"
	"threatrelay/internal/containment"
	"threatrelay/internal/correlation"
	"threatrelay/internal/logger"
	"threatrelay/internal/metrics"
	"threatrelay/internal/rules"
	"threatrelay/pkg/models"
)

// Config controls escalation behavior.
type Config struct {
	Mode            string // passive|active
	ThreatThreshold int
	AutoCorrelate   bool
}

// Journal optionally records handled threats to a local sink.
type Journal interface {
	WriteThreat(rec *models.ThreatRecord) error
}

// Outcome summarizes how one threat was handled.
type Outcome struct {
	Escalation          models.EscalationTier `json:"escalation"`
	Action              string                `json:"action"`
	ThreatID            string                `json:"threat_id,omitempty"`
	CorrelationScore    float64               `json:"correlation_score"`
	AlertSent           bool                  `json:"alert_sent"`
	ContainmentExecuted bool                  `json:"containment_executed"`
}

// Handler is the escalation pipeline: classify a result, persist the
// correlation record, and trigger tier-dependent side effects.
// Storage and delivery failures are logged and never fail the run;
// only invalid classifier input is fatal to a call.
type Handler struct {
	cfg      Config
	recorder *correlation.Recorder
	alerts   *alerts.Dispatcher
	contain  *containment.Executor
	engine   rules.Engine
	journal  Journal
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a handler. engine, journal, and metrics may be nil.
func New(cfg Config, recorder *correlation.Recorder, dispatcher *alerts.Dispatcher, executor *containment.Executor, engine rules.Engine, journal Journal, m *metrics.Metrics) *Handler {
	if cfg.ThreatThreshold <= 0 {
		cfg.ThreatThreshold = 3
	}
	return &Handler{
		cfg:      cfg,
		recorder: recorder,
		alerts:   dispatcher,
		contain:  executor,
		engine:   engine,
		journal:  journal,
		metrics:  m,
		now:      time.Now,
	}
}

// HandleResult runs the pipeline over one agent execution result.
func (h *Handler) HandleResult(ctx context.Context, result *models.ExecutionResult) (*Outcome, error) {
	tier, err := classify.Classify(result.ThreatLevel, result.Confidence)
	if err != nil {
		return nil, err
	}

	threat := h.threatFromResult(result)

	belowThreshold := result.ThreatLevel < h.cfg.ThreatThreshold
	if belowThreshold && !h.cfg.AutoCorrelate {
		logger.Debugf("Threat below threshold, skipping: agent=%s level=%d", threat.AgentID, threat.ThreatLevel)
		return &Outcome{Escalation: tier, Action: "below_threshold"}, nil
	}

	outcome := &Outcome{Escalation: tier, ThreatID: threat.ID}

	rec, err := h.recorder.Record(ctx, threat, tier)
	if err != nil {
		// Persistence never fails the execution that produced the threat.
		logger.Errorf("Failed to record correlation: %v", err)
		if h.metrics != nil {
			h.metrics.StorageFailures.Inc()
		}
	} else {
		outcome.CorrelationScore = rec.CorrelationScore
	}

	if h.journal != nil {
		if err := h.journal.WriteThreat(threat); err != nil {
			logger.Warnf("Failed to journal threat: %v", err)
		}
	}

	if h.metrics != nil {
		h.metrics.ThreatsByTier.WithLabelValues(string(tier)).Inc()
	}

	if belowThreshold {
		outcome.Action = "correlated_below_threshold"
		return outcome, nil
	}

	switch tier {
	case models.TierCritical:
		h.handleCritical(ctx, threat, outcome)
	case models.TierHigh:
		h.handleHigh(ctx, threat, outcome)
	case models.TierMedium:
		logger.Infof("MEDIUM THREAT: type=%s threat=%s", threat.Type, threat.ID)
		outcome.Action = "enhanced_monitoring"
	case models.TierLow:
		logger.Infof("LOW THREAT: type=%s threat=%s", threat.Type, threat.ID)
		outcome.Action = "standard_logging"
	default:
		logger.Debugf("INFO threat: type=%s threat=%s", threat.Type, threat.ID)
		outcome.Action = "logged"
	}

	return outcome, nil
}

func (h *Handler) handleCritical(ctx context.Context, threat *models.ThreatRecord, outcome *Outcome) {
	logger.Errorf("CRITICAL THREAT: type=%s threat=%s", threat.Type, threat.ID)
	outcome.Action = "immediate_response"

	h.sendAlert(ctx, threat, models.TierCritical, "CRITICAL THREAT DETECTED - Immediate Response Required", outcome)

	if h.cfg.Mode == "active" && h.contain != nil {
		results := h.contain.ExecuteAll(ctx, threat.Recommendations)
		for _, res := range results {
			if res.Executed {
				outcome.ContainmentExecuted = true
				if h.metrics != nil {
					h.metrics.ContainmentActions.Inc()
				}
			}
		}
	} else if len(threat.Recommendations) > 0 {
		logger.Infof("Passive mode: %d containment recommendations logged for threat %s", len(threat.Recommendations), threat.ID)
	}
}

func (h *Handler) handleHigh(ctx context.Context, threat *models.ThreatRecord, outcome *Outcome) {
	logger.Warnf("HIGH THREAT: type=%s threat=%s", threat.Type, threat.ID)
	outcome.Action = "prompt_investigation"
	h.sendAlert(ctx, threat, models.TierHigh, "HIGH PRIORITY THREAT - Prompt Investigation Required", outcome)
}

func (h *Handler) sendAlert(ctx context.Context, threat *models.ThreatRecord, tier models.EscalationTier, message string, outcome *Outcome) {
	if h.alerts == nil {
		return
	}
	receipt, err := h.alerts.Send(ctx, &models.Alert{
		Level:       tier,
		Type:        threat.Type,
		Message:     message,
		ThreatID:    threat.ID,
		ExecutionID: threat.SourceExecutionID,
		Data:        threat,
	})
	if err != nil {
		logger.Warnf("Alert delivery failed for threat %s: %v", threat.ID, err)
		if h.metrics != nil {
			h.metrics.DeliveryFailures.Inc()
		}
		return
	}
	if receipt.WebhookSent || receipt.EmailSent {
		outcome.AlertSent = true
		if h.metrics != nil {
			h.metrics.AlertsSent.Inc()
		}
	}
}

func (h *Handler) threatFromResult(result *models.ExecutionResult) *models.ThreatRecord {
	var tags []models.ThreatTag
	if h.engine != nil {
		tags = h.engine.Apply(result)
	}
	return &models.ThreatRecord{
		ID:                uuid.NewString(),
		SourceExecutionID: result.ExecutionID,
		AgentID:           result.AgentID,
		Type:              result.ThreatType(),
		ThreatLevel:       result.ThreatLevel,
		Confidence:        result.Confidence,
		Analysis:          result.Analysis,
		Findings:          result.Findings,
		Recommendations:   result.Recommendations,
		Tags:              tags,
		CreatedAt:         h.now().UTC(),
	}
}
