package handler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"threatrelay/internal/alerts"
	"threatrelay/internal/classify"
	"threatrelay/internal/containment"
	"threatrelay/internal/correlation"
	"threatrelay/pkg/models"
)

type spyActuator struct {
	calls atomic.Int64
}

func (s *spyActuator) Apply(ctx context.Context, action containment.ActionKind, target string) error {
	s.calls.Add(1)
	return nil
}

func newTestHandler(t *testing.T, cfg Config, store correlation.Store, webhookURL string, actuator containment.Actuator) *Handler {
	t.Helper()

	var dispatcher *alerts.Dispatcher
	if webhookURL != "" {
		webhook, err := alerts.NewWebhookSender(alerts.WebhookConfig{URL: webhookURL})
		if err != nil {
			t.Fatalf("NewWebhookSender failed: %v", err)
		}
		dispatcher = alerts.NewDispatcher(webhook, nil)
	} else {
		dispatcher = alerts.NewDispatcher(nil, nil)
	}

	executor, err := containment.NewExecutor(cfg.Mode, actuator)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	return New(cfg, correlation.NewRecorder(store, nil), dispatcher, executor, nil, nil, nil)
}

func TestCriticalThreatEndToEnd(t *testing.T) {
	var webhookCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := correlation.NewMemoryStore()
	actuator := &spyActuator{}
	h := newTestHandler(t, Config{Mode: "active", ThreatThreshold: 3}, store, srv.URL, actuator)

	outcome, err := h.HandleResult(context.Background(), &models.ExecutionResult{
		ExecutionID: "exec-1",
		AgentID:     "agent-9",
		Type:        "ransomware",
		ThreatLevel: 5,
		Confidence:  0.9,
		Recommendations: []models.Recommendation{
			{Action: "block_ip", Target: "203.0.113.7"},
		},
	})
	if err != nil {
		t.Fatalf("HandleResult failed: %v", err)
	}

	if outcome.Escalation != models.TierCritical {
		t.Fatalf("Escalation = %s, want critical", outcome.Escalation)
	}
	if outcome.Action != "immediate_response" {
		t.Fatalf("Action = %s, want immediate_response", outcome.Action)
	}
	if !outcome.AlertSent {
		t.Fatalf("expected alert to be sent")
	}
	if webhookCalls.Load() != 1 {
		t.Fatalf("webhook invoked %d times, want 1", webhookCalls.Load())
	}
	if !outcome.ContainmentExecuted {
		t.Fatalf("expected containment in active mode")
	}
	if actuator.calls.Load() != 1 {
		t.Fatalf("actuator invoked %d times, want 1", actuator.calls.Load())
	}

	var stored []models.CorrelationRecord
	for rec, err := range store.History(context.Background(), "agent-9", 0) {
		if err != nil {
			t.Fatalf("History yielded error: %v", err)
		}
		stored = append(stored, rec)
	}
	if len(stored) != 1 {
		t.Fatalf("store has %d correlations, want 1", len(stored))
	}
	if stored[0].Severity != models.TierCritical {
		t.Fatalf("stored severity = %s, want critical", stored[0].Severity)
	}
}

func TestPassiveModeExecutesNothing(t *testing.T) {
	store := correlation.NewMemoryStore()
	actuator := &spyActuator{}
	h := newTestHandler(t, Config{Mode: "passive", ThreatThreshold: 1}, store, "", actuator)

	_, err := h.HandleResult(context.Background(), &models.ExecutionResult{
		AgentID:     "agent-1",
		Type:        "sql_injection",
		ThreatLevel: 5,
		Confidence:  0.95,
		Recommendations: []models.Recommendation{
			{Action: "block_ip", Target: "203.0.113.7"},
			{Action: "quarantine", Target: "host-2"},
		},
	})
	if err != nil {
		t.Fatalf("HandleResult failed: %v", err)
	}
	if actuator.calls.Load() != 0 {
		t.Fatalf("passive mode invoked actuator %d times", actuator.calls.Load())
	}
}

func TestInvalidInputIsFatalToCall(t *testing.T) {
	h := newTestHandler(t, Config{Mode: "passive"}, correlation.NewMemoryStore(), "", nil)

	_, err := h.HandleResult(context.Background(), &models.ExecutionResult{ThreatLevel: 9, Confidence: 0.5})
	if !errors.Is(err, classify.ErrInvalidArgument) {
		t.Fatalf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestBelowThresholdSkipsUnlessAutoCorrelate(t *testing.T) {
	store := correlation.NewMemoryStore()
	h := newTestHandler(t, Config{Mode: "passive", ThreatThreshold: 3}, store, "", nil)

	outcome, err := h.HandleResult(context.Background(), &models.ExecutionResult{
		AgentID: "agent-2", ThreatLevel: 2, Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("HandleResult failed: %v", err)
	}
	if outcome.Action != "below_threshold" {
		t.Fatalf("Action = %s, want below_threshold", outcome.Action)
	}
	if countHistory(t, store, "agent-2") != 0 {
		t.Fatalf("expected no correlation below threshold")
	}

	h = newTestHandler(t, Config{Mode: "passive", ThreatThreshold: 3, AutoCorrelate: true}, store, "", nil)
	outcome, err = h.HandleResult(context.Background(), &models.ExecutionResult{
		AgentID: "agent-2", ThreatLevel: 2, Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("HandleResult failed: %v", err)
	}
	if outcome.Action != "correlated_below_threshold" {
		t.Fatalf("Action = %s, want correlated_below_threshold", outcome.Action)
	}
	if countHistory(t, store, "agent-2") != 1 {
		t.Fatalf("expected one correlation with auto_correlate")
	}
}

type failingStore struct{}

func (failingStore) InsertThreat(ctx context.Context, rec *models.ThreatRecord) error {
	return fmt.Errorf("%w: disk on fire", correlation.ErrStorage)
}

func (failingStore) InsertCorrelation(ctx context.Context, rec *models.CorrelationRecord) error {
	return fmt.Errorf("%w: disk on fire", correlation.ErrStorage)
}

func (failingStore) History(ctx context.Context, agentID string, limit int) iter.Seq2[models.CorrelationRecord, error] {
	return func(yield func(models.CorrelationRecord, error) bool) {}
}

func (failingStore) Statistics(ctx context.Context) (models.ThreatStats, error) {
	return models.ThreatStats{}, nil
}

func (failingStore) Close() error { return nil }

func TestStorageFailureDoesNotFailPipeline(t *testing.T) {
	h := newTestHandler(t, Config{Mode: "passive", ThreatThreshold: 1}, failingStore{}, "", nil)

	outcome, err := h.HandleResult(context.Background(), &models.ExecutionResult{
		AgentID: "agent-3", Type: "probe", ThreatLevel: 3, Confidence: 0.8,
	})
	if err != nil {
		t.Fatalf("storage failure leaked out of pipeline: %v", err)
	}
	if outcome.Escalation != models.TierHigh {
		t.Fatalf("Escalation = %s, want high", outcome.Escalation)
	}
}

func countHistory(t *testing.T, store correlation.Store, agentID string) int {
	t.Helper()
	count := 0
	for _, err := range store.History(context.Background(), agentID, 0) {
		if err != nil {
			t.Fatalf("History yielded error: %v", err)
		}
		count++
	}
	return count
}
