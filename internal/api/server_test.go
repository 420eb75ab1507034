package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"threatrelay/internal/correlation"
	"threatrelay/internal/scheduler"
	"threatrelay/pkg/models"
)

func newTestServer() (*Server, *scheduler.MemoryStore, *correlation.MemoryStore) {
	schedules := scheduler.NewMemoryStore()
	records := correlation.NewMemoryStore()
	srv := NewServer(schedules, records, nil)
	srv.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return srv, schedules, records
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestScheduleLifecycle(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doRequest(t, srv, http.MethodPost, "/schedules", map[string]interface{}{
		"agent_id":  "agent-1",
		"frequency": "hourly",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}

	var created models.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode created schedule: %v", err)
	}
	if created.ID == "" || !created.IsActive {
		t.Fatalf("unexpected created schedule: %+v", created)
	}
	wantNext := time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC)
	if !created.NextExecution.Equal(wantNext) {
		t.Fatalf("NextExecution = %v, want %v", created.NextExecution, wantNext)
	}

	rec = doRequest(t, srv, http.MethodGet, "/schedules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPatch, "/schedules/"+created.ID, map[string]interface{}{
		"is_active": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}
	var updated models.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode updated schedule: %v", err)
	}
	if updated.IsActive {
		t.Fatalf("schedule should be inactive after update")
	}

	rec = doRequest(t, srv, http.MethodGet, "/schedules?active=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
	var active []models.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &active); err != nil {
		t.Fatalf("failed to decode schedule list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active schedules, got %d", len(active))
	}

	rec = doRequest(t, srv, http.MethodDelete, "/schedules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/schedules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete returned %d, want 404", rec.Code)
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doRequest(t, srv, http.MethodPost, "/schedules", map[string]interface{}{
		"frequency": "hourly",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing agent_id returned %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/schedules", map[string]interface{}{
		"agent_id":  "agent-1",
		"frequency": "fortnightly",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown frequency returned %d, want 400", rec.Code)
	}
}

func TestCreateScheduleDefaultsToDaily(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doRequest(t, srv, http.MethodPost, "/schedules", map[string]interface{}{
		"agent_id": "agent-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode created schedule: %v", err)
	}
	if created.Frequency != models.Daily {
		t.Fatalf("Frequency = %s, want daily", created.Frequency)
	}
}

func TestThreatHistoryEndpoint(t *testing.T) {
	srv, _, records := newTestServer()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := &models.CorrelationRecord{
			ID:        fmt.Sprintf("corr-%d", i),
			AgentID:   "agent-1",
			Severity:  models.TierHigh,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := records.InsertCorrelation(context.Background(), rec); err != nil {
			t.Fatalf("failed to seed correlation: %v", err)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/threats/history?agent_id=agent-1&limit=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history returned %d: %s", rec.Code, rec.Body.String())
	}
	var out []models.CorrelationRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("history returned %d records, want 3", len(out))
	}
	if out[0].ID != "corr-4" {
		t.Fatalf("history should be newest first, got %s", out[0].ID)
	}

	rec = doRequest(t, srv, http.MethodGet, "/threats/history", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing agent_id returned %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/threats/history?agent_id=agent-1&limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit returned %d, want 400", rec.Code)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	srv, _, records := newTestServer()

	ctx := context.Background()
	threats := []models.ThreatRecord{
		{ID: "t1", ThreatLevel: 4, Confidence: 0.9},
		{ID: "t2", ThreatLevel: 2, Confidence: 0.5},
	}
	for i := range threats {
		if err := records.InsertThreat(ctx, &threats[i]); err != nil {
			t.Fatalf("failed to seed threat: %v", err)
		}
	}
	records.InsertCorrelation(ctx, &models.CorrelationRecord{ID: "c1", AgentID: "a", Severity: models.TierCritical})
	records.InsertCorrelation(ctx, &models.CorrelationRecord{ID: "c2", AgentID: "a", Severity: models.TierMedium})

	rec := doRequest(t, srv, http.MethodGet, "/threats/statistics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics returned %d", rec.Code)
	}
	var stats models.ThreatStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode statistics: %v", err)
	}
	if stats.TotalThreats != 2 || stats.Critical != 1 || stats.Medium != 1 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
	if stats.AvgConfidence != 70.0 {
		t.Fatalf("AvgConfidence = %v, want 70.0", stats.AvgConfidence)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer()
	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", rec.Code)
	}
}
