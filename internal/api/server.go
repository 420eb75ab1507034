package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threatrelay/internal/correlation"
	"threatrelay/internal/logger"
	"threatrelay/internal/scheduler"
	"threatrelay/pkg/models"
)

// Server is the operator HTTP API: schedule CRUD, threat history, and
// statistics. It has no end-user surface; failures in the pipeline are
// observed via logs and /metrics.
type Server struct {
	schedules scheduler.Store
	records   correlation.Store
	poller    *scheduler.Poller
	now       func() time.Time
}

// NewServer creates the operator API server. poller may be nil, which
// disables the manual run endpoint.
func NewServer(schedules scheduler.Store, records correlation.Store, poller *scheduler.Poller) *Server {
	return &Server{
		schedules: schedules,
		records:   records,
		poller:    poller,
		now:       time.Now,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/schedules", s.handleCreateSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedules", s.handleListSchedules).Methods(http.MethodGet)
	r.HandleFunc("/schedules/{id}", s.handleGetSchedule).Methods(http.MethodGet)
	r.HandleFunc("/schedules/{id}", s.handleUpdateSchedule).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/schedules/{id}", s.handleDeleteSchedule).Methods(http.MethodDelete)

	r.HandleFunc("/threats/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/threats/statistics", s.handleStatistics).Methods(http.MethodGet)

	if s.poller != nil {
		r.HandleFunc("/scheduler/run", s.handleRunPass).Methods(http.MethodPost)
	}
	return r
}

// Serve runs the API until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Operator API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createScheduleRequest struct {
	AgentID   string                 `json:"agent_id"`
	Frequency string                 `json:"frequency"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || len(req.AgentID) > 100 {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	if req.Frequency == "" {
		req.Frequency = string(models.Daily)
	}
	freq, err := models.ParseFrequency(req.Frequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now().UTC()
	sched := &models.Schedule{
		ID:            uuid.NewString(),
		AgentID:       req.AgentID,
		Frequency:     freq,
		Config:        req.Config,
		IsActive:      true,
		NextExecution: freq.Next(now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.schedules.Insert(r.Context(), sched); err != nil {
		logger.Errorf("Failed to create schedule: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	logger.Infof("Schedule created: %s for agent %s", sched.ID, sched.AgentID)
	writeJSON(w, http.StatusCreated, sched)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	scheds, err := s.schedules.List(r.Context(), activeOnly)
	if err != nil {
		logger.Errorf("Failed to list schedules: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, scheds)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedules.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, scheduler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read schedule")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

type updateScheduleRequest struct {
	IsActive  *bool   `json:"is_active,omitempty"`
	Frequency *string `json:"frequency,omitempty"`
}

// handleUpdateSchedule mutates the operator-owned fields only; execution
// timestamps stay with the poller.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sched, err := s.schedules.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, scheduler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read schedule")
		return
	}

	if req.Frequency != nil {
		freq, err := models.ParseFrequency(*req.Frequency)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sched.Frequency = freq
		sched.NextExecution = freq.Next(s.now().UTC())
	}
	if req.IsActive != nil {
		sched.IsActive = *req.IsActive
	}
	sched.UpdatedAt = s.now().UTC()

	if err := s.schedules.Update(r.Context(), sched); err != nil {
		logger.Errorf("Failed to update schedule %s: %v", sched.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to update schedule")
		return
	}

	logger.Infof("Schedule updated: %s", sched.ID)
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.schedules.Delete(r.Context(), id)
	if errors.Is(err, scheduler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete schedule")
		return
	}
	logger.Infof("Schedule deleted: %s", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	out := make([]models.CorrelationRecord, 0, limit)
	for rec, err := range s.records.History(r.Context(), agentID, limit) {
		if err != nil {
			logger.Errorf("Failed to read threat history: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to read history")
			return
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.records.Statistics(r.Context())
	if err != nil {
		logger.Errorf("Failed to read threat statistics: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleRunPass triggers one poll pass, for cron-style external
// triggering alongside the internal ticker.
func (s *Server) handleRunPass(w http.ResponseWriter, r *http.Request) {
	res, err := s.poller.PollOnce(r.Context())
	if err != nil {
		logger.Errorf("Manual poll pass failed: %v", err)
		writeError(w, http.StatusInternalServerError, "poll pass failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
