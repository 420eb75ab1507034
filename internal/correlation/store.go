package correlation

import (
	"context"
	"errors"
	"iter"
	"math"
	"sort"
	"sync"

	"threatrelay/pkg/models"
)

// ErrStorage reports a persistence failure. Callers in the escalation
// pipeline log it and continue; it never fails an agent execution.
var ErrStorage = errors.New("correlation storage failure")

// Store persists threat and correlation records. Both record types are
// append-only; there is no update path.
type Store interface {
	InsertThreat(ctx context.Context, rec *models.ThreatRecord) error
	InsertCorrelation(ctx context.Context, rec *models.CorrelationRecord) error

	// History returns the correlation records for an agent, newest
	// first, at most limit entries. The sequence is restartable: each
	// range re-reads the store.
	History(ctx context.Context, agentID string, limit int) iter.Seq2[models.CorrelationRecord, error]

	Statistics(ctx context.Context) (models.ThreatStats, error)
	Close() error
}

// MemoryStore is an in-process Store for tests and single-node use.
type MemoryStore struct {
	mu           sync.RWMutex
	threats      []models.ThreatRecord
	correlations map[string][]models.CorrelationRecord
	tierCounts   map[models.EscalationTier]int64
	confSum      float64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		correlations: make(map[string][]models.CorrelationRecord),
		tierCounts:   make(map[models.EscalationTier]int64),
	}
}

// InsertThreat appends a threat record.
func (s *MemoryStore) InsertThreat(ctx context.Context, rec *models.ThreatRecord) error {
	if rec == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threats = append(s.threats, *rec)
	s.confSum += rec.Confidence
	return nil
}

// InsertCorrelation appends a correlation record.
func (s *MemoryStore) InsertCorrelation(ctx context.Context, rec *models.CorrelationRecord) error {
	if rec == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlations[rec.AgentID] = append(s.correlations[rec.AgentID], *rec)
	s.tierCounts[rec.Severity]++
	return nil
}

// History yields correlation records for agentID, newest first.
func (s *MemoryStore) History(ctx context.Context, agentID string, limit int) iter.Seq2[models.CorrelationRecord, error] {
	return func(yield func(models.CorrelationRecord, error) bool) {
		s.mu.RLock()
		recs := make([]models.CorrelationRecord, len(s.correlations[agentID]))
		copy(recs, s.correlations[agentID])
		s.mu.RUnlock()

		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		})
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		for _, rec := range recs {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Statistics summarizes stored threats by tier plus average confidence.
func (s *MemoryStore) Statistics(ctx context.Context) (models.ThreatStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.ThreatStats{
		Critical: s.tierCounts[models.TierCritical],
		High:     s.tierCounts[models.TierHigh],
		Medium:   s.tierCounts[models.TierMedium],
		Low:      s.tierCounts[models.TierLow],
		Info:     s.tierCounts[models.TierInfo],
	}
	stats.TotalThreats = stats.Critical + stats.High + stats.Medium + stats.Low + stats.Info
	if n := len(s.threats); n > 0 {
		stats.AvgConfidence = roundConfidence(s.confSum / float64(n))
	}
	return stats, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// roundConfidence reports average confidence as a percentage with two
// decimals, matching the operator-facing statistics format.
func roundConfidence(avg float64) float64 {
	return math.Round(avg*100*100) / 100
}
