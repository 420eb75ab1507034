package correlation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"threatrelay/internal/logger"
	"threatrelay/pkg/models"
)

// IntelSource provides the current threat-intel indicator list. A failed
// fetch is reported as an empty list by implementations; correlation
// must not depend on the feed being reachable.
type IntelSource interface {
	Indicators(ctx context.Context) ([]string, error)
}

// Recorder scores threats against threat intelligence and persists the
// resulting correlation records.
type Recorder struct {
	store Store
	intel IntelSource
	now   func() time.Time
}

// NewRecorder creates a recorder over the given store and intel source.
// intel may be nil, in which case every correlation scores 0.
func NewRecorder(store Store, intel IntelSource) *Recorder {
	return &Recorder{store: store, intel: intel, now: time.Now}
}

// Record persists the threat, computes its correlation against the
// current indicator list, and persists the correlation record. The
// indicator list is snapshotted onto the record and never re-read.
func (r *Recorder) Record(ctx context.Context, threat *models.ThreatRecord, tier models.EscalationTier) (*models.CorrelationRecord, error) {
	if err := r.store.InsertThreat(ctx, threat); err != nil {
		return nil, err
	}

	var indicators []string
	if r.intel != nil {
		var err error
		indicators, err = r.intel.Indicators(ctx)
		if err != nil {
			logger.Warnf("Could not fetch threat intel, correlating against empty feed: %v", err)
			indicators = nil
		}
	}

	snapshot, _ := json.Marshal(map[string][]string{"indicators": indicators})

	rec := &models.CorrelationRecord{
		ID:               uuid.NewString(),
		AgentID:          threat.AgentID,
		ExecutionID:      threat.SourceExecutionID,
		ThreatID:         threat.ID,
		CorrelationScore: Score(threat.Findings, indicators),
		Severity:         tier,
		ThreatIntel:      snapshot,
		CreatedAt:        r.now().UTC(),
	}

	if err := r.store.InsertCorrelation(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
