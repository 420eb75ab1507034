package scheduler

import (
	"context"
	"sync"
	"time"

	"threatrelay/internal/agents"
	"threatrelay/internal/handler"
	"threatrelay/internal/logger"
	"threatrelay/internal/metrics"
	"threatrelay/pkg/models"
)

// ExecutionOutcome reports one schedule firing.
type ExecutionOutcome struct {
	ScheduleID string           `json:"schedule_id"`
	AgentID    string           `json:"agent_id"`
	Failed     bool             `json:"failed"`
	Error      string           `json:"error,omitempty"`
	Outcome    *handler.Outcome `json:"outcome,omitempty"`
}

// PassResult summarizes one poll pass.
type PassResult struct {
	Executed int                `json:"executed"`
	Results  []ExecutionOutcome `json:"results"`
}

// Poller finds due schedules, fires their agent executions, and routes
// results through the escalation handler. Per schedule the lifecycle is
// idle → firing → idle with NextExecution recomputed; deactivation
// removes a schedule from consideration without deleting history.
type Poller struct {
	store       Store
	executor    agents.Executor
	handler     *handler.Handler
	maxParallel int
	passTimeout time.Duration
	metrics     *metrics.Metrics
	now         func() time.Time
	passMu      sync.Mutex
}

// PollerConfig controls a poller.
type PollerConfig struct {
	MaxParallel int
	PassTimeout time.Duration
}

// NewPoller creates a poller. metrics may be nil.
func NewPoller(store Store, executor agents.Executor, h *handler.Handler, cfg PollerConfig, m *metrics.Metrics) *Poller {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 2 * time.Minute
	}
	return &Poller{
		store:       store,
		executor:    executor,
		handler:     h,
		maxParallel: cfg.MaxParallel,
		passTimeout: cfg.PassTimeout,
		metrics:     m,
		now:         time.Now,
	}
}

// PollOnce runs a single pass: every due schedule fires exactly once and
// is advanced before execution, so a cancelled pass can only cause an
// immediate re-fire on restart, never a stalled or doubled schedule.
// Execution failures are recorded in the results, not returned.
func (p *Poller) PollOnce(ctx context.Context) (*PassResult, error) {
	p.passMu.Lock()
	defer p.passMu.Unlock()

	now := p.now()
	due, err := p.store.Due(ctx, now)
	if err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.PollPasses.Inc()
	}
	if len(due) == 0 {
		return &PassResult{}, nil
	}

	passCtx, cancel := context.WithTimeout(ctx, p.passTimeout)
	defer cancel()

	// Advance timestamps up front: the schedule leaves the due window
	// before any network call happens.
	fireable := make([]*models.Schedule, 0, len(due))
	for _, sched := range due {
		next := sched.Frequency.Next(now)
		if err := p.store.Advance(ctx, sched.ID, now, next); err != nil {
			logger.Errorf("Failed to advance schedule %s: %v", sched.ID, err)
			continue
		}
		fireable = append(fireable, sched)
	}

	results := make([]ExecutionOutcome, len(fireable))
	sem := make(chan struct{}, p.maxParallel)
	var wg sync.WaitGroup

	for i, sched := range fireable {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sched *models.Schedule) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.fire(passCtx, sched)
		}(i, sched)
	}
	wg.Wait()

	logger.Infof("Poll pass executed %d scheduled jobs", len(fireable))
	return &PassResult{Executed: len(fireable), Results: results}, nil
}

func (p *Poller) fire(ctx context.Context, sched *models.Schedule) ExecutionOutcome {
	out := ExecutionOutcome{ScheduleID: sched.ID, AgentID: sched.AgentID}

	if p.metrics != nil {
		p.metrics.ExecutionsFired.Inc()
	}

	result, err := p.executor.Execute(ctx, sched.AgentID, sched.Config)
	if err != nil {
		// The schedule already advanced; the failure is recorded and
		// the next firing happens on time.
		logger.Errorf("Scheduled execution failed: schedule=%s agent=%s: %v", sched.ID, sched.AgentID, err)
		if p.metrics != nil {
			p.metrics.ExecutionFailures.Inc()
		}
		out.Failed = true
		out.Error = err.Error()
		return out
	}

	if p.handler != nil {
		outcome, err := p.handler.HandleResult(ctx, result)
		if err != nil {
			logger.Warnf("Threat handling failed for schedule %s: %v", sched.ID, err)
			out.Failed = true
			out.Error = err.Error()
			return out
		}
		out.Outcome = outcome
	}
	return out
}
