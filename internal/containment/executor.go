package containment

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"threatrelay/internal/logger"
	"threatrelay/pkg/models"
)

// ActionKind is an automated defensive response type.
type ActionKind string

const (
	ActionBlockIP    ActionKind = "block_ip"
	ActionQuarantine ActionKind = "quarantine"
	ActionIsolate    ActionKind = "isolate"
	ActionThrottle   ActionKind = "throttle"
)

// ErrUnsupportedAction reports an unknown action kind. It aborts only
// the one action, never the batch.
var ErrUnsupportedAction = errors.New("unsupported containment action")

// Actuator applies a containment action against the protected system.
type Actuator interface {
	Apply(ctx context.Context, action ActionKind, target string) error
}

// LogActuator records actions in the log without touching anything.
type LogActuator struct{}

// Apply logs the action.
func (LogActuator) Apply(ctx context.Context, action ActionKind, target string) error {
	logger.Infof("Containment %s applied to %s", action, target)
	return nil
}

// ActionResult is the outcome of one containment step.
type ActionResult struct {
	Action   ActionKind `json:"action"`
	Target   string     `json:"target"`
	Executed bool       `json:"executed"`
	Err      error      `json:"-"`
}

// Executor applies containment actions, gated by integration mode.
// In passive mode no action is ever executed; recommendations are
// logged only. Repeating an action against the same target is a no-op
// success.
type Executor struct {
	active   bool
	actuator Actuator
	applied  *lru.Cache[string, struct{}]
}

// NewExecutor creates an executor. mode is "active" or "passive";
// anything else is treated as passive.
func NewExecutor(mode string, actuator Actuator) (*Executor, error) {
	if actuator == nil {
		actuator = LogActuator{}
	}
	applied, err := lru.New[string, struct{}](4096)
	if err != nil {
		return nil, fmt.Errorf("create containment dedupe cache: %w", err)
	}
	return &Executor{
		active:   mode == "active",
		actuator: actuator,
		applied:  applied,
	}, nil
}

// Execute applies one action. The bool result reports whether a side
// effect happened (or was already in place).
func (e *Executor) Execute(ctx context.Context, action ActionKind, target string) (bool, error) {
	switch action {
	case ActionBlockIP, ActionQuarantine, ActionIsolate, ActionThrottle:
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}

	if !e.active {
		logger.Infof("Passive mode: skipping containment %s for %s", action, target)
		return false, nil
	}

	key := string(action) + "|" + target
	if _, ok := e.applied.Get(key); ok {
		logger.Debugf("Containment %s already applied to %s", action, target)
		return true, nil
	}

	if err := e.actuator.Apply(ctx, action, target); err != nil {
		return false, fmt.Errorf("containment %s on %s: %w", action, target, err)
	}
	e.applied.Add(key, struct{}{})
	return true, nil
}

// ExecuteAll runs every recommended action, continuing past individual
// failures and returning per-action results.
func (e *Executor) ExecuteAll(ctx context.Context, recs []models.Recommendation) []ActionResult {
	results := make([]ActionResult, 0, len(recs))
	for _, rec := range recs {
		if rec.Action == "" || rec.Target == "" {
			continue
		}
		executed, err := e.Execute(ctx, ActionKind(rec.Action), rec.Target)
		if err != nil {
			logger.Warnf("Containment action failed: %v", err)
		}
		results = append(results, ActionResult{
			Action:   ActionKind(rec.Action),
			Target:   rec.Target,
			Executed: executed,
			Err:      err,
		})
	}
	return results
}
