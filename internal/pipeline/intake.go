package pipeline

import (
	"context"
	"sync"
	"time"

	"threatrelay/internal/handler"
	"threatrelay/internal/logger"
	"threatrelay/internal/metrics"
	"threatrelay/pkg/models"
)

// Source yields decoded detector findings; a nil finding means no
// message was available before the block timeout.
type Source interface {
	Pop(ctx context.Context) (*models.ExecutionResult, error)
	Close() error
}

// IntakePipeline consumes externally reported findings and routes them
// through the escalation handler.
type IntakePipeline struct {
	source  Source
	handler *handler.Handler
	workers int
	metrics *metrics.Metrics
}

// NewIntakePipeline creates the intake pipeline.
func NewIntakePipeline(source Source, h *handler.Handler, workers int, m *metrics.Metrics) *IntakePipeline {
	return &IntakePipeline{
		source:  source,
		handler: h,
		workers: workers,
		metrics: m,
	}
}

// Run starts the intake loop and blocks until ctx is cancelled.
func (p *IntakePipeline) Run(ctx context.Context) error {
	logger.Infof("Finding intake pipeline started")

	if p.workers <= 0 {
		p.workers = 4
	}

	findingCh := make(chan *models.ExecutionResult, p.workers*4)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, findingCh)
		close(findingCh)
	}()

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx, findingCh)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close releases the source.
func (p *IntakePipeline) Close() error {
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

func (p *IntakePipeline) readLoop(ctx context.Context, out chan<- *models.ExecutionResult) {
	for {
		finding, err := p.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop intake finding: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if finding == nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case out <- finding:
		case <-ctx.Done():
			return
		}
	}
}

func (p *IntakePipeline) workerLoop(ctx context.Context, in <-chan *models.ExecutionResult) {
	for finding := range in {
		if p.metrics != nil {
			p.metrics.IntakeFindings.Inc()
		}

		if _, err := p.handler.HandleResult(ctx, finding); err != nil {
			logger.Warnf("Intake finding rejected: %v", err)
		}
	}
}
