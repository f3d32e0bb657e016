package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/resilience"
	"github.com/kraigferns/feedback-intel/internal/store"
)

// RunHandle identifies a started run. It is the run ID.
type RunHandle string

// Engine schedules enrichment runs. Start returns once the run is durably
// recorded; execution happens asynchronously.
type Engine interface {
	Start(ctx context.Context, payload model.FeedbackPayload) (RunHandle, error)
}

// ErrEngineStopped is returned by Start after Stop.
var ErrEngineStopped = eris.New("workflow: engine stopped")

// LocalEngine executes runs on an in-process worker pool.
type LocalEngine struct {
	driver  *Driver
	store   store.Store
	policy  resilience.Policy
	workers int

	queue   chan string
	stopped chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewLocalEngine creates an engine. Call Run to start the workers.
func NewLocalEngine(driver *Driver, st store.Store, cfg config.WorkflowConfig) *LocalEngine {
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}

	policy := resilience.PolicyFromConfig(cfg)
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, store.ErrNotFound)
	}

	return &LocalEngine{
		driver:  driver,
		store:   st,
		policy:  policy,
		workers: workers,
		queue:   make(chan string, size),
		stopped: make(chan struct{}),
	}
}

// Run starts the worker pool. Workers exit when ctx is cancelled or Stop
// is called; runs left unfinished stay queued or running in the store and
// are picked up by Recover on the next start.
func (e *LocalEngine) Run(ctx context.Context) {
	e.startOnce.Do(func() {
		ctx, e.cancel = context.WithCancel(ctx)
		for i := 0; i < e.workers; i++ {
			e.wg.Add(1)
			go e.worker(ctx, i)
		}
		zap.L().Info("workflow: local engine started", zap.Int("workers", e.workers))
	})
}

// Stop cancels in-flight runs and waits for the workers to exit.
func (e *LocalEngine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopped)
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
	})
}

// Start records a new run for payload and queues it.
func (e *LocalEngine) Start(ctx context.Context, payload model.FeedbackPayload) (RunHandle, error) {
	run, err := e.store.CreateRun(ctx, payload)
	if err != nil {
		return "", eris.Wrapf(err, "workflow: create run for %s", payload.FeedbackID)
	}
	if err := e.enqueue(ctx, run.ID); err != nil {
		return "", err
	}
	return RunHandle(run.ID), nil
}

// Recover queues every run left queued or running by a previous process.
func (e *LocalEngine) Recover(ctx context.Context) (int, error) {
	runs, err := e.store.ListRuns(ctx, store.RunFilter{
		Statuses: []model.RunStatus{model.RunStatusQueued, model.RunStatusRunning},
	})
	if err != nil {
		return 0, eris.Wrap(err, "workflow: list unfinished runs")
	}
	for _, r := range runs {
		if err := e.enqueue(ctx, r.ID); err != nil {
			return 0, err
		}
	}
	if len(runs) > 0 {
		zap.L().Info("workflow: recovered unfinished runs", zap.Int("count", len(runs)))
	}
	return len(runs), nil
}

// Enqueue queues an existing run, e.g. one that previously failed.
func (e *LocalEngine) Enqueue(ctx context.Context, runID string) error {
	return e.enqueue(ctx, runID)
}

func (e *LocalEngine) enqueue(ctx context.Context, runID string) error {
	select {
	case <-e.stopped:
		return ErrEngineStopped
	default:
	}
	select {
	case e.queue <- runID:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return eris.Wrapf(ctx.Err(), "workflow: enqueue run %s", runID)
	}
}

func (e *LocalEngine) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case runID := <-e.queue:
			e.process(ctx, id, runID)
		}
	}
}

func (e *LocalEngine) process(ctx context.Context, worker int, runID string) {
	p := e.policy
	p.OnRetry = resilience.LogRetry("workflow.execute", zap.String("run_id", runID))

	err := resilience.Do(ctx, p, func(ctx context.Context) error {
		return e.driver.Execute(ctx, runID)
	})
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		zap.L().Info("workflow: run interrupted, will resume on restart",
			zap.String("run_id", runID),
			zap.Int("worker", worker),
		)
		return
	}
	if ferr := e.driver.Fail(ctx, runID, err); ferr != nil {
		zap.L().Error("workflow: record failure", zap.String("run_id", runID), zap.Error(ferr))
	}
}
