package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	tworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/store"
)

// Temporal registration names.
const (
	WorkflowName     = "EnrichFeedback"
	ActivityBegin    = "BeginRun"
	ActivityStep     = "ExecuteStep"
	ActivityComplete = "CompleteRun"
	ActivityFail     = "FailRun"
)

const workflowIDPrefix = "enrich-"

const defaultStepTimeout = time.Minute

// WorkflowID returns the Temporal workflow ID for a run.
func WorkflowID(runID string) string {
	return workflowIDPrefix + runID
}

// EnrichInput is the argument of the EnrichFeedback workflow.
type EnrichInput struct {
	RunID           string
	StepTimeout     time.Duration
	StepMaxAttempts int32
}

// EnrichFeedback is the Temporal workflow definition. Each step is an
// activity; Temporal's history makes completed activities durable, and the
// activities themselves are idempotent against the store checkpoints.
func EnrichFeedback(ctx tworkflow.Context, in EnrichInput) error {
	timeout := in.StepTimeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	ctx = tworkflow.WithActivityOptions(ctx, tworkflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    in.StepMaxAttempts,
		},
	})
	logger := tworkflow.GetLogger(ctx)

	run := func() error {
		if err := tworkflow.ExecuteActivity(ctx, ActivityBegin, in.RunID).Get(ctx, nil); err != nil {
			return err
		}
		for _, step := range Steps {
			if err := tworkflow.ExecuteActivity(ctx, ActivityStep, in.RunID, step).Get(ctx, nil); err != nil {
				return err
			}
		}
		return tworkflow.ExecuteActivity(ctx, ActivityComplete, in.RunID).Get(ctx, nil)
	}

	err := run()
	if err == nil {
		return nil
	}
	logger.Error("enrichment failed", "run_id", in.RunID, "error", err)
	if ferr := tworkflow.ExecuteActivity(ctx, ActivityFail, in.RunID, err.Error()).Get(ctx, nil); ferr != nil {
		logger.Error("record failure", "run_id", in.RunID, "error", ferr)
	}
	return err
}

// Activities adapts a Driver to Temporal activities.
type Activities struct {
	driver *Driver
}

// NewActivities creates the activity set for a worker.
func NewActivities(d *Driver) *Activities {
	return &Activities{driver: d}
}

func (a *Activities) BeginRun(ctx context.Context, runID string) error {
	return a.driver.Begin(ctx, runID, StepSentiment)
}

func (a *Activities) ExecuteStep(ctx context.Context, runID string, step Step) error {
	activity.RecordHeartbeat(ctx, string(step))
	err := a.driver.ExecuteStep(ctx, runID, step)
	if errors.Is(err, store.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "NotFound", err)
	}
	return err
}

func (a *Activities) CompleteRun(ctx context.Context, runID string) error {
	return a.driver.Complete(ctx, runID)
}

func (a *Activities) FailRun(ctx context.Context, runID string, msg string) error {
	return a.driver.Fail(ctx, runID, eris.New(msg))
}

// Registry is satisfied by worker.Worker and the Temporal test environment.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options tworkflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds the workflow and activities to r.
func Register(r Registry, acts *Activities) {
	r.RegisterWorkflowWithOptions(EnrichFeedback, tworkflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(acts.BeginRun, activity.RegisterOptions{Name: ActivityBegin})
	r.RegisterActivityWithOptions(acts.ExecuteStep, activity.RegisterOptions{Name: ActivityStep})
	r.RegisterActivityWithOptions(acts.CompleteRun, activity.RegisterOptions{Name: ActivityComplete})
	r.RegisterActivityWithOptions(acts.FailRun, activity.RegisterOptions{Name: ActivityFail})
}

// WorkflowStarter is the part of client.Client used to start runs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// TemporalEngine starts runs as Temporal workflows.
type TemporalEngine struct {
	store store.Store
	tc    WorkflowStarter
	cfg   config.TemporalConfig
}

// NewTemporalEngine creates an engine that records runs in st and hands
// execution to Temporal.
func NewTemporalEngine(st store.Store, tc WorkflowStarter, cfg config.TemporalConfig) *TemporalEngine {
	return &TemporalEngine{store: st, tc: tc, cfg: cfg}
}

// Start records the run and starts its workflow.
func (e *TemporalEngine) Start(ctx context.Context, payload model.FeedbackPayload) (RunHandle, error) {
	run, err := e.store.CreateRun(ctx, payload)
	if err != nil {
		return "", eris.Wrapf(err, "workflow: create run for %s", payload.FeedbackID)
	}
	if err := e.Dispatch(ctx, run.ID); err != nil {
		return "", err
	}
	return RunHandle(run.ID), nil
}

// Dispatch starts the workflow for an existing run.
func (e *TemporalEngine) Dispatch(ctx context.Context, runID string) error {
	wr, err := e.tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(runID),
		TaskQueue: e.cfg.TaskQueue,
	}, WorkflowName, EnrichInput{
		RunID:           runID,
		StepTimeout:     time.Duration(e.cfg.StepTimeoutSecs) * time.Second,
		StepMaxAttempts: int32(e.cfg.StepMaxAttempts),
	})
	if err != nil {
		return eris.Wrapf(err, "workflow: start temporal run %s", runID)
	}
	zap.L().Info("workflow: temporal run started",
		zap.String("run_id", runID),
		zap.String("workflow_id", wr.GetID()),
		zap.String("temporal_run_id", wr.GetRunID()),
	)
	return nil
}

// Dial connects to the Temporal frontend.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// NewWorker builds a worker hosting the enrichment workflow on the task queue.
func NewWorker(c client.Client, cfg config.TemporalConfig, d *Driver) worker.Worker {
	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	Register(w, NewActivities(d))
	return w
}
