// Package workflow runs the per-item enrichment pipeline as a sequence of
// checkpointed steps. A run interrupted at any point resumes from the last
// persisted step; only storage failures fail a run.
package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/classify"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/scorer"
	"github.com/kraigferns/feedback-intel/internal/store"
)

// Classifier is the text classification used by the pipeline steps.
type Classifier interface {
	Sentiment(ctx context.Context, text string) classify.Outcome[classify.SentimentResult]
	Themes(ctx context.Context, text string) classify.Outcome[[]string]
	Urgency(ctx context.Context, text string, tier model.Tier) classify.Outcome[model.Urgency]
	Summary(ctx context.Context, text string) classify.Outcome[string]
}

// Driver executes enrichment runs against the store.
type Driver struct {
	store      store.Store
	classifier Classifier
	scorer     *scorer.Scorer
	now        func() time.Time
}

// NewDriver creates a Driver.
func NewDriver(st store.Store, c Classifier, sc *scorer.Scorer) *Driver {
	return &Driver{store: st, classifier: c, scorer: sc, now: time.Now}
}

// Execute runs every pending step of runID in order and marks the run
// complete. Steps already checkpointed are not run again.
func (d *Driver) Execute(ctx context.Context, runID string) error {
	run, state, done, err := d.load(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status == model.RunStatusComplete {
		return nil
	}

	log := zap.L().With(zap.String("run_id", runID), zap.String("feedback_id", run.FeedbackID))

	if err := d.Begin(ctx, runID, nextPending(done)); err != nil {
		return err
	}

	for _, step := range Steps {
		if done[step] {
			log.Debug("workflow: step already checkpointed", zap.String("step", string(step)))
			continue
		}
		if err := d.runStep(ctx, run, state, step); err != nil {
			return err
		}
		done[step] = true
	}

	if err := d.Complete(ctx, runID); err != nil {
		return err
	}
	log.Info("workflow: run complete",
		zap.String("urgency", string(state.Urgency)),
		zap.Float64("priority_score", state.PriorityScore),
	)
	return nil
}

// ExecuteStep runs a single step of runID. It is a no-op when the step is
// already checkpointed and fails if an earlier step is still pending.
func (d *Driver) ExecuteStep(ctx context.Context, runID string, step Step) error {
	idx := stepIndex(step)
	if idx < 0 {
		return eris.Errorf("workflow: unknown step %q", step)
	}

	run, state, done, err := d.load(ctx, runID)
	if err != nil {
		return err
	}
	if done[step] {
		return nil
	}
	for _, prior := range Steps[:idx] {
		if !done[prior] {
			return eris.Errorf("workflow: run %s step %s requires %s", runID, step, prior)
		}
	}
	return d.runStep(ctx, run, state, step)
}

// Begin marks runID running and counts an attempt.
func (d *Driver) Begin(ctx context.Context, runID string, current Step) error {
	err := d.store.UpdateRunStatus(ctx, runID, store.RunUpdate{
		Status:      model.RunStatusRunning,
		CurrentStep: string(current),
	})
	return eris.Wrapf(err, "workflow: begin run %s", runID)
}

// Complete marks runID complete.
func (d *Driver) Complete(ctx context.Context, runID string) error {
	err := d.store.UpdateRunStatus(ctx, runID, store.RunUpdate{
		Status:      model.RunStatusComplete,
		CurrentStep: StateComplete,
	})
	return eris.Wrapf(err, "workflow: complete run %s", runID)
}

// Fail marks runID failed with cause.
func (d *Driver) Fail(ctx context.Context, runID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	zap.L().Error("workflow: run failed", zap.String("run_id", runID), zap.Error(cause))
	err := d.store.UpdateRunStatus(ctx, runID, store.RunUpdate{
		Status: model.RunStatusFailed,
		Error:  msg,
	})
	return eris.Wrapf(err, "workflow: fail run %s", runID)
}

// load reads the run and rebuilds its state from persisted checkpoints.
func (d *Driver) load(ctx context.Context, runID string) (*model.Run, *State, map[Step]bool, error) {
	run, err := d.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, nil, eris.Wrapf(err, "workflow: load run %s", runID)
	}
	recs, err := d.store.LoadSteps(ctx, runID)
	if err != nil {
		return nil, nil, nil, eris.Wrapf(err, "workflow: load steps %s", runID)
	}

	state := &State{Payload: run.Payload}
	done := make(map[Step]bool, len(recs))
	for _, rec := range recs {
		step, ok := ParseStep(rec.Step)
		if !ok {
			zap.L().Warn("workflow: ignoring unknown checkpoint",
				zap.String("run_id", runID),
				zap.String("step", rec.Step),
			)
			continue
		}
		if len(rec.Output) > 0 {
			if err := json.Unmarshal(rec.Output, state); err != nil {
				return nil, nil, nil, eris.Wrapf(err, "workflow: decode checkpoint %s/%s", runID, step)
			}
		}
		done[step] = true
	}
	return run, state, done, nil
}

func nextPending(done map[Step]bool) Step {
	for _, s := range Steps {
		if !done[s] {
			return s
		}
	}
	return StepStored
}

// runStep computes one step, folds its output into state and persists the
// checkpoint before returning.
func (d *Driver) runStep(ctx context.Context, run *model.Run, state *State, step Step) error {
	out, err := d.compute(ctx, run, state, step)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return eris.Wrapf(err, "workflow: encode %s output", step)
	}
	if err := json.Unmarshal(raw, state); err != nil {
		return eris.Wrapf(err, "workflow: apply %s output", step)
	}

	err = d.store.SaveStep(ctx, model.StepRecord{
		RunID:       run.ID,
		Step:        string(step),
		Output:      raw,
		CompletedAt: d.now(),
	})
	if err != nil {
		return eris.Wrapf(err, "workflow: checkpoint %s/%s", run.ID, step)
	}

	zap.L().Debug("workflow: step checkpointed",
		zap.String("run_id", run.ID),
		zap.String("step", string(step)),
	)
	return nil
}

func (d *Driver) compute(ctx context.Context, run *model.Run, state *State, step Step) (any, error) {
	p := state.Payload

	switch step {
	case StepSentiment:
		o := d.classifier.Sentiment(ctx, p.Content)
		return sentimentOutput{Sentiment: o.Value.Label, SentimentScore: o.Value.Score, Source: o.Source}, nil

	case StepThemes:
		o := d.classifier.Themes(ctx, p.Content)
		return themesOutput{Themes: o.Value, Source: o.Source}, nil

	case StepUrgency:
		o := d.classifier.Urgency(ctx, p.Content, p.CustomerTier)
		return urgencyOutput{Urgency: o.Value, Source: o.Source}, nil

	case StepSummary:
		o := d.classifier.Summary(ctx, p.Content)
		return summaryOutput{Summary: o.Value, Source: o.Source}, nil

	case StepPriority:
		age := scorer.AgeDays(p.CreatedAt, d.now())
		score := d.scorer.Priority(scorer.Input{
			Tier:      p.CustomerTier,
			Urgency:   state.Urgency,
			Sentiment: state.Sentiment,
			AgeDays:   age,
		})
		return priorityOutput{PriorityScore: score, AgeDays: age}, nil

	case StepStored:
		processedAt := d.now().UTC().Truncate(time.Millisecond)
		written, err := d.store.SaveEnrichment(ctx, run.FeedbackID, state.Enrichment(processedAt))
		if err != nil {
			return nil, eris.Wrapf(err, "workflow: store enrichment %s", run.FeedbackID)
		}
		if !written {
			zap.L().Info("workflow: feedback already processed",
				zap.String("run_id", run.ID),
				zap.String("feedback_id", run.FeedbackID),
			)
		}
		return storedOutput{ProcessedAt: processedAt, Written: written}, nil
	}
	return nil, eris.Errorf("workflow: unknown step %q", step)
}
