package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/store"
	"github.com/kraigferns/feedback-intel/internal/workflow"
)

var (
	resumeRunID  string
	resumeFailed bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume unfinished enrichment runs from their last checkpoint",
	Long: `Re-dispatches runs left queued or running by a previous process. Completed
steps are not repeated. --failed also retries failed runs; --run resumes a
single run by id.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "resume")
		if err != nil {
			return err
		}
		defer env.Close()

		ids, err := resumableRuns(ctx, env.Store, resumeRunID, resumeFailed)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			zap.L().Info("no runs to resume")
			return nil
		}

		var dispatch func(ctx context.Context, runID string) error
		switch {
		case env.Local != nil:
			env.Local.Run(ctx)
			dispatch = env.Local.Enqueue
		default:
			te, ok := env.Engine.(*workflow.TemporalEngine)
			if !ok {
				return eris.New("engine cannot dispatch existing runs")
			}
			dispatch = te.Dispatch
		}

		for _, id := range ids {
			if err := dispatch(ctx, id); err != nil {
				return eris.Wrapf(err, "resume run %s", id)
			}
		}
		zap.L().Info("runs resumed", zap.Int("count", len(ids)))

		if env.Local != nil {
			return waitIdle(ctx, env.Store, 500*time.Millisecond)
		}
		return nil
	},
}

// resumableRuns returns runID alone when set, otherwise every unfinished run
// and, with failed, every failed run.
func resumableRuns(ctx context.Context, st store.Store, runID string, failed bool) ([]string, error) {
	if runID != "" {
		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return nil, eris.Wrapf(err, "load run %s", runID)
		}
		if run.Status == model.RunStatusComplete {
			return nil, eris.Errorf("run %s is already complete", runID)
		}
		return []string{run.ID}, nil
	}

	statuses := []model.RunStatus{model.RunStatusQueued, model.RunStatusRunning}
	if failed {
		statuses = append(statuses, model.RunStatusFailed)
	}
	runs, err := st.ListRuns(ctx, store.RunFilter{Statuses: statuses})
	if err != nil {
		return nil, eris.Wrap(err, "list runs")
	}
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func init() {
	resumeCmd.Flags().StringVar(&resumeRunID, "run", "", "resume a single run by id")
	resumeCmd.Flags().BoolVar(&resumeFailed, "failed", false, "also retry failed runs")
	rootCmd.AddCommand(resumeCmd)
}
