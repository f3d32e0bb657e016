package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker executing enrichment workflows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context(), "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		w := workflow.NewWorker(env.Temporal, cfg.Temporal, env.Driver)
		zap.L().Info("temporal worker starting",
			zap.String("host_port", cfg.Temporal.HostPort),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "temporal worker")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
