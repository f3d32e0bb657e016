package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/importer"
)

var importWait bool

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import feedback from the configured sources",
	Long: `Fetches every source in import.sources, skips content already stored and
starts enrichment for each new item. With the local engine, --wait (default)
keeps the process alive until the new runs finish.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Local != nil {
			env.Local.Run(ctx)
		}

		counts, err := env.Importer.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		total := 0
		for _, name := range importer.Names(counts) {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d\n", name, counts[name])
			total += counts[name]
		}
		zap.L().Info("import complete", zap.Int("imported", total))

		if env.Local != nil && importWait && total > 0 {
			zap.L().Info("waiting for enrichment runs")
			if err := waitIdle(ctx, env.Store, 500*time.Millisecond); err != nil {
				return eris.Wrap(err, "wait for runs")
			}
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importWait, "wait", true, "wait for local enrichment runs to finish")
	rootCmd.AddCommand(importCmd)
}
