package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "feedback-intel",
	Short: "Customer feedback triage and enrichment",
	Long:  "Ingests customer feedback, classifies sentiment, themes and urgency with an LLM provider, scores priority and serves the results over an HTTP API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
