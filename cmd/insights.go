package main

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kraigferns/feedback-intel/internal/insights"
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Print aggregate feedback insights as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := insights.Compute(cmd.Context(), st, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "compute insights")
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(insightsCmd)
}
