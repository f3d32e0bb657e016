package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the feedback store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("store migrated",
			zap.String("driver", cfg.Store.Driver),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
