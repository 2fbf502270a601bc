package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  "Creates the filings schema and brings its tables up to the current version. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := store.Migrate(ctx, st.Pool()); err != nil {
			return err
		}
		zap.L().Info("all migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
