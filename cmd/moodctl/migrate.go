package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RaiderRus/moodTrack/internal/config"
	"github.com/RaiderRus/moodTrack/internal/factory"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema (MOODTRACK_* environment)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			db, err := factory.OpenDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := factory.Migrate(cmd.Context(), cfg, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.DBDriver)
			return nil
		},
	}
}
