package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-talent/modules/talent/infrastructure/persistence"
)

type migrationOutput struct {
	Version  int64  `json:"version"`
	Path     string `json:"path"`
	State    string `json:"state,omitempty"`
	Duration string `json:"duration,omitempty"`
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the talent schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			results, err := persistence.Migrate(cmd.Context(), pool)
			out := make([]migrationOutput, 0, len(results))
			for _, r := range results {
				out = append(out, migrationOutput{Version: r.Source.Version, Path: r.Source.Path, Duration: r.Duration.String()})
			}
			if err != nil {
				return err
			}
			return writeJSON(out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			r, err := persistence.Rollback(cmd.Context(), pool)
			if err != nil {
				return err
			}
			return writeJSON(migrationOutput{Version: r.Source.Version, Path: r.Source.Path, Duration: r.Duration.String()})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			status, err := persistence.MigrationStatus(cmd.Context(), pool)
			if err != nil {
				return err
			}
			out := make([]migrationOutput, 0, len(status))
			for _, s := range status {
				out = append(out, migrationOutput{Version: s.Source.Version, Path: s.Source.Path, State: string(s.State)})
			}
			return writeJSON(out)
		},
	})
	return cmd
}
