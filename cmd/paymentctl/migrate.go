package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ms-payments/internal/database/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().String("dir", "", "migrations directory (default MIGRATIONS_DIR)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(r *migrations.Runner) error { return r.Up() })
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withRunner(cmd, func(r *migrations.Runner) error { return r.Down(steps) })
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "to [version]",
		Short: "Migrate up or down to an exact version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var version uint
			if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withRunner(cmd, func(r *migrations.Runner) error { return r.To(version) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(r *migrations.Runner) error {
				version, dirty, err := r.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func withRunner(cmd *cobra.Command, fn func(r *migrations.Runner) error) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	db, err := e.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	opts := migrations.Options{MigrationsDir: e.cfg.Database.MigrationsDir}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		opts.MigrationsDir = dir
	}
	runner := migrations.NewRunner(db, opts, e.log)
	defer runner.Close()
	return fn(runner)
}
