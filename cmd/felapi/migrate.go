package main

import (
	"context"
	"fmt"

	"github.com/felapi/fel-auth/persistence"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(cmd, (*persistence.Migrator).Up, "applied")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(cmd, (*persistence.Migrator).Down, "rolled back")
		},
	})

	return cmd
}

type migrationStep func(*persistence.Migrator, context.Context) ([]string, error)

func runMigration(cmd *cobra.Command, step migrationStep, verb string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := persistence.NewMigrator(db)
	if err != nil {
		return err
	}

	names, err := step(migrator, ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, "nothing to do")
		return nil
	}
	for _, n := range names {
		fmt.Fprintf(out, "%s %s\n", verb, n)
	}
	return nil
}
