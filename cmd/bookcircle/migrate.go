package main

import (
	"context"

	"github.com/spf13/cobra"

	"bookcircle/internal/database"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			return runMigrations(cmd.Context(), a)
		},
	}
}

func runMigrations(ctx context.Context, a *app) error {
	if err := database.Migrate(ctx, a.db); err != nil {
		return err
	}
	a.logger.Info("Schema up to date")
	return nil
}
