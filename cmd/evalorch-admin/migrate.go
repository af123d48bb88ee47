package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/evalorch/internal/bootstrap"
	"github.com/target/evalorch/internal/migrate"
)

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

func newMigrateCmd(cmdCtx *commandContext) *cobra.Command {
	opts := migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply archive database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrations(cmd, cmdCtx, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	cmd.Flags().BoolVar(&opts.Status, "status", false, "list pending migrations without applying them")
	return cmd
}

func runMigrations(cmd *cobra.Command, cmdCtx *commandContext, opts migrateOptions) error {
	if opts.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than zero")
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.Status {
		pending, pendingErr := migrate.Pending(ctx, db)
		if pendingErr != nil {
			return fmt.Errorf("list pending migrations: %w", pendingErr)
		}
		return renderMigrations(cmd.OutOrStdout(), pending)
	}

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}
	return writef(cmd.OutOrStdout(), "migrations completed successfully\n")
}
