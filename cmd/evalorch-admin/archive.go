package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/target/evalorch/internal/bootstrap"
	"github.com/target/evalorch/internal/data"
)

func newArchiveCmd(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Query archived evaluations in PostgreSQL",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recently archived evaluations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be greater than zero")
			}
			return withArchive(cmdCtx, func(repo *data.EvaluationArchiveRepo) error {
				rows, err := repo.ListRecent(cmdCtx.Ctx, limit)
				if err != nil {
					return fmt.Errorf("list archive: %w", err)
				}
				return renderArchive(cmd.OutOrStdout(), rows)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of rows")

	show := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print the archived record of one evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmdCtx, func(repo *data.EvaluationArchiveRepo) error {
				row, err := repo.GetByJobID(cmdCtx.Ctx, args[0])
				if err != nil {
					return fmt.Errorf("get archived evaluation %s: %w", args[0], err)
				}
				return writef(cmd.OutOrStdout(), "%s\n", row.Record)
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func withArchive(cmdCtx *commandContext, fn func(*data.EvaluationArchiveRepo) error) error {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func(db *sql.DB) {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}(db)
	return fn(data.NewEvaluationArchiveRepo(db))
}
