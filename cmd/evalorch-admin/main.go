// Command evalorch-admin inspects evaluation snapshots, the catalog and the archive database.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/bootstrap"
)

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

type configLoader func() (config.AppConfig, error)

const defaultMigrationTimeout = 5 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{Ctx: ctx, Logger: bootstrap.InitLogger("warn")}
	if err := newRootCmd(cmdCtx, bootstrap.LoadConfig).ExecuteContext(ctx); err != nil {
		cmdCtx.Logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd(cmdCtx *commandContext, load configLoader) *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "evalorch-admin",
		Short:         "Administrative tasks for the evaluation orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmdCtx.Config = cfg
			if cmd.Flags().Changed("log-level") {
				cmdCtx.Logger = bootstrap.InitLogger(logLevel)
			}
			if ctx := cmd.Context(); ctx != nil {
				cmdCtx.Ctx = ctx
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	root.AddCommand(
		newMigrateCmd(cmdCtx),
		newCatalogCmd(cmdCtx),
		newJobsCmd(cmdCtx),
		newArchiveCmd(cmdCtx),
	)
	return root
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
