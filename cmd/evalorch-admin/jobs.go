package main

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/target/evalorch/internal/data"
	"github.com/target/evalorch/internal/domain/model"
)

type jobsOptions struct {
	Dir    string
	Status string
	JSON   bool
}

func newJobsCmd(cmdCtx *commandContext) *cobra.Command {
	opts := &jobsOptions{}
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect persisted evaluation snapshots",
	}
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "results directory (defaults to EVAL_RESULTS_DIR)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List every snapshot, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openSnapshots(cmdCtx, opts)
			if err != nil {
				return err
			}
			jobs, err := repo.LoadAll(cmdCtx.Ctx)
			if err != nil {
				return fmt.Errorf("load snapshots: %w", err)
			}
			if opts.Status != "" {
				jobs = slices.DeleteFunc(jobs, func(j *model.JobRecord) bool {
					return string(j.Status) != opts.Status
				})
			}
			slices.SortFunc(jobs, func(a, b *model.JobRecord) int {
				return cmp.Or(b.StartTime.Compare(a.StartTime), cmp.Compare(a.ID, b.ID))
			})
			return renderJobs(cmd.OutOrStdout(), jobs)
		},
	}
	list.Flags().StringVar(&opts.Status, "status", "", "only show jobs with this status")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one snapshot with per-model results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openSnapshots(cmdCtx, opts)
			if err != nil {
				return err
			}
			job, err := repo.Load(cmdCtx.Ctx, args[0])
			if err != nil {
				return fmt.Errorf("load snapshot %s: %w", args[0], err)
			}
			if opts.JSON {
				raw, err := data.MarshalSnapshot(job)
				if err != nil {
					return err
				}
				return writef(cmd.OutOrStdout(), "%s\n", raw)
			}
			return renderJob(cmd.OutOrStdout(), job)
		},
	}
	show.Flags().BoolVar(&opts.JSON, "json", false, "print the raw snapshot")

	cmd.AddCommand(list, show)
	return cmd
}

func openSnapshots(cmdCtx *commandContext, opts *jobsOptions) (*data.FileSnapshotRepo, error) {
	dir := opts.Dir
	if dir == "" {
		dir = cmdCtx.Config.Evaluation.ResultsDir
	}
	repo, err := data.NewFileSnapshotRepo(dir)
	if err != nil {
		return nil, fmt.Errorf("open results directory %s: %w", dir, err)
	}
	return repo, nil
}
