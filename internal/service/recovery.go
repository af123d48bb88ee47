package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/observability/metrics"
	"github.com/target/evalorch/internal/observability/statsd"
)

// jobScheduler is the part of EvaluationScheduler used by recovery and submission.
type jobScheduler interface {
	Schedule(job *model.JobRecord) bool
}

// RecoveryServiceOptions groups dependencies for RecoveryService.
type RecoveryServiceOptions struct {
	Snapshots core.SnapshotStore    // Required: snapshot source
	Index     core.JobIndex         // Required: index to repopulate
	Scheduler jobScheduler          // Required: receives interrupted jobs
	Config    config.RecoveryConfig // Optional: recovery behaviour
	Logger    *slog.Logger          // Optional: structured logger
	Metrics   statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// RecoveryService restores the job index from persisted snapshots at startup and
// restarts jobs that were interrupted by the previous shutdown.
type RecoveryService struct {
	snapshots core.SnapshotStore
	index     core.JobIndex
	scheduler jobScheduler
	config    config.RecoveryConfig
	logger    *slog.Logger
	metrics   statsd.Sink
}

// RecoveryResult summarises one recovery pass.
type RecoveryResult struct {
	Loaded      int
	Indexed     int
	Rescheduled int
	Skipped     int
}

// NewRecoveryService constructs a RecoveryService.
func NewRecoveryService(opts RecoveryServiceOptions) (*RecoveryService, error) {
	switch {
	case opts.Snapshots == nil:
		return nil, errors.New("SnapshotStore is required")
	case opts.Index == nil:
		return nil, errors.New("JobIndex is required")
	case opts.Scheduler == nil:
		return nil, errors.New("scheduler is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RecoveryService{
		snapshots: opts.Snapshots,
		index:     opts.Index,
		scheduler: opts.Scheduler,
		config:    opts.Config,
		logger:    logger.With("component", "recovery_service"),
		metrics:   opts.Metrics,
	}, nil
}

// Run performs one recovery pass and returns. Returns nil on graceful shutdown (context.Canceled).
func (s *RecoveryService) Run(ctx context.Context) error {
	res, err := s.Recover(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	s.logger.InfoContext(ctx, "recovery finished",
		"loaded", res.Loaded,
		"indexed", res.Indexed,
		"rescheduled", res.Rescheduled,
		"skipped", res.Skipped,
	)
	return nil
}

// Recover loads every snapshot and indexes pending and running jobs (and terminal ones when
// configured). Pending records are indexed unchanged. Each running job is scheduled once with
// its results reset. Unreadable snapshots are logged and skipped.
func (s *RecoveryService) Recover(ctx context.Context) (RecoveryResult, error) {
	var res RecoveryResult

	jobs, err := s.snapshots.LoadAll(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		s.logger.WarnContext(ctx, "some snapshots could not be loaded", "error", err)
	}
	res.Loaded = len(jobs)

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if job.Status.IsTerminal() {
			if !s.config.IndexTerminal {
				continue
			}
			if s.put(ctx, job) {
				res.Indexed++
			}
			continue
		}

		if job.Status != model.JobStatusRunning {
			if s.put(ctx, job) {
				res.Indexed++
			}
			continue
		}

		reset := resetForRestart(job)
		if s.put(ctx, reset) {
			res.Indexed++
		}
		if !s.scheduler.Schedule(reset) {
			res.Skipped++
			continue
		}
		res.Rescheduled++
		metrics.EmitEvaluationLifecycle(s.metrics, metrics.EvaluationMetric{
			EvaluationType: string(reset.EvaluationType),
			Category:       reset.Category,
			Transition:     metrics.TransitionRecovered,
			Result:         metrics.ResultSuccess,
		})
		s.logger.InfoContext(ctx, "rescheduled interrupted evaluation", "job_id", reset.ID, "previous_status", job.Status)
	}

	return res, nil
}

func (s *RecoveryService) put(ctx context.Context, job *model.JobRecord) bool {
	if err := s.index.Put(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "index recovered evaluation failed", "job_id", job.ID, "error", err)
		return false
	}
	return true
}

// resetForRestart clears partial work so the job restarts from scratch.
func resetForRestart(job *model.JobRecord) *model.JobRecord {
	reset := job.Clone()
	reset.Status = model.JobStatusRunning
	reset.Results = make(map[string]*model.ModelResult, len(reset.Models))
	reset.Progress = 0
	reset.Summary = nil
	reset.EndTime = nil
	reset.Error = ""
	return reset
}
