package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/observability/metrics"
	"github.com/target/evalorch/internal/observability/statsd"
)

// ArchiveServiceOptions groups dependencies for ArchiveService.
type ArchiveServiceOptions struct {
	Archiver core.ResultArchiver   // Required: relational archive writer
	Config   config.ArchiverConfig // Required: queue and backoff settings
	Logger   *slog.Logger          // Optional: structured logger
	Metrics  statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ArchiveService copies finished jobs into the relational archive.
//
// Jobs arrive through a bounded queue and are written by a single worker. Transient
// failures are retried with exponential backoff; errors marked core.ErrPermanent are not.
// Archive outcomes never affect the job itself.
type ArchiveService struct {
	archiver core.ResultArchiver
	config   config.ArchiverConfig
	queue    chan *model.JobRecord
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewArchiveService constructs an ArchiveService.
func NewArchiveService(opts ArchiveServiceOptions) (*ArchiveService, error) {
	if opts.Archiver == nil {
		return nil, errors.New("ResultArchiver is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ArchiveService{
		archiver: opts.Archiver,
		config:   cfg,
		queue:    make(chan *model.JobRecord, cfg.QueueSize),
		logger:   logger.With("component", "archive_service"),
		metrics:  opts.Metrics,
	}, nil
}

// Enqueue hands a copy of job to the worker without blocking. It returns false when the
// queue is full and the job will not be archived.
func (s *ArchiveService) Enqueue(job *model.JobRecord) bool {
	if job == nil {
		return false
	}
	select {
	case s.queue <- job.Clone():
		metrics.EmitArchiveQueueDepth(s.metrics, len(s.queue))
		return true
	default:
		s.logger.Warn("archive queue full, dropping evaluation", "job_id", job.ID, "capacity", cap(s.queue))
		metrics.EmitArchiveAttempt(s.metrics, metrics.ArchiveAttempt{
			Result: metrics.ResultNoop,
			Final:  true,
		})
		return false
	}
}

// QueueDepth returns the number of jobs waiting to be archived.
func (s *ArchiveService) QueueDepth() int {
	return len(s.queue)
}

// Run drains the queue until ctx is cancelled. Jobs still queued at shutdown get one
// attempt each. Returns nil on graceful shutdown (context.Canceled).
func (s *ArchiveService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting archive service",
		"queue_size", cap(s.queue),
		"max_retries", s.config.MaxRetries,
	)

	for {
		select {
		case <-ctx.Done():
			s.drain(context.WithoutCancel(ctx))
			s.logger.InfoContext(ctx, "archive service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case job := <-s.queue:
			metrics.EmitArchiveQueueDepth(s.metrics, len(s.queue))
			if ctx.Err() != nil {
				s.archive(context.WithoutCancel(ctx), job, 0)
				continue
			}
			s.archive(ctx, job, s.config.MaxRetries)
		}
	}
}

func (s *ArchiveService) drain(ctx context.Context) {
	for {
		select {
		case job := <-s.queue:
			s.archive(ctx, job, 0)
		default:
			return
		}
	}
}

func (s *ArchiveService) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.InitialBackoff
	b.MaxInterval = s.config.MaxBackoff
	b.Multiplier = 2.0
	return b
}

// archive writes job with up to maxRetries retries. Errors wrapping core.ErrPermanent stop
// immediately.
func (s *ArchiveService) archive(ctx context.Context, job *model.JobRecord, maxRetries int) {
	maxTries := uint(maxRetries) + 1
	var attempt uint

	op := func() (struct{}, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, s.config.AttemptTimeout)
		start := time.Now()
		err := s.archiver.Archive(attemptCtx, job)
		elapsed := time.Since(start)
		cancel()

		permanent := errors.Is(err, core.ErrPermanent)
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.EmitArchiveAttempt(s.metrics, metrics.ArchiveAttempt{
			Result:   result,
			Attempt:  int(attempt),
			Final:    err == nil || permanent || attempt >= maxTries,
			Duration: elapsed,
			Err:      err,
		})
		if permanent {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.WarnContext(ctx, "archive attempt failed, retrying",
				"job_id", job.ID, "attempt", attempt, "next_backoff", next, "error", err)
		}),
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "archive evaluation failed",
			"job_id", job.ID,
			"attempts", attempt,
			"permanent", errors.Is(err, core.ErrPermanent),
			"error", err,
		)
		return
	}
	s.logger.DebugContext(ctx, "evaluation archived", "job_id", job.ID, "status", job.Status)
}
