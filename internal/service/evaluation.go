package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/catalog"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/observability/metrics"
	"github.com/target/evalorch/internal/observability/statsd"
)

var (
	// ErrInvalidRequest wraps submission validation failures.
	ErrInvalidRequest = errors.New("invalid evaluation request")
	// ErrDuplicateSubmission is returned under the reject dedup policy while the slot is held.
	ErrDuplicateSubmission = errors.New("an evaluation for this category and type is already running")
	// ErrCancellationDisabled is returned by Cancel when cancellation is turned off.
	ErrCancellationDisabled = errors.New("evaluation cancellation is disabled")
	// ErrJobNotRunning is returned by Cancel for jobs without an active run.
	ErrJobNotRunning = errors.New("evaluation is not running")
	// ErrJobNotFound is returned for unknown evaluation ids.
	ErrJobNotFound = core.ErrJobNotFound
)

// evaluationScheduler is the part of EvaluationScheduler the submission API drives.
type evaluationScheduler interface {
	Schedule(job *model.JobRecord) bool
	Cancel(id string) bool
}

// EvaluationServiceOptions groups dependencies for EvaluationService.
type EvaluationServiceOptions struct {
	Catalog   *catalog.Catalog        // Required: category, metric and model lookup
	Index     core.JobIndex           // Required: job index
	Snapshots core.SnapshotStore      // Required: durable snapshots
	Scheduler evaluationScheduler     // Required: runs accepted jobs
	Lock      core.SubmissionLock     // Optional: required for reject and reuse dedup policies
	Config    config.EvaluationConfig // Optional: dedup, cancellation and concurrency settings
	Logger    *slog.Logger            // Optional: structured logger
	Metrics   statsd.Sink             // Optional: metrics sink (StatsD-compatible)
	Now       func() time.Time        // Optional: clock, defaults to time.Now
	NewID     func() string           // Optional: id generator, defaults to uuid v4
}

// EvaluationService accepts evaluation submissions and answers status queries.
type EvaluationService struct {
	catalog   *catalog.Catalog
	index     core.JobIndex
	snapshots core.SnapshotStore
	scheduler evaluationScheduler
	lock      core.SubmissionLock
	config    config.EvaluationConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time
	newID     func() string
}

// EvaluationList is the response body of the list endpoint.
type EvaluationList struct {
	Evaluations []*model.JobRecord     `json:"evaluations"`
	Categories  []catalog.CategoryInfo `json:"categories"`
}

// CatalogView is the public projection of the catalog.
type CatalogView struct {
	Categories []catalog.CategoryInfo `json:"categories"`
	Metrics    []catalog.Metric       `json:"metrics"`
	Models     []catalog.Model        `json:"models"`
}

// NewEvaluationService constructs an EvaluationService.
func NewEvaluationService(opts EvaluationServiceOptions) (*EvaluationService, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("catalog is required")
	case opts.Index == nil:
		return nil, errors.New("JobIndex is required")
	case opts.Snapshots == nil:
		return nil, errors.New("SnapshotStore is required")
	case opts.Scheduler == nil:
		return nil, errors.New("scheduler is required")
	}

	cfg := opts.Config
	if !cfg.DedupPolicy.Valid() {
		cfg.DedupPolicy = config.DedupAllow
	}
	if cfg.DedupPolicy != config.DedupAllow && opts.Lock == nil {
		return nil, fmt.Errorf("dedup policy %q requires a submission lock", cfg.DedupPolicy)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &EvaluationService{
		catalog:   opts.Catalog,
		index:     opts.Index,
		snapshots: opts.Snapshots,
		scheduler: opts.Scheduler,
		lock:      opts.Lock,
		config:    cfg,
		logger:    logger.With("component", "evaluation_service"),
		metrics:   opts.Metrics,
		now:       now,
		newID:     newID,
	}, nil
}

// CancellationEnabled reports whether Cancel is available.
func (s *EvaluationService) CancellationEnabled() bool {
	return s.config.CancellationEnabled
}

// Submit validates req, creates a job record, persists it and schedules it. Under the reuse
// dedup policy the result may point at an already running job instead.
func (s *EvaluationService) Submit(ctx context.Context, req model.SubmitEvaluationRequest) (*model.SubmitEvaluationResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	metricKeys, err := s.catalog.MetricsFor(req.Category, req.EvaluationType)
	if err != nil {
		return nil, err
	}
	models, err := s.catalog.ResolveModels(req.Models)
	if err != nil {
		return nil, err
	}
	custom, err := req.CustomTestCasesJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	job := &model.JobRecord{
		ID:              s.newID(),
		Status:          model.JobStatusPending,
		Category:        req.Category,
		EvaluationType:  req.EvaluationType,
		Framework:       req.EvaluationType.Framework(),
		Metrics:         metricKeys,
		Models:          models,
		StartTime:       s.now().UTC(),
		Results:         make(map[string]*model.ModelResult, len(models)),
		CustomTestCases: custom,
	}

	reused, err := s.claimSlot(ctx, job)
	if err != nil {
		return nil, err
	}
	if reused != nil {
		s.logger.InfoContext(ctx, "reusing running evaluation",
			"job_id", reused.EvaluationID, "category", job.Category, "evaluation_type", job.EvaluationType)
		return reused, nil
	}

	if err := s.start(ctx, job); err != nil {
		s.releaseSlot(ctx, job)
		return nil, err
	}

	s.logger.InfoContext(ctx, "evaluation submitted",
		"job_id", job.ID,
		"category", job.Category,
		"evaluation_type", job.EvaluationType,
		"models", len(job.Models),
		"metrics", len(job.Metrics),
	)
	metrics.EmitEvaluationLifecycle(s.metrics, metrics.EvaluationMetric{
		EvaluationType: string(job.EvaluationType),
		Category:       job.Category,
		Transition:     metrics.TransitionSubmitted,
		Result:         metrics.ResultSuccess,
	})

	return &model.SubmitEvaluationResult{
		EvaluationID: job.ID,
		Data:         s.submitData(job),
	}, nil
}

// start indexes the pending record, marks it running, snapshots it and hands it to the scheduler.
func (s *EvaluationService) start(ctx context.Context, job *model.JobRecord) error {
	if err := s.index.Put(ctx, job); err != nil {
		return fmt.Errorf("index evaluation: %w", err)
	}

	job.Status = model.JobStatusRunning
	if err := s.index.Put(ctx, job); err != nil {
		return fmt.Errorf("index evaluation: %w", err)
	}
	if err := s.snapshots.Save(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "initial snapshot write failed", "job_id", job.ID, "error", err)
	}

	if !s.scheduler.Schedule(job) {
		err := fmt.Errorf("schedule evaluation %s: already active", job.ID)
		s.abandon(ctx, job, err)
		return err
	}
	return nil
}

// abandon records a job the scheduler refused as failed so it is not left running.
func (s *EvaluationService) abandon(ctx context.Context, job *model.JobRecord, cause error) {
	end := s.now().UTC()
	job.Status = model.JobStatusError
	job.EndTime = &end
	job.Error = cause.Error()
	if err := s.index.Put(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "index refused evaluation failed", "job_id", job.ID, "error", err)
	}
	if err := s.snapshots.Save(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "snapshot refused evaluation failed", "job_id", job.ID, "error", err)
	}
}

// claimSlot enforces the dedup policy. It returns a non-nil result when the submission
// should reuse the job holding the slot.
func (s *EvaluationService) claimSlot(ctx context.Context, job *model.JobRecord) (*model.SubmitEvaluationResult, error) {
	if s.config.DedupPolicy == config.DedupAllow || s.lock == nil {
		return nil, nil
	}
	key := job.DedupKey()

	for range 3 {
		acquired, holder, err := s.lock.Acquire(ctx, key, job.ID, s.config.DedupTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire submission lock: %w", err)
		}
		if acquired {
			return nil, nil
		}
		if holder == "" {
			continue
		}

		existing, err := s.index.Get(ctx, holder)
		switch {
		case err == nil && existing.Status.IsTerminal():
			s.logger.WarnContext(ctx, "releasing stale submission lock", "key", key, "holder", holder)
			if err := s.lock.Release(ctx, key, holder); err != nil {
				return nil, fmt.Errorf("release stale submission lock: %w", err)
			}
			continue
		case err != nil && !errors.Is(err, core.ErrJobNotFound):
			return nil, fmt.Errorf("look up running evaluation %s: %w", holder, err)
		}

		if s.config.DedupPolicy == config.DedupReject {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSubmission, holder)
		}
		data := s.submitData(job)
		if existing != nil {
			data = s.submitData(existing)
		}
		return &model.SubmitEvaluationResult{EvaluationID: holder, Reused: true, Data: data}, nil
	}
	return nil, fmt.Errorf("%w: lock for %s is contended", ErrDuplicateSubmission, key)
}

func (s *EvaluationService) releaseSlot(ctx context.Context, job *model.JobRecord) {
	if s.config.DedupPolicy == config.DedupAllow || s.lock == nil {
		return
	}
	if err := s.lock.Release(ctx, job.DedupKey(), job.ID); err != nil {
		s.logger.WarnContext(ctx, "release submission lock failed", "job_id", job.ID, "error", err)
	}
}

func (s *EvaluationService) submitData(job *model.JobRecord) model.SubmitEvaluationData {
	estimate := s.catalog.EstimateDuration(job.Metrics, len(job.Models), s.config.ModelConcurrency)
	return model.SubmitEvaluationData{
		Category:       job.Category,
		EvaluationType: job.EvaluationType,
		Framework:      job.Framework,
		Metrics:        job.Metrics,
		Models:         job.Models,
		EstimatedTime:  estimate.String(),
	}
}

// Get returns the latest snapshot of job id.
func (s *EvaluationService) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	job, err := s.index.Get(ctx, id)
	if errors.Is(err, core.ErrInvalidJobID) {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns every indexed job, newest first, together with the catalog categories.
func (s *EvaluationService) List(ctx context.Context) (*EvaluationList, error) {
	jobs, err := s.index.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	if jobs == nil {
		jobs = []*model.JobRecord{}
	}
	return &EvaluationList{
		Evaluations: jobs,
		Categories:  s.catalog.Categories(),
	}, nil
}

// Cancel stops a running job. The job ends with status error and keeps its partial results.
func (s *EvaluationService) Cancel(ctx context.Context, id string) error {
	if !s.config.CancellationEnabled {
		return ErrCancellationDisabled
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() || !s.scheduler.Cancel(id) {
		return fmt.Errorf("%w: %s is %s", ErrJobNotRunning, id, job.Status)
	}
	s.logger.InfoContext(ctx, "evaluation cancellation requested", "job_id", id)
	return nil
}

// Catalog returns the categories, metrics and models jobs can be built from.
func (s *EvaluationService) Catalog() CatalogView {
	return CatalogView{
		Categories: s.catalog.Categories(),
		Metrics:    s.catalog.Metrics(),
		Models:     s.catalog.Models(),
	}
}
