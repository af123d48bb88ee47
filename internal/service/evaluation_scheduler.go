package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/catalog"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/observability/metrics"
	"github.com/target/evalorch/internal/observability/statsd"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEvaluationCancelled is recorded on jobs stopped through Cancel.
	ErrEvaluationCancelled = errors.New("evaluation cancelled")
	// ErrMalformedScore is recorded on metrics whose scorer returned an unusable result.
	ErrMalformedScore = errors.New("malformed score")
)

// archiveQueue accepts finished jobs for best-effort archival.
type archiveQueue interface {
	Enqueue(job *model.JobRecord) bool
}

// SchedulerStores groups where the scheduler writes job snapshots.
type SchedulerStores struct {
	Index     core.JobIndex          // Required: live job index
	Snapshots core.SnapshotStore     // Required: durable per-job snapshot
	Events    core.JobEventPublisher // Optional: status/progress fan-out
}

// SchedulerScoring groups the scoring collaborators.
type SchedulerScoring struct {
	Catalog  *catalog.Catalog    // Required: thresholds and display names
	Scorer   core.MetricScorer   // Required: quality metric scorer
	Security core.SecurityRunner // Required: security evaluation runner
}

// EvaluationSchedulerOptions groups dependencies for EvaluationScheduler.
type EvaluationSchedulerOptions struct {
	Stores  SchedulerStores
	Scoring SchedulerScoring
	Config  config.EvaluationConfig
	Archive archiveQueue        // Optional: receives terminal jobs
	Lock    core.SubmissionLock // Optional: dedup slot released at the end of a run
	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// EvaluationScheduler drives evaluation jobs to completion. Each job is owned by exactly
// one run, which mutates a private copy under a mutex and persists a clone after every change.
type EvaluationScheduler struct {
	stores  SchedulerStores
	scoring SchedulerScoring
	config  config.EvaluationConfig
	archive archiveQueue
	lock    core.SubmissionLock
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time

	mu   sync.Mutex
	runs map[string]*jobRun
	wg   sync.WaitGroup
}

type jobRun struct {
	mu       sync.Mutex
	job      *model.JobRecord
	progress *Progress
	cancel   context.CancelFunc
	started  time.Time

	lastStatus   model.JobStatus
	lastProgress int
	published    bool
}

// NewEvaluationScheduler constructs an EvaluationScheduler.
func NewEvaluationScheduler(opts EvaluationSchedulerOptions) (*EvaluationScheduler, error) {
	switch {
	case opts.Stores.Index == nil:
		return nil, errors.New("JobIndex is required")
	case opts.Stores.Snapshots == nil:
		return nil, errors.New("SnapshotStore is required")
	case opts.Scoring.Catalog == nil:
		return nil, errors.New("catalog is required")
	case opts.Scoring.Scorer == nil:
		return nil, errors.New("MetricScorer is required")
	case opts.Scoring.Security == nil:
		return nil, errors.New("SecurityRunner is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &EvaluationScheduler{
		stores:  opts.Stores,
		scoring: opts.Scoring,
		config:  opts.Config,
		archive: opts.Archive,
		lock:    opts.Lock,
		logger:  logger.With("component", "evaluation_scheduler"),
		metrics: opts.Metrics,
		now:     now,
		runs:    make(map[string]*jobRun),
	}, nil
}

// Schedule starts job on a detached goroutine and returns immediately. It returns false
// when the job is invalid or a run for the same id is already active.
func (s *EvaluationScheduler) Schedule(job *model.JobRecord) bool {
	if job == nil || job.ID == "" {
		return false
	}

	s.mu.Lock()
	if _, active := s.runs[job.ID]; active {
		s.mu.Unlock()
		s.logger.Warn("evaluation already scheduled", "job_id", job.ID)
		return false
	}

	live := job.Clone()
	live.Status = model.JobStatusRunning
	live.Summary = nil
	live.EndTime = nil
	live.Error = ""
	if live.Results == nil {
		live.Results = make(map[string]*model.ModelResult, len(live.Models))
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &jobRun{
		job:          live,
		progress:     NewProgress(live.TotalSteps()),
		cancel:       cancel,
		started:      s.now(),
		lastStatus:   job.Status,
		lastProgress: job.Progress,
	}
	s.runs[job.ID] = run
	active := len(s.runs)
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.EmitActiveEvaluations(s.metrics, active)
	go s.execute(ctx, run)
	return true
}

// Cancel stops launching new work for the job. It returns false when no run is active.
func (s *EvaluationScheduler) Cancel(id string) bool {
	s.mu.Lock()
	run, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	run.cancel()
	return true
}

// IsActive reports whether a run for id is in progress.
func (s *EvaluationScheduler) IsActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[id]
	return ok
}

// ActiveCount returns the number of runs in progress.
func (s *EvaluationScheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Wait blocks until every active run has finished or ctx ends.
func (s *EvaluationScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *EvaluationScheduler) execute(ctx context.Context, run *jobRun) {
	persistCtx := context.WithoutCancel(ctx)
	defer s.release(run)
	defer func() {
		if p := recover(); p != nil {
			s.fail(persistCtx, run, fmt.Errorf("evaluation panicked: %v", p))
		}
	}()

	s.logger.InfoContext(ctx, "evaluation started",
		"job_id", run.job.ID,
		"category", run.job.Category,
		"evaluation_type", run.job.EvaluationType,
		"models", len(run.job.Models),
		"metrics", len(run.job.Metrics),
	)
	s.update(persistCtx, run, func(*model.JobRecord) {})

	s.runModels(ctx, run)

	if ctx.Err() != nil && !run.progress.Finished() {
		s.fail(persistCtx, run, ErrEvaluationCancelled)
		return
	}
	s.complete(persistCtx, run)
}

func (s *EvaluationScheduler) runModels(ctx context.Context, run *jobRun) {
	var g errgroup.Group
	if s.config.ModelConcurrency > 0 {
		g.SetLimit(s.config.ModelConcurrency)
	}
	for _, modelKey := range run.job.Models {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer s.recoverWorker(ctx, run, modelKey)
			if ctx.Err() != nil {
				return nil
			}
			s.evaluateModel(ctx, run, modelKey)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *EvaluationScheduler) evaluateModel(ctx context.Context, run *jobRun, modelKey string) {
	persistCtx := context.WithoutCancel(ctx)
	s.update(persistCtx, run, func(job *model.JobRecord) {
		job.Results[modelKey] = &model.ModelResult{
			Model:   s.scoring.Catalog.DisplayName(modelKey),
			Status:  model.ModelStatusRunning,
			Metrics: make(map[string]model.MetricResult, len(job.Metrics)),
		}
	})

	if run.job.EvaluationType == model.EvaluationTypeSecurity {
		s.runSecurity(ctx, run, modelKey)
	} else {
		s.runQuality(ctx, run, modelKey)
	}

	s.update(persistCtx, run, func(job *model.JobRecord) {
		mr := job.Results[modelKey]
		mr.Status = modelStatus(mr)
	})
}

func (s *EvaluationScheduler) runQuality(ctx context.Context, run *jobRun, modelKey string) {
	var g errgroup.Group
	if s.config.MetricConcurrency > 0 {
		g.SetLimit(s.config.MetricConcurrency)
	}
	for _, metric := range run.job.Metrics {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer s.recoverWorker(ctx, run, modelKey)
			if ctx.Err() != nil {
				return nil
			}
			res := s.scoreMetric(ctx, run.job.Category, modelKey, metric)
			s.recordMetric(context.WithoutCancel(ctx), run, modelKey, metric, res)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *EvaluationScheduler) scoreMetric(ctx context.Context, category, modelKey, metric string) (res model.MetricResult) {
	threshold := s.scoring.Catalog.Threshold(category, metric)
	start := s.now()

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("scorer panicked: %v", p)
			res = s.metricError(threshold, err)
			metrics.EmitMetricScore(s.metrics, metrics.MetricScore{
				Metric: metric, Result: metrics.ResultError, Duration: s.now().Sub(start), Err: err,
			})
		}
	}()

	out, err := s.scoring.Scorer.Score(ctx, core.ScoreRequest{
		Model:     modelKey,
		Metric:    metric,
		Category:  category,
		Threshold: threshold,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "metric scoring failed",
			"model", modelKey, "metric", metric, "category", category, "error", err)
		metrics.EmitMetricScore(s.metrics, metrics.MetricScore{
			Metric: metric, Result: metrics.ResultError, Duration: s.now().Sub(start), Err: err,
		})
		return s.metricError(threshold, err)
	}

	if err := checkScore(out); err != nil {
		s.logger.WarnContext(ctx, "scorer returned malformed result",
			"model", modelKey, "metric", metric, "category", category, "error", err)
		metrics.EmitMetricScore(s.metrics, metrics.MetricScore{
			Metric: metric, Result: metrics.ResultError, Duration: s.now().Sub(start), Err: err,
		})
		return s.metricError(threshold, err)
	}

	out.Threshold = threshold
	out.Passed = out.Score >= threshold
	if out.Timestamp.IsZero() {
		out.Timestamp = s.now()
	}
	metrics.EmitMetricScore(s.metrics, metrics.MetricScore{
		Metric: metric, Result: metrics.ResultSuccess, Duration: s.now().Sub(start),
	})
	return out
}

// checkScore rejects results that would not survive JSON encoding or fall outside [0,100].
func checkScore(res model.MetricResult) error {
	if !isFinite(res.Score) || res.Score < 0 || res.Score > 100 {
		return fmt.Errorf("%w: score %v", ErrMalformedScore, res.Score)
	}
	if res.Details == nil {
		return nil
	}
	for name, b := range res.Details.Categories {
		if !isFinite(b.Rate) {
			return fmt.Errorf("%w: category %s rate %v", ErrMalformedScore, name, b.Rate)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *EvaluationScheduler) runSecurity(ctx context.Context, run *jobRun, modelKey string) {
	category := run.job.Category
	threshold := s.scoring.Catalog.Threshold(category, model.SecurityMetricKey)

	res := func() (res model.MetricResult) {
		defer func() {
			if p := recover(); p != nil {
				res = s.metricError(threshold, fmt.Errorf("security runner panicked: %v", p))
			}
		}()
		out := s.scoring.Security.Run(ctx, modelKey, category).MetricResult(threshold, s.now())
		if err := checkScore(out); err != nil {
			return s.metricError(threshold, err)
		}
		return out
	}()

	s.recordMetric(context.WithoutCancel(ctx), run, modelKey, model.SecurityMetricKey, res)
}

func (s *EvaluationScheduler) metricError(threshold float64, err error) model.MetricResult {
	return model.MetricResult{
		Score:     0,
		Threshold: threshold,
		Passed:    false,
		Timestamp: s.now(),
		Error:     err.Error(),
	}
}

func (s *EvaluationScheduler) recordMetric(ctx context.Context, run *jobRun, modelKey, metric string, res model.MetricResult) {
	s.update(ctx, run, func(job *model.JobRecord) {
		job.Results[modelKey].Metrics[metric] = res
		job.Progress = max(job.Progress, run.progress.Increment())
	})
}

// recoverWorker contains a panic to the model it happened in.
func (s *EvaluationScheduler) recoverWorker(ctx context.Context, run *jobRun, modelKey string) {
	p := recover()
	if p == nil {
		return
	}
	s.logger.ErrorContext(ctx, "model evaluation panicked", "job_id", run.job.ID, "model", modelKey, "panic", p)
	s.update(context.WithoutCancel(ctx), run, func(job *model.JobRecord) {
		if mr := job.Results[modelKey]; mr != nil {
			mr.Status = model.ModelStatusError
		}
	})
}

func modelStatus(mr *model.ModelResult) model.ModelStatus {
	for _, r := range mr.Metrics {
		if !r.Failed() {
			return model.ModelStatusCompleted
		}
	}
	return model.ModelStatusError
}

func (s *EvaluationScheduler) complete(ctx context.Context, run *jobRun) {
	snap := s.update(ctx, run, func(job *model.JobRecord) {
		end := s.now()
		job.Summary = CalculateSummary(job.Results)
		job.Status = model.JobStatusCompleted
		job.EndTime = &end
		job.Progress = 100
		job.Error = ""
	})

	s.logger.InfoContext(ctx, "evaluation completed",
		"job_id", snap.ID,
		"overall_score", snap.Summary.OverallScore,
		"recommendation", snap.Summary.Recommendation,
		"duration", s.now().Sub(run.started),
	)
	metrics.EmitEvaluationLifecycle(s.metrics, metrics.EvaluationMetric{
		EvaluationType: string(snap.EvaluationType),
		Category:       snap.Category,
		Transition:     metrics.TransitionCompleted,
		Result:         metrics.ResultSuccess,
		Duration:       s.now().Sub(run.started),
	})
	s.finalize(ctx, snap)
}

func (s *EvaluationScheduler) fail(ctx context.Context, run *jobRun, cause error) {
	snap := s.update(ctx, run, func(job *model.JobRecord) {
		end := s.now()
		job.Status = model.JobStatusError
		job.Summary = nil
		job.EndTime = &end
		job.Error = cause.Error()
	})

	transition := metrics.TransitionFailed
	if errors.Is(cause, ErrEvaluationCancelled) {
		transition = metrics.TransitionCancelled
		s.logger.InfoContext(ctx, "evaluation cancelled", "job_id", snap.ID, "progress", snap.Progress)
	} else {
		s.logger.ErrorContext(ctx, "evaluation failed", "job_id", snap.ID, "error", cause)
	}
	metrics.EmitEvaluationLifecycle(s.metrics, metrics.EvaluationMetric{
		EvaluationType: string(snap.EvaluationType),
		Category:       snap.Category,
		Transition:     transition,
		Result:         metrics.ResultError,
		Duration:       s.now().Sub(run.started),
		Err:            cause,
	})
	s.finalize(ctx, snap)
}

// finalize hands a terminal snapshot to the archive queue and frees the dedup slot.
func (s *EvaluationScheduler) finalize(ctx context.Context, snap *model.JobRecord) {
	if s.archive != nil && !s.archive.Enqueue(snap) {
		s.logger.WarnContext(ctx, "archive queue rejected evaluation", "job_id", snap.ID)
	}
	if s.lock != nil {
		if err := s.lock.Release(ctx, snap.DedupKey(), snap.ID); err != nil {
			s.logger.WarnContext(ctx, "release submission lock failed", "job_id", snap.ID, "error", err)
		}
	}
}

func (s *EvaluationScheduler) release(run *jobRun) {
	s.mu.Lock()
	delete(s.runs, run.job.ID)
	active := len(s.runs)
	s.mu.Unlock()

	run.cancel()
	metrics.EmitActiveEvaluations(s.metrics, active)
	s.wg.Done()
}

// update applies mutate to the live record and persists a clone while still holding the run
// lock, so snapshots reach the stores in mutation order.
func (s *EvaluationScheduler) update(ctx context.Context, run *jobRun, mutate func(*model.JobRecord)) *model.JobRecord {
	run.mu.Lock()
	defer run.mu.Unlock()

	mutate(run.job)
	snap := run.job.Clone()
	s.persist(ctx, run, snap)
	return snap
}

// persist writes snap to the index, the snapshot store and, on status or progress changes,
// the event publisher. Failures are logged and counted but never change the job.
func (s *EvaluationScheduler) persist(ctx context.Context, run *jobRun, snap *model.JobRecord) {
	err := s.stores.Index.Put(ctx, snap)
	metrics.EmitSnapshotWrite(s.metrics, "index", err)
	if err != nil {
		s.logger.ErrorContext(ctx, "index write failed", "job_id", snap.ID, "error", err)
	}

	err = s.stores.Snapshots.Save(ctx, snap)
	metrics.EmitSnapshotWrite(s.metrics, "file", err)
	if err != nil {
		s.logger.ErrorContext(ctx, "snapshot write failed", "job_id", snap.ID, "error", err)
	}

	if s.stores.Events == nil {
		return
	}
	if run.published && run.lastStatus == snap.Status && run.lastProgress == snap.Progress {
		return
	}
	run.published, run.lastStatus, run.lastProgress = true, snap.Status, snap.Progress
	err = s.stores.Events.Publish(ctx, snap)
	metrics.EmitSnapshotWrite(s.metrics, "event", err)
	if err != nil {
		s.logger.WarnContext(ctx, "job event publish failed", "job_id", snap.ID, "error", err)
	}
}
