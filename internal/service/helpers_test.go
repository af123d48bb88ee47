package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/catalog"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/data"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func newMemoryIndex(t *testing.T) *data.BadgerJobIndex {
	t.Helper()
	db, err := data.OpenBadger(data.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return data.NewBadgerJobIndex(db)
}

func newSnapshotRepo(t *testing.T) *data.FileSnapshotRepo {
	t.Helper()
	repo, err := data.NewFileSnapshotRepo(t.TempDir())
	require.NoError(t, err)
	return repo
}

// recordingIndex wraps a JobIndex and keeps the progress of every Put per job.
type recordingIndex struct {
	core.JobIndex

	mu       sync.Mutex
	progress map[string][]int
	statuses map[string][]model.JobStatus
}

func newRecordingIndex(inner core.JobIndex) *recordingIndex {
	return &recordingIndex{
		JobIndex: inner,
		progress: make(map[string][]int),
		statuses: make(map[string][]model.JobStatus),
	}
}

func (r *recordingIndex) Put(ctx context.Context, job *model.JobRecord) error {
	r.mu.Lock()
	r.progress[job.ID] = append(r.progress[job.ID], job.Progress)
	r.statuses[job.ID] = append(r.statuses[job.ID], job.Status)
	r.mu.Unlock()
	return r.JobIndex.Put(ctx, job)
}

func (r *recordingIndex) progressOf(id string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progress[id]...)
}

func (r *recordingIndex) statusesOf(id string) []model.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.JobStatus(nil), r.statuses[id]...)
}

// scorerFunc adapts a function to core.MetricScorer.
type scorerFunc func(ctx context.Context, req core.ScoreRequest) (model.MetricResult, error)

func (f scorerFunc) Score(ctx context.Context, req core.ScoreRequest) (model.MetricResult, error) {
	return f(ctx, req)
}

// fixedScorer scores every pair with score.
func fixedScorer(score float64) scorerFunc {
	return func(_ context.Context, req core.ScoreRequest) (model.MetricResult, error) {
		return model.MetricResult{
			Score:     score,
			Threshold: req.Threshold,
			Passed:    score >= req.Threshold,
			Timestamp: testutil.TestTime(),
		}, nil
	}
}

// securityFunc adapts a function to core.SecurityRunner.
type securityFunc func(ctx context.Context, modelKey, category string) model.SecurityResult

func (f securityFunc) Run(ctx context.Context, modelKey, category string) model.SecurityResult {
	return f(ctx, modelKey, category)
}

// recordingQueue implements archiveQueue.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []*model.JobRecord
}

func (q *recordingQueue) Enqueue(job *model.JobRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job.Clone())
	return true
}

func (q *recordingQueue) received() []*model.JobRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*model.JobRecord(nil), q.jobs...)
}

// recordingPublisher implements core.JobEventPublisher.
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.JobStatus
}

func (p *recordingPublisher) Publish(_ context.Context, job *model.JobRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, job.Status)
	return nil
}

func (p *recordingPublisher) statuses() []model.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.JobStatus(nil), p.events...)
}

type schedulerFixture struct {
	scheduler *EvaluationScheduler
	index     *recordingIndex
	snapshots *data.FileSnapshotRepo
	catalog   *catalog.Catalog
	queue     *recordingQueue
	events    *recordingPublisher
}

type fixtureOptions struct {
	scorer   core.MetricScorer
	security core.SecurityRunner
	config   config.EvaluationConfig
	lock     core.SubmissionLock
}

func newSchedulerFixture(t *testing.T, opts fixtureOptions) *schedulerFixture {
	t.Helper()
	if opts.scorer == nil {
		opts.scorer = fixedScorer(80)
	}
	if opts.security == nil {
		opts.security = securityFunc(func(context.Context, string, string) model.SecurityResult {
			return model.SecurityResult{Score: 90, TotalTests: 10, Resisted: 9, Failed: 1, Source: model.SecuritySourceMarkers}
		})
	}

	f := &schedulerFixture{
		index:     newRecordingIndex(newMemoryIndex(t)),
		snapshots: newSnapshotRepo(t),
		catalog:   testCatalog(t),
		queue:     &recordingQueue{},
		events:    &recordingPublisher{},
	}
	sched, err := NewEvaluationScheduler(EvaluationSchedulerOptions{
		Stores: SchedulerStores{Index: f.index, Snapshots: f.snapshots, Events: f.events},
		Scoring: SchedulerScoring{
			Catalog:  f.catalog,
			Scorer:   opts.scorer,
			Security: opts.security,
		},
		Config:  opts.config,
		Archive: f.queue,
		Lock:    opts.lock,
		Logger:  discardLogger(),
	})
	require.NoError(t, err)
	f.scheduler = sched
	return f
}

// runningJob returns a running job ready to be scheduled.
func runningJob(id, category string, evalType model.EvaluationType, metrics, models []string) *model.JobRecord {
	return &model.JobRecord{
		ID:             id,
		Status:         model.JobStatusRunning,
		Category:       category,
		EvaluationType: evalType,
		Framework:      evalType.Framework(),
		Metrics:        metrics,
		Models:         models,
		StartTime:      testutil.TestTime(),
		Results:        map[string]*model.ModelResult{},
	}
}

func waitIdle(t *testing.T, s *EvaluationScheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}
