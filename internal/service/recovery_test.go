package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/testutil"
)

// fakeScheduler records every job handed to Schedule.
type fakeScheduler struct {
	mu       sync.Mutex
	jobs     []*model.JobRecord
	cancels  []string
	reject   bool
	canceled bool
}

func (f *fakeScheduler) Schedule(job *model.JobRecord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.jobs = append(f.jobs, job.Clone())
	return true
}

func (f *fakeScheduler) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	return f.canceled
}

func (f *fakeScheduler) scheduled() []*model.JobRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.JobRecord(nil), f.jobs...)
}

func saveSnapshots(t *testing.T, store core.SnapshotStore, jobs ...*model.JobRecord) {
	t.Helper()
	for _, job := range jobs {
		require.NoError(t, store.Save(context.Background(), job))
	}
}

func interruptedJob(id string) *model.JobRecord {
	job := testutil.NewJobRecord(id)
	job.Status = model.JobStatusRunning
	job.Progress = 50
	job.Results = map[string]*model.ModelResult{
		"gpt-4": {
			Model:   "GPT-4",
			Status:  model.ModelStatusRunning,
			Metrics: map[string]model.MetricResult{"bias": {Score: 88, Threshold: 70, Passed: true}},
		},
	}
	return job
}

func completedRecord(id string) *model.JobRecord {
	job := testutil.NewJobRecord(id)
	end := testutil.TestTime().Add(time.Minute)
	job.Status = model.JobStatusCompleted
	job.Progress = 100
	job.EndTime = &end
	job.Summary = &model.Summary{ModelScores: map[string]int{}, Recommendation: model.RecommendationNeedsImprovement}
	return job
}

func newRecovery(t *testing.T, cfg config.RecoveryConfig) (*RecoveryService, *fakeScheduler, core.JobIndex, core.SnapshotStore) {
	t.Helper()
	index := newMemoryIndex(t)
	snapshots := newSnapshotRepo(t)
	sched := &fakeScheduler{}
	svc, err := NewRecoveryService(RecoveryServiceOptions{
		Snapshots: snapshots,
		Index:     index,
		Scheduler: sched,
		Config:    cfg,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	return svc, sched, index, snapshots
}

func TestRecoveryService_ReschedulesInterruptedJobs(t *testing.T) {
	svc, sched, index, snapshots := newRecovery(t, config.RecoveryConfig{})
	saveSnapshots(t, snapshots, interruptedJob("job-running"), completedRecord("job-done"))

	res, err := svc.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoveryResult{Loaded: 2, Indexed: 1, Rescheduled: 1}, res)

	jobs := sched.scheduled()
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, "job-running", job.ID)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.Zero(t, job.Progress)
	assert.Empty(t, job.Results)
	assert.Nil(t, job.Summary)
	assert.Nil(t, job.EndTime)

	got, err := index.Get(context.Background(), "job-running")
	require.NoError(t, err)
	assert.Zero(t, got.Progress)
	assert.Empty(t, got.Results)

	_, err = index.Get(context.Background(), "job-done")
	require.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestRecoveryService_IndexesPendingWithoutScheduling(t *testing.T) {
	svc, sched, index, snapshots := newRecovery(t, config.RecoveryConfig{})
	pending := testutil.NewJobRecord("job-pending")
	pending.Progress = 10
	saveSnapshots(t, snapshots, pending)

	res, err := svc.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoveryResult{Loaded: 1, Indexed: 1}, res)
	assert.Empty(t, sched.scheduled())

	got, err := index.Get(context.Background(), "job-pending")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, 10, got.Progress)
}

func TestRecoveryService_IndexesTerminalWhenConfigured(t *testing.T) {
	svc, sched, index, snapshots := newRecovery(t, config.RecoveryConfig{IndexTerminal: true})
	saveSnapshots(t, snapshots, completedRecord("job-done"))

	res, err := svc.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoveryResult{Loaded: 1, Indexed: 1}, res)
	assert.Empty(t, sched.scheduled())

	got, err := index.Get(context.Background(), "job-done")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.Summary)
}

func TestRecoveryService_CountsRejectedSchedules(t *testing.T) {
	svc, sched, _, snapshots := newRecovery(t, config.RecoveryConfig{})
	sched.reject = true
	saveSnapshots(t, snapshots, interruptedJob("job-running"))

	res, err := svc.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Rescheduled)
}

func TestRecoveryService_Run(t *testing.T) {
	svc, sched, _, snapshots := newRecovery(t, config.RecoveryConfig{})
	saveSnapshots(t, snapshots, interruptedJob("job-running"))

	require.NoError(t, svc.Run(context.Background()))
	assert.Len(t, sched.scheduled(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, svc.Run(ctx))
}

func TestRecoveryService_RecoveredJobRunsToCompletion(t *testing.T) {
	f := newSchedulerFixture(t, fixtureOptions{})
	saveSnapshots(t, f.snapshots, interruptedJob("job-resume"))

	svc, err := NewRecoveryService(RecoveryServiceOptions{
		Snapshots: f.snapshots,
		Index:     f.index,
		Scheduler: f.scheduler,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	res, err := svc.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rescheduled)
	waitIdle(t, f.scheduler)

	got, err := f.index.Get(context.Background(), "job-resume")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Len(t, got.Results, 2)
	assert.Equal(t, 0, f.index.progressOf("job-resume")[0], "restart begins from zero")
}
