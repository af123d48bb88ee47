package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/mocks"
	"go.uber.org/mock/gomock"
)

func newArchiveService(t *testing.T, archiver core.ResultArchiver, queueSize int) *ArchiveService {
	t.Helper()
	svc, err := NewArchiveService(ArchiveServiceOptions{
		Archiver: archiver,
		Config: config.ArchiverConfig{
			QueueSize:      queueSize,
			MaxRetries:     3,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     20 * time.Millisecond,
			AttemptTimeout: time.Second,
		},
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	return svc
}

// startArchiver runs svc until the returned stop func is called.
func startArchiver(t *testing.T, svc *ArchiveService) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("archive service did not stop")
		}
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for archive call")
	}
}

func TestNewArchiveService_RequiresArchiver(t *testing.T) {
	_, err := NewArchiveService(ArchiveServiceOptions{})
	require.Error(t, err)
}

func TestArchiveService_ArchivesJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	archiver := mocks.NewMockResultArchiver(ctrl)
	done := make(chan struct{})
	archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, job *model.JobRecord) error {
			assert.Equal(t, "job-1", job.ID)
			close(done)
			return nil
		}).Times(1)

	svc := newArchiveService(t, archiver, 4)
	stop := startArchiver(t, svc)
	defer stop()

	assert.True(t, svc.Enqueue(completedRecord("job-1")))
	waitSignal(t, done)
}

func TestArchiveService_RetriesTransientErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	archiver := mocks.NewMockResultArchiver(ctrl)
	done := make(chan struct{})
	gomock.InOrder(
		archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).Return(errors.New("connection reset")).Times(2),
		archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, *model.JobRecord) error {
				close(done)
				return nil
			}).Times(1),
	)

	svc := newArchiveService(t, archiver, 4)
	stop := startArchiver(t, svc)
	defer stop()

	require.True(t, svc.Enqueue(completedRecord("job-1")))
	waitSignal(t, done)
}

func TestArchiveService_StopsAfterMaxRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	archiver := mocks.NewMockResultArchiver(ctrl)
	done := make(chan struct{})
	calls := 0
	archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *model.JobRecord) error {
			calls++
			if calls == 4 {
				close(done)
			}
			return errors.New("connection refused")
		}).Times(4)

	svc := newArchiveService(t, archiver, 4)
	stop := startArchiver(t, svc)

	require.True(t, svc.Enqueue(completedRecord("job-1")))
	waitSignal(t, done)
	time.Sleep(100 * time.Millisecond)
	stop()
}

func TestArchiveService_PermanentErrorIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	archiver := mocks.NewMockResultArchiver(ctrl)
	done := make(chan struct{})
	archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *model.JobRecord) error {
			close(done)
			return fmt.Errorf("constraint violation: %w", core.ErrPermanent)
		}).Times(1)

	svc := newArchiveService(t, archiver, 4)
	stop := startArchiver(t, svc)

	require.True(t, svc.Enqueue(completedRecord("job-1")))
	waitSignal(t, done)
	time.Sleep(50 * time.Millisecond)
	stop()
}

func TestArchiveService_EnqueueWhenFull(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := newArchiveService(t, mocks.NewMockResultArchiver(ctrl), 1)

	assert.True(t, svc.Enqueue(completedRecord("job-1")))
	assert.False(t, svc.Enqueue(completedRecord("job-2")))
	assert.False(t, svc.Enqueue(nil))
	assert.Equal(t, 1, svc.QueueDepth())
}

func TestArchiveService_EnqueueCopiesJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	archiver := mocks.NewMockResultArchiver(ctrl)
	svc := newArchiveService(t, archiver, 2)

	job := completedRecord("job-1")
	require.True(t, svc.Enqueue(job))
	job.Status = model.JobStatusError

	archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got *model.JobRecord) error {
			assert.Equal(t, model.JobStatusCompleted, got.Status)
			return nil
		}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.Run(ctx))
}

func TestArchiveService_DrainsOnShutdown(t *testing.T) {
	ctrl := gomock.NewController(t)
	archiver := mocks.NewMockResultArchiver(ctrl)
	archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).Return(errors.New("db down")).Times(1)

	svc := newArchiveService(t, archiver, 4)
	require.True(t, svc.Enqueue(completedRecord("job-1")))
	require.True(t, svc.Enqueue(completedRecord("job-2")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.Run(ctx))
	assert.Zero(t, svc.QueueDepth())
}
