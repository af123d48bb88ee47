package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySubmissionLock(t *testing.T) {
	ctx := context.Background()
	lock := NewMemorySubmissionLock()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lock.now = func() time.Time { return now }

	ok, holder, err := lock.Acquire(ctx, "evaluation:fairness:quality", "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "job-1", holder)

	ok, holder, err = lock.Acquire(ctx, "evaluation:fairness:quality", "job-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "job-1", holder)

	require.NoError(t, lock.Release(ctx, "evaluation:fairness:quality", "job-2"))
	ok, _, err = lock.Acquire(ctx, "evaluation:fairness:quality", "job-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "release by a non-owner is a no-op")

	require.NoError(t, lock.Release(ctx, "evaluation:fairness:quality", "job-1"))
	ok, _, err = lock.Acquire(ctx, "evaluation:fairness:quality", "job-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemorySubmissionLock_Expiry(t *testing.T) {
	ctx := context.Background()
	lock := NewMemorySubmissionLock()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lock.now = func() time.Time { return now }

	ok, _, err := lock.Acquire(ctx, "k", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, holder, err := lock.Acquire(ctx, "k", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", holder)
}

func TestMemorySubmissionLock_RequiresKeyAndOwner(t *testing.T) {
	_, _, err := NewMemorySubmissionLock().Acquire(context.Background(), "", "x", 0)
	assert.Error(t, err)
}
