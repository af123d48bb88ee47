package core

import (
	"context"
	"errors"
	"time"

	"github.com/target/evalorch/internal/domain/model"
)

// This file contains the ports between the service layer and its collaborators.
// Services depend on these interfaces, never on concrete data or adapter types.

var (
	// ErrPermanent marks an error that retrying cannot fix.
	ErrPermanent = errors.New("permanent failure")
	// ErrJobNotFound is returned by JobIndex and SnapshotStore lookups for unknown ids.
	ErrJobNotFound = errors.New("evaluation job not found")
	// ErrInvalidJobID is returned for ids that cannot name a stored job.
	ErrInvalidJobID = errors.New("invalid evaluation job id")
)

// JobIndex is the owned repository of live and recent job records.
// Implementations must store copies so callers never share memory with the index.
type JobIndex interface {
	Get(ctx context.Context, id string) (*model.JobRecord, error)
	Put(ctx context.Context, job *model.JobRecord) error
	List(ctx context.Context) ([]*model.JobRecord, error)
}

// SnapshotStore persists one durable snapshot per job id, overwriting previous snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, job *model.JobRecord) error
	Load(ctx context.Context, id string) (*model.JobRecord, error)
	LoadAll(ctx context.Context) ([]*model.JobRecord, error)
}

// ResultArchiver writes a finished job to the relational archive.
type ResultArchiver interface {
	Archive(ctx context.Context, job *model.JobRecord) error
}

// ScoreRequest identifies one (model, metric) pair to score.
type ScoreRequest struct {
	Model     string
	Metric    string
	Category  string
	Threshold float64
}

// MetricScorer computes one metric for one model within a category.
// Recovery restarts jobs from scratch, so implementations must be idempotent.
type MetricScorer interface {
	Score(ctx context.Context, req ScoreRequest) (model.MetricResult, error)
}

// SecurityRunner obtains a security result for one (model, category) pair. It never fails;
// degraded paths are reported inside the result.
type SecurityRunner interface {
	Run(ctx context.Context, modelKey, category string) model.SecurityResult
}

// SubmissionLock guards the (category, evaluation type) slot used for submission dedup.
type SubmissionLock interface {
	// Acquire claims key for owner. When the key is held it returns false and the current holder.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, string, error)
	// Release frees key only if owner still holds it.
	Release(ctx context.Context, key, owner string) error
}

// JobEventPublisher fans job state changes out to external listeners.
type JobEventPublisher interface {
	Publish(ctx context.Context, job *model.JobRecord) error
}
