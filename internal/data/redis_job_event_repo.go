package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
)

// JobEventsChannel is the default pub/sub channel for job state changes.
const JobEventsChannel = "evalorch:jobs"

// JobEvent is the compact message published on every persisted job change.
type JobEvent struct {
	ID             string               `json:"id"`
	Status         model.JobStatus      `json:"status"`
	Progress       int                  `json:"progress"`
	Category       string               `json:"category"`
	EvaluationType model.EvaluationType `json:"evaluationType"`
	OverallScore   *int                 `json:"overallScore,omitempty"`
	Error          string               `json:"error,omitempty"`
	At             time.Time            `json:"at"`
}

// RedisJobEventPublisher publishes JobEvent messages with Redis PUBLISH.
type RedisJobEventPublisher struct {
	client  redis.UniversalClient
	channel string
	now     func() time.Time
}

var _ core.JobEventPublisher = (*RedisJobEventPublisher)(nil)

// NewRedisJobEventPublisher creates a publisher. An empty channel selects JobEventsChannel.
func NewRedisJobEventPublisher(client redis.UniversalClient, channel string) *RedisJobEventPublisher {
	if channel == "" {
		channel = JobEventsChannel
	}
	return &RedisJobEventPublisher{client: client, channel: channel, now: time.Now}
}

// NewJobEvent builds the event payload for job.
func NewJobEvent(job *model.JobRecord, at time.Time) JobEvent {
	ev := JobEvent{
		ID:             job.ID,
		Status:         job.Status,
		Progress:       job.Progress,
		Category:       job.Category,
		EvaluationType: job.EvaluationType,
		Error:          job.Error,
		At:             at.UTC(),
	}
	if job.Summary != nil {
		score := job.Summary.OverallScore
		ev.OverallScore = &score
	}
	return ev
}

// Publish sends the event for job.
func (p *RedisJobEventPublisher) Publish(ctx context.Context, job *model.JobRecord) error {
	if job == nil {
		return ErrNilJob
	}
	b, err := json.Marshal(NewJobEvent(job, p.now()))
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}
