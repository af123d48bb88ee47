package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/evalorch/internal/core"
)

// releaseIfOwner deletes KEYS[1] only when its value still equals ARGV[1].
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSubmissionLock implements core.SubmissionLock with SET NX so that every
// instance sharing the Redis deployment sees the same (category, type) slots.
type RedisSubmissionLock struct {
	client redis.UniversalClient
	prefix string
}

var _ core.SubmissionLock = (*RedisSubmissionLock)(nil)

// NewRedisSubmissionLock creates a lock repository. Keys are stored as prefix+key.
func NewRedisSubmissionLock(client redis.UniversalClient, prefix string) *RedisSubmissionLock {
	return &RedisSubmissionLock{client: client, prefix: prefix}
}

// Acquire claims key for owner. A held key reports false together with its current holder.
func (r *RedisSubmissionLock) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, string, error) {
	if key == "" || owner == "" {
		return false, "", errors.New("lock key and owner are required")
	}
	full := r.prefix + key

	err := r.client.SetArgs(ctx, full, owner, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case err == nil:
		return true, owner, nil
	case errors.Is(err, redis.Nil):
		// NX refused the write; fall through to report the holder.
	default:
		return false, "", fmt.Errorf("redis set nx %s: %w", full, err)
	}

	holder, err := r.client.Get(ctx, full).Result()
	if errors.Is(err, redis.Nil) {
		// Released between SET and GET; the caller may retry.
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("redis get %s: %w", full, err)
	}
	return false, holder, nil
}

// Release frees key when owner still holds it. Releasing a lock held by someone else is a no-op.
func (r *RedisSubmissionLock) Release(ctx context.Context, key, owner string) error {
	if key == "" || owner == "" {
		return errors.New("lock key and owner are required")
	}
	if err := releaseIfOwner.Run(ctx, r.client, []string{r.prefix + key}, owner).Err(); err != nil &&
		!errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release %s: %w", r.prefix+key, err)
	}
	return nil
}
