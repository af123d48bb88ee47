package data

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/evalorch/internal/core"
)

type memoryLockEntry struct {
	owner   string
	expires time.Time
}

// MemorySubmissionLock is a process-local core.SubmissionLock used when Redis is not configured.
type MemorySubmissionLock struct {
	mu      sync.Mutex
	entries map[string]memoryLockEntry
	now     func() time.Time
}

var _ core.SubmissionLock = (*MemorySubmissionLock)(nil)

// NewMemorySubmissionLock returns an empty lock table.
func NewMemorySubmissionLock() *MemorySubmissionLock {
	return &MemorySubmissionLock{entries: make(map[string]memoryLockEntry), now: time.Now}
}

// Acquire claims key for owner unless another owner holds an unexpired entry.
func (m *MemorySubmissionLock) Acquire(_ context.Context, key, owner string, ttl time.Duration) (bool, string, error) {
	if key == "" || owner == "" {
		return false, "", errors.New("lock key and owner are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && (e.expires.IsZero() || now.Before(e.expires)) {
		return false, e.owner, nil
	}
	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}
	m.entries[key] = memoryLockEntry{owner: owner, expires: expires}
	return true, owner, nil
}

// Release frees key when owner still holds it.
func (m *MemorySubmissionLock) Release(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.owner == owner {
		delete(m.entries, key)
	}
	return nil
}
