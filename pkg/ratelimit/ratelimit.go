package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Counter is the swappable backing store for rate-limit accounting. The
// in-memory implementation is best-effort and process-local; a shared store
// (see RedisCounter) can replace it in multi-instance deployments without
// touching the middleware.
type Counter interface {
	// Increment adds one hit for key inside the current window and returns
	// the number of hits recorded within it.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	// Get returns the hits recorded for key within the current window.
	Get(ctx context.Context, key string, window time.Duration) (int64, error)
}

type memoryCounter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewMemoryCounter builds a process-local sliding-window counter.
func NewMemoryCounter() Counter {
	return &memoryCounter{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

func (m *memoryCounter) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	kept := m.prune(key, now, window)
	kept = append(kept, now)
	m.hits[key] = kept
	return int64(len(kept)), nil
}

func (m *memoryCounter) Get(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.prune(key, m.now(), window)
	if len(kept) == 0 {
		delete(m.hits, key)
	} else {
		m.hits[key] = kept
	}
	return int64(len(kept)), nil
}

func (m *memoryCounter) prune(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	var kept []time.Time
	for _, t := range m.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
