package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	windowStart time.Time
	expires     time.Time
	count       int
}

// MemoryStore keeps buckets in process. Buckets whose window has ended are
// dropped the first time a newer window is seen.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucket)}
}

// Increment implements Store under a single mutex.
func (m *MemoryStore) Increment(_ context.Context, key string, windowStart time.Time, window time.Duration, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if windowStart.After(m.lastSweep) {
		m.sweep(windowStart)
		m.lastSweep = windowStart
	}

	b, ok := m.buckets[key]
	if !ok || !b.windowStart.Equal(windowStart) {
		b = &bucket{windowStart: windowStart, expires: windowStart.Add(window)}
		m.buckets[key] = b
	}
	if b.count >= limit {
		return false, nil
	}
	b.count++
	return true, nil
}

func (m *MemoryStore) sweep(now time.Time) {
	for k, b := range m.buckets {
		if !b.expires.After(now) {
			delete(m.buckets, k)
		}
	}
}

// Len reports the number of live buckets.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
