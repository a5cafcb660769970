package inflight

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker is a process-local Tracker. Entries older than ttl count as
// released so a crashed holder cannot block a key forever.
type MemoryTracker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryTracker) TryAcquire(_ context.Context, key string) (bool, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if started, ok := m.entries[key]; ok && !m.expired(started, now) {
		return false, started, nil
	}
	m.entries[key] = now
	m.sweep(now)
	return true, now, nil
}

func (m *MemoryTracker) Release(_ context.Context, key string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.entries[key]; ok && held.Equal(startedAt) {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryTracker) Get(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	started, ok := m.entries[key]
	if !ok || m.expired(started, m.now()) {
		return time.Time{}, false, nil
	}
	return started, true, nil
}

// Len returns the number of live entries.
func (m *MemoryTracker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(m.now())
	return len(m.entries)
}

func (m *MemoryTracker) expired(started, now time.Time) bool {
	return m.ttl > 0 && now.Sub(started) >= m.ttl
}

// sweep drops expired entries. Caller holds mu.
func (m *MemoryTracker) sweep(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for k, started := range m.entries {
		if m.expired(started, now) {
			delete(m.entries, k)
		}
	}
}
