package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value  string
	expiry time.Time
}

// memoryTier is a process-local map with lazily enforced expiry.
type memoryTier struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func newMemoryTier(ttl time.Duration, now func() time.Time) *memoryTier {
	return &memoryTier{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (m *memoryTier) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.expiry) {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}

func (m *memoryTier) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiry: m.now().Add(m.ttl)}
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
