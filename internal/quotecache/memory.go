package quotecache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value  T
	expiry time.Time
}

// ttlMap is an in-process map whose entries vanish after their TTL. Values
// go through clone on the way in and out so callers never share them.
type ttlMap[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	clone   func(T) T
	now     func() time.Time
	sets    int
}

func newTTLMap[T any](clone func(T) T) *ttlMap[T] {
	return &ttlMap[T]{
		entries: make(map[string]entry[T]),
		clone:   clone,
		now:     time.Now,
	}
}

func (m *ttlMap[T]) Get(key string) (T, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	var zero T
	if !ok {
		return zero, false
	}
	if m.now().After(e.expiry) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expiry.Equal(e.expiry) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return zero, false
	}
	return m.cloneValue(e.value), true
}

func (m *ttlMap[T]) Set(key string, value T, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry[T]{value: m.cloneValue(value), expiry: m.now().Add(ttl)}

	// Sweep expired keys now and then so abandoned queries do not pile up.
	m.sets++
	if m.sets%256 == 0 {
		now := m.now()
		for k, e := range m.entries {
			if now.After(e.expiry) {
				delete(m.entries, k)
			}
		}
	}
}

func (m *ttlMap[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *ttlMap[T]) cloneValue(value T) T {
	if m.clone == nil {
		return value
	}
	return m.clone(value)
}
