package concurrent

import (
	"maps"
	"sync"
)

type Map[K comparable, V any] struct {
	mu     sync.RWMutex
	values map[K]V
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		values: make(map[K]V),
	}
}

func (m *Map[K, V]) Load(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.values[key]
	return val, ok
}

// Update replaces the value at key with fn(current). current is the zero
// value when the key is absent.
func (m *Map[K, V]) Update(key K, fn func(current V) V) V {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := fn(m.values[key])
	m.values[key] = next
	return next
}

func (m *Map[K, V]) Length() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.values)
}

// Snapshot returns a copy that is safe to read without holding the lock.
func (m *Map[K, V]) Snapshot() map[K]V {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.values)
}
