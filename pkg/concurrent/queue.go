package concurrent

import "sync"

// Queue is a mutex-guarded FIFO with an optional capacity. A capacity of zero
// or less means unbounded.
type Queue[V any] struct {
	mu       sync.Mutex
	values   []V
	capacity int
}

func NewQueue[V any](capacity int) *Queue[V] {
	return &Queue[V]{capacity: capacity}
}

// Push appends value and reports whether it was accepted. A full queue
// rejects the value and keeps its contents unchanged.
func (q *Queue[V]) Push(value V) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.values) >= q.capacity {
		return false
	}
	q.values = append(q.values, value)
	return true
}

// Drain removes and returns everything queued so far, oldest first.
func (q *Queue[V]) Drain() []V {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.values
	q.values = nil
	return drained
}

func (q *Queue[V]) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.values)
}
