package concurrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushDrain(t *testing.T) {
	q := NewQueue[int](0)

	for i := range 5 {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 5, q.Length())

	assert.Equal(t, []int{0, 1, 2, 3, 4}, q.Drain())
	assert.Equal(t, 0, q.Length())
	assert.Empty(t, q.Drain())
}

func TestQueue_Capacity(t *testing.T) {
	q := NewQueue[string](2)

	assert.True(t, q.Push("a"))
	assert.True(t, q.Push("b"))
	assert.False(t, q.Push("c"))
	assert.Equal(t, []string{"a", "b"}, q.Drain())

	assert.True(t, q.Push("c"))
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := NewQueue[int](0)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			q.Push(i)
		})
	}
	wg.Wait()

	assert.Len(t, q.Drain(), 50)
}

func TestMap_UpdateAndSnapshot(t *testing.T) {
	m := NewMap[string, int]()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			m.Update("batches", func(n int) int { return n + 1 })
		})
	}
	wg.Wait()

	v, ok := m.Load("batches")
	require.True(t, ok)
	assert.Equal(t, 20, v)

	snap := m.Snapshot()
	snap["batches"] = 0
	v, _ = m.Load("batches")
	assert.Equal(t, 20, v)
	assert.Equal(t, 1, m.Length())
}
