// © 2025 multiqueue authors. MIT License.

package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 8; i++ {
		r.Push(i)
	}
	require.True(t, r.Full())
	for i := 0; i < 8; i++ {
		require.Equal(t, i, r.Top())
		r.Pop()
	}
	assert.True(t, r.Empty())
}

func TestWraparound(t *testing.T) {
	r := New[int](4)
	// Push/pop enough to wrap the 64-bit cursors through the mask many
	// times at small scale.
	next := 0
	for round := 0; round < 100; round++ {
		for !r.Full() {
			r.Push(next)
			next++
		}
		for i := 0; i < 2; i++ {
			r.Pop()
		}
	}
	prev := -1
	for !r.Empty() {
		v := r.Top()
		r.Pop()
		require.Greater(t, v, prev)
		prev = v
	}
}

func TestCapacityOne(t *testing.T) {
	r := New[string](1)
	assert.True(t, r.Empty())
	assert.False(t, r.Full())
	r.Push("a")
	assert.True(t, r.Full())
	assert.Equal(t, "a", r.Top())
	r.Pop()
	assert.True(t, r.Empty())
	r.Push("b")
	assert.Equal(t, "b", r.Top())
}

func TestLenAndClear(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 8, r.Cap())
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.True(t, r.Empty())
}

func TestBadCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
	assert.Panics(t, func() { New[int](3) })
	assert.Panics(t, func() { New[int](-4) })
}
