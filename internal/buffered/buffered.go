// Package buffered layers two small buffers in front of a d-ary heap: a
// sorted deletion buffer serving Top/Pop without touching the heap, and an
// unsorted insertion buffer batching pushes before they are sifted in.  For
// workloads where most pushed elements are popped again soon, the heap is
// rarely touched at all.
//
// The invariant throughout: whenever the container is non-empty, the
// deletion buffer is non-empty and its front is the overall minimum.
// Like the plain heap, the container is single-threaded under its guard.
//
// © 2025 multiqueue authors. MIT License.

package buffered

import "github.com/Voskan/multiqueue/internal/dary"

// Default buffer capacities, chosen to keep both buffers within a few cache
// lines for small value types.
const (
	DefaultInsertionBufferSize = 64
	DefaultDeletionBufferSize  = 64
)

// Heap is a buffered d-ary min-heap over V ordered by less.
type Heap[V any] struct {
	insertion []V // unsorted overflow, flushed to the heap in bulk
	deletion  []V // sorted ascending; front is the overall minimum
	heap      *dary.Heap[V]
	less      func(a, b V) bool
	insCap    int
	delCap    int
}

// New returns an empty buffered heap.  Buffer capacities must be positive.
func New[V any](less func(a, b V) bool, insCap, delCap, arity int) *Heap[V] {
	if insCap <= 0 || delCap <= 0 {
		panic("buffered: buffer capacities must be positive")
	}
	return &Heap[V]{
		insertion: make([]V, 0, insCap),
		deletion:  make([]V, 0, delCap),
		heap:      dary.New(less, arity),
		less:      less,
		insCap:    insCap,
		delCap:    delCap,
	}
}

func (h *Heap[V]) flushInsertionBuffer() {
	for _, v := range h.insertion {
		h.heap.Push(v)
	}
	h.insertion = h.insertion[:0]
}

// refresh refills an empty deletion buffer from the insertion buffer and
// the heap.
func (h *Heap[V]) refresh() {
	h.flushInsertionBuffer()
	for len(h.deletion) < h.delCap && !h.heap.Empty() {
		h.deletion = append(h.deletion, h.heap.Top())
		h.heap.Pop()
	}
}

// Push inserts v.
func (h *Heap[V]) Push(v V) {
	pos := len(h.deletion)
	for pos > 0 && h.less(v, h.deletion[pos-1]) {
		pos--
	}
	if len(h.deletion) > 0 && pos == len(h.deletion) {
		// Not smaller than anything buffered for deletion.
		if len(h.insertion) == h.insCap {
			h.flushInsertionBuffer()
			h.heap.Push(v)
			return
		}
		h.insertion = append(h.insertion, v)
		return
	}
	if len(h.deletion) == h.delCap {
		// Demote the largest buffered element to make room.
		back := h.deletion[len(h.deletion)-1]
		h.deletion = h.deletion[:len(h.deletion)-1]
		if len(h.insertion) == h.insCap {
			h.flushInsertionBuffer()
			h.heap.Push(back)
		} else {
			h.insertion = append(h.insertion, back)
		}
	}
	var zero V
	h.deletion = append(h.deletion, zero)
	copy(h.deletion[pos+1:], h.deletion[pos:])
	h.deletion[pos] = v
}

// Top returns the current minimum.  Requires !Empty().
func (h *Heap[V]) Top() V {
	return h.deletion[0]
}

// Pop removes the current minimum.  Requires !Empty().
func (h *Heap[V]) Pop() {
	copy(h.deletion, h.deletion[1:])
	h.deletion = h.deletion[:len(h.deletion)-1]
	if len(h.deletion) == 0 {
		h.refresh()
	}
}

// Len returns the total number of stored elements.
func (h *Heap[V]) Len() int {
	return len(h.insertion) + len(h.deletion) + h.heap.Len()
}

// Empty reports whether the container holds no elements.  By the buffer
// invariant, checking the deletion buffer suffices.
func (h *Heap[V]) Empty() bool { return len(h.deletion) == 0 }

// Full always reports false; the heap grows on demand.
func (h *Heap[V]) Full() bool { return false }

// Clear drops all elements but keeps the backing storage.
func (h *Heap[V]) Clear() {
	h.insertion = h.insertion[:0]
	h.deletion = h.deletion[:0]
	h.heap.Clear()
}
