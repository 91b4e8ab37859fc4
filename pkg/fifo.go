package multiqueue

// fifo.go instantiates the multiqueue core as a relaxed multi-FIFO: each
// sub-queue is a bounded ring buffer and the priority key of an element is
// its insertion tick, drawn from one shared atomic counter.  Best-of-k pop
// therefore prefers older elements without guaranteeing global FIFO order.
//
// Unlike the heap-backed queue, the ring buffers are bounded: TryPush
// reports false when the policy's targets and the fallback scan find every
// sub-queue full.
//
// © 2025 multiqueue authors. MIT License.

import (
	"sync/atomic"

	"github.com/Voskan/multiqueue/internal/guard"
	"github.com/Voskan/multiqueue/internal/ringbuf"
)

// Item is an element of a MultiFifo: the payload together with the
// insertion tick that orders it.
type Item[V any] struct {
	Tick  uint64
	Value V
}

// MultiFifo is the ring-buffer instantiation of the multiqueue core.
type MultiFifo[V any] struct {
	mq   *MultiQueue[uint64, Item[V]]
	tick atomic.Uint64
}

// NewFifo creates a multi-FIFO sized for numThreads worker goroutines with
// the given per-sub-queue capacity (rounded up to a power of two).
func NewFifo[V any](numThreads, capacityPerQueue int, opts ...Option[uint64, Item[V]]) (*MultiFifo[V], error) {
	if capacityPerQueue <= 0 {
		return nil, errInvalidCapacity
	}
	capacity := nextPow2(capacityPerQueue)
	opts = append(opts, func(c *config[uint64, Item[V]]) {
		c.newContainer = func() guard.Container[Item[V]] {
			return ringbuf.New[Item[V]](capacity)
		}
	})
	mq, err := New[uint64, Item[V]](numThreads, func(it Item[V]) uint64 { return it.Tick }, opts...)
	if err != nil {
		return nil, err
	}
	return &MultiFifo[V]{mq: mq}, nil
}

// Handle creates a fresh handle.  One per goroutine, as with MultiQueue.
func (f *MultiFifo[V]) Handle() (*FifoHandle[V], error) {
	h, err := f.mq.Handle()
	if err != nil {
		return nil, err
	}
	return &FifoHandle[V]{f: f, h: h}, nil
}

// NumQueues returns the number of sub-queues.
func (f *MultiFifo[V]) NumQueues() int { return f.mq.NumQueues() }

// Len returns the total number of buffered elements; see MultiQueue.Len
// for the consistency caveats.
func (f *MultiFifo[V]) Len() int { return f.mq.Len() }

// Clear removes all buffered elements.
func (f *MultiFifo[V]) Clear() { f.mq.Clear() }

// Stats aggregates the counters of all handles.
func (f *MultiFifo[V]) Stats() Counters { return f.mq.Stats() }

// Close logs final statistics.
func (f *MultiFifo[V]) Close() { f.mq.Close() }

// FifoHandle is the per-goroutine façade over a MultiFifo.
type FifoHandle[V any] struct {
	f *MultiFifo[V]
	h *Handle[uint64, Item[V]]
}

// TryPush enqueues v, stamping it with the next insertion tick.  It
// reports false when every sub-queue is full.
func (h *FifoHandle[V]) TryPush(v V) bool {
	return h.h.TryPush(Item[V]{Tick: h.f.tick.Add(1), Value: v})
}

// TryPop dequeues an approximately oldest element.
func (h *FifoHandle[V]) TryPop() (V, bool) {
	it, ok := h.h.TryPop()
	if !ok {
		var zero V
		return zero, false
	}
	return it.Value, true
}

// Stats returns a snapshot of this handle's counters.
func (h *FifoHandle[V]) Stats() Counters { return h.h.Stats() }

// ResetStats zeroes this handle's counters.
func (h *FifoHandle[V]) ResetStats() { h.h.ResetStats() }
