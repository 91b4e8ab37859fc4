package multiqueue

// handle.go implements the per-goroutine façade over the shared guard
// array: the push protocol, the best-of-k pop protocol and the fallback
// linear scan.  A handle reports every outcome back to its queue-selection
// policy so the policy can maintain its stickiness state.
//
// Counters are plain atomics so the Prometheus collector may scrape them
// while the owning goroutine keeps operating.
//
// © 2025 multiqueue authors. MIT License.

import (
	"sync/atomic"

	"github.com/Voskan/multiqueue/internal/policy"
)

// Counters is a snapshot of one handle's operation statistics.
type Counters struct {
	Pushes     int64 `json:"pushes"`
	Pops       int64 `json:"pops"`
	LockedPush int64 `json:"locked_push"`
	LockedPop  int64 `json:"locked_pop"`
	StalePop   int64 `json:"stale_pop"`
	EmptyPop   int64 `json:"empty_pop"`
	ScanPops   int64 `json:"scan_pops"`
	FailedPush int64 `json:"failed_push"`
}

func (c *Counters) merge(o Counters) {
	c.Pushes += o.Pushes
	c.Pops += o.Pops
	c.LockedPush += o.LockedPush
	c.LockedPop += o.LockedPop
	c.StalePop += o.StalePop
	c.EmptyPop += o.EmptyPop
	c.ScanPops += o.ScanPops
	c.FailedPush += o.FailedPush
}

type handleCounters struct {
	pushes     atomic.Int64
	pops       atomic.Int64
	lockedPush atomic.Int64
	lockedPop  atomic.Int64
	stalePop   atomic.Int64
	emptyPop   atomic.Int64
	scanPops   atomic.Int64
	failedPush atomic.Int64
}

// Handle binds one worker goroutine to the multiqueue.  It is not safe for
// concurrent use; create one handle per goroutine.
type Handle[K Key, V any] struct {
	mq  *MultiQueue[K, V]
	sel policy.Selector
	id  int
	ctr handleCounters
}

// before is the sentinel-aware ordering: the sentinel sorts after every
// real key regardless of the configured comparator.
func (h *Handle[K, V]) before(a, b K) bool {
	if a == h.mq.cfg.sentinel {
		return false
	}
	if b == h.mq.cfg.sentinel {
		return true
	}
	return h.mq.cfg.less(a, b)
}

// Push inserts v.  It retries on lock contention, moving to a different
// sub-queue each time, and cannot fail for the heap-backed multiqueue.
// Bounded containers must use TryPush instead.
func (h *Handle[K, V]) Push(v V) {
	for {
		g := &h.mq.guards[h.sel.PushPQ()]
		if !g.TryLock() {
			h.ctr.lockedPush.Add(1)
			h.sel.ResetPushPQ()
			continue
		}
		g.PQ().Push(v)
		g.Pushed()
		g.Unlock()
		h.sel.UsePushPQ()
		h.ctr.pushes.Add(1)
		return
	}
}

// TryPush inserts v into a bounded multiqueue.  A full target sub-queue is
// rejected and a different one tried; after the configured number of full
// rejections the handle scans all guards once and reports false if every
// sub-queue is full.
func (h *Handle[K, V]) TryPush(v V) bool {
	fullTries := 0
	for fullTries < h.mq.cfg.numPopTries {
		g := &h.mq.guards[h.sel.PushPQ()]
		if !g.TryLock() {
			h.ctr.lockedPush.Add(1)
			h.sel.ResetPushPQ()
			continue
		}
		if g.PQ().Full() {
			g.Unlock()
			h.sel.ResetPushPQ()
			fullTries++
			continue
		}
		g.PQ().Push(v)
		g.Pushed()
		g.Unlock()
		h.sel.UsePushPQ()
		h.ctr.pushes.Add(1)
		return true
	}
	if !h.mq.cfg.scanOnFailedPop {
		h.ctr.failedPush.Add(1)
		return false
	}
	if h.scanPush(v) {
		h.ctr.pushes.Add(1)
		return true
	}
	h.ctr.failedPush.Add(1)
	return false
}

// scanPush walks all guards once looking for any lockable, non-full
// sub-queue.
func (h *Handle[K, V]) scanPush(v V) bool {
	for i := range h.mq.guards {
		g := &h.mq.guards[i]
		if !g.TryLock() {
			continue
		}
		if g.PQ().Full() {
			g.Unlock()
			continue
		}
		g.PQ().Push(v)
		g.Pushed()
		g.Unlock()
		return true
	}
	return false
}

// TryPop extracts an element with approximately smallest key.  It reports
// false only after the configured best-of-k rounds and, if enabled, a full
// scan all observe every candidate as empty.
func (h *Handle[K, V]) TryPop() (V, bool) {
	for i := 0; i < h.mq.cfg.numPopTries; i++ {
		if v, ok := h.tryPopBest(); ok {
			return v, true
		}
		h.sel.ResetPopPQs()
	}
	if !h.mq.cfg.scanOnFailedPop {
		var zero V
		return zero, false
	}
	return h.tryPopScan()
}

// tryPopBest runs the best-of-k protocol.  It returns only on a successful
// pop or an all-sentinel observation; lock contention and staleness loop
// back through a policy reset.
func (h *Handle[K, V]) tryPopBest() (V, bool) {
	var zero V
	for {
		indices := h.sel.PopPQs()
		for {
			best := &h.mq.guards[indices[0]]
			bestKey := best.TopKey()
			for _, j := range indices[1:] {
				g := &h.mq.guards[j]
				if key := g.TopKey(); h.before(key, bestKey) {
					best, bestKey = g, key
				}
			}
			if bestKey == h.mq.cfg.sentinel {
				h.ctr.emptyPop.Add(1)
				return zero, false
			}
			if !best.TryLock() {
				h.ctr.lockedPop.Add(1)
				break
			}
			pq := best.PQ()
			if pq.Empty() || (h.mq.cfg.strict && h.mq.keyOf(pq.Top()) != bestKey) {
				// Top got empty (or moved) before we locked.
				best.Unlock()
				h.ctr.stalePop.Add(1)
				break
			}
			v := pq.Top()
			pq.Pop()
			best.Popped()
			best.Unlock()
			h.sel.UsePopPQs()
			h.ctr.pops.Add(1)
			return v, true
		}
		h.sel.ResetPopPQs()
	}
}

// tryPopScan is the fallback: observe every guard's cached key, pop the
// best.  A lock or staleness failure restarts the scan; an all-sentinel
// observation ends it.
func (h *Handle[K, V]) tryPopScan() (V, bool) {
	var zero V
	for {
		best := &h.mq.guards[0]
		bestKey := best.TopKey()
		for i := 1; i < len(h.mq.guards); i++ {
			g := &h.mq.guards[i]
			if key := g.TopKey(); h.before(key, bestKey) {
				best, bestKey = g, key
			}
		}
		if bestKey == h.mq.cfg.sentinel {
			// Every sub-queue appears empty (not necessarily true while
			// concurrent pushes run, but that is the contract).
			h.ctr.emptyPop.Add(1)
			return zero, false
		}
		if !best.TryLock() {
			h.ctr.lockedPop.Add(1)
			continue
		}
		pq := best.PQ()
		if pq.Empty() || (h.mq.cfg.strict && h.mq.keyOf(pq.Top()) != bestKey) {
			best.Unlock()
			h.ctr.stalePop.Add(1)
			continue
		}
		v := pq.Top()
		pq.Pop()
		best.Popped()
		best.Unlock()
		h.ctr.pops.Add(1)
		h.ctr.scanPops.Add(1)
		return v, true
	}
}

// Stats returns a snapshot of this handle's counters.
func (h *Handle[K, V]) Stats() Counters {
	return Counters{
		Pushes:     h.ctr.pushes.Load(),
		Pops:       h.ctr.pops.Load(),
		LockedPush: h.ctr.lockedPush.Load(),
		LockedPop:  h.ctr.lockedPop.Load(),
		StalePop:   h.ctr.stalePop.Load(),
		EmptyPop:   h.ctr.emptyPop.Load(),
		ScanPops:   h.ctr.scanPops.Load(),
		FailedPush: h.ctr.failedPush.Load(),
	}
}

// ResetStats zeroes this handle's counters.
func (h *Handle[K, V]) ResetStats() {
	h.ctr.pushes.Store(0)
	h.ctr.pops.Store(0)
	h.ctr.lockedPush.Store(0)
	h.ctr.lockedPop.Store(0)
	h.ctr.stalePop.Store(0)
	h.ctr.emptyPop.Store(0)
	h.ctr.scanPops.Store(0)
	h.ctr.failedPush.Store(0)
}
