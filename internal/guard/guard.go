// Package guard wraps one sub-queue in the concurrency armour the
// multiqueue core needs: a 32-bit try-lock word, an atomically readable
// cache of the sub-queue's top key, and the sequential container itself.
// The container is only ever touched while the lock is held; the cached key
// may be read by anyone, any time, with relaxed semantics — the lock's
// release/acquire pair is what publishes container contents together with a
// fresh cache value.
//
// Lock word layout: the low bit is the locked flag.  The upper 31 bits hold
// a "last holder" tag (handle id + 1, zero meaning never held) used by
// TryLockMark, which lets a sticky handle re-acquire its own guard while
// refusing other sticky handles.  Plain TryLock and TryLockMark are not
// mixed on the same multiqueue instance.
//
// Each guard is padded so that hot fields of adjacent guards in the guard
// array do not share a cache line.
//
// © 2025 multiqueue authors. MIT License.

package guard

import "sync/atomic"

// CacheLineSize is the assumed L1 line size.  64 bytes covers every
// platform this library targets.
const CacheLineSize = 64

// Key is the constraint on cached top keys.  Restricting keys to unsigned
// integers keeps the top-key cache a single atomic word: any Key value
// round-trips losslessly through uint64, and the natural `<` order is
// preserved by the widening.
type Key interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Container is the sequential store inside a guard.  Implementations are
// not thread-safe; the guard's lock serialises all calls.
type Container[V any] interface {
	Push(v V)
	Pop()
	Top() V
	Len() int
	Empty() bool
	Full() bool
	Clear()
}

// Guard pairs one container with its lock word and top-key cache.
type Guard[K Key, V any] struct {
	lock     atomic.Uint32
	_        [CacheLineSize - 4]byte
	top      atomic.Uint64
	_        [CacheLineSize - 8]byte
	c        Container[V]
	keyOf    func(V) K
	sentinel uint64
	_        [CacheLineSize - 32]byte
}

// Init readies a zero Guard in place.  Guards live in a flat array, so
// construction happens through Init rather than a constructor returning a
// value.
func (g *Guard[K, V]) Init(c Container[V], keyOf func(V) K, sentinel K) {
	g.c = c
	g.keyOf = keyOf
	g.sentinel = uint64(sentinel)
	g.top.Store(g.sentinel)
}

// TryLock attempts to take the lock.  The load-before-swap avoids
// invalidating the line on every failed attempt under contention.
func (g *Guard[K, V]) TryLock() bool {
	return g.lock.Load() == 0 && g.lock.Swap(1) == 0
}

// TryLockMark attempts to take the lock on behalf of handle mark.  It
// succeeds if the guard is unlocked and either force is set, the guard was
// never held, or the last holder was mark itself.  On success the lock word
// records mark as the holder.
func (g *Guard[K, V]) TryLockMark(force bool, mark uint32) bool {
	current := g.lock.Load()
	for {
		if current&1 == 1 {
			return false
		}
		if !force && current>>1 != 0 && current>>1 != mark+1 {
			return false
		}
		if g.lock.CompareAndSwap(current, ((mark+1)<<1)|1) {
			return true
		}
		current = g.lock.Load()
	}
}

// Unlock releases a lock taken with TryLock.  Must be called by the
// goroutine that locked.
func (g *Guard[K, V]) Unlock() {
	g.lock.Store(0)
}

// UnlockMark releases a lock taken with TryLockMark, preserving mark as the
// last-holder tag.
func (g *Guard[K, V]) UnlockMark(mark uint32) {
	g.lock.Store((mark + 1) << 1)
}

// Locked reports whether the guard is currently held.  Diagnostic only.
func (g *Guard[K, V]) Locked() bool {
	return g.lock.Load()&1 == 1
}

// TopKey returns the cached top key.  While the guard is unlocked this is
// the container's top key, or the sentinel if the container is empty; while
// locked it may be stale.
func (g *Guard[K, V]) TopKey() K {
	return K(g.top.Load())
}

// TopRaw returns the cached top key widened to uint64, for callers that
// compare keys across guards without caring about K.
func (g *Guard[K, V]) TopRaw() uint64 {
	return g.top.Load()
}

// Empty reports whether the cached top key is the sentinel.
func (g *Guard[K, V]) Empty() bool {
	return g.top.Load() == g.sentinel
}

// Sentinel returns the packed sentinel value.
func (g *Guard[K, V]) Sentinel() uint64 {
	return g.sentinel
}

// PQ exposes the container.  Callers must hold the lock.
func (g *Guard[K, V]) PQ() Container[V] {
	return g.c
}

// Pushed refreshes the top-key cache after a container push.  Caller must
// hold the lock.
func (g *Guard[K, V]) Pushed() {
	key := uint64(g.keyOf(g.c.Top()))
	if key != g.top.Load() {
		g.top.Store(key)
	}
}

// Popped refreshes the top-key cache after a container pop.  Caller must
// hold the lock.
func (g *Guard[K, V]) Popped() {
	if g.c.Empty() {
		g.top.Store(g.sentinel)
		return
	}
	g.top.Store(uint64(g.keyOf(g.c.Top())))
}
