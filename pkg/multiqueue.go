package multiqueue

// Package multiqueue implements a relaxed concurrent priority queue: a
// fixed array of cache-line padded sub-queues, each behind a try-lock, with
// per-goroutine handles that push to one policy-chosen sub-queue and pop
// the best of a small sampled candidate set.  Strict priority order is
// traded for scalability; what is guaranteed is that every popped element
// was pushed, that no element is popped twice, and that nothing pushed
// before a quiescent point is lost.
//
// A second front-end, MultiFifo, instantiates the same core over ring
// buffers keyed by insertion ticks (see fifo.go).
//
// Handles are move-only in spirit: create one per worker goroutine via
// MultiQueue.Handle and never share it.
//
// © 2025 multiqueue authors. MIT License.

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Voskan/multiqueue/internal/buffered"
	"github.com/Voskan/multiqueue/internal/dary"
	"github.com/Voskan/multiqueue/internal/guard"
	"github.com/Voskan/multiqueue/internal/policy"
)

// Key is the constraint on priority keys: an unsigned integer type, so the
// per-sub-queue top-key cache fits one atomic word.  The maximum value of
// the type is the default sentinel and must not be pushed as a real key.
type Key = guard.Key

// KeyOf extracts the priority key from a stored value.
type KeyOf[K Key, V any] func(V) K

// MultiQueue is the shared root: it owns the guard array and the policy
// shared data, and vends handles.  All methods are safe for concurrent use;
// the handles they vend are not.  The structural ones (Len, Clear, Close)
// briefly lock every guard and are meant for setup, teardown and tests
// rather than the hot path.
type MultiQueue[K Key, V any] struct {
	guards []guard.Guard[K, V]
	shared *policy.Shared
	cfg    *config[K, V]
	keyOf  KeyOf[K, V]
	log    *zap.Logger

	mu      sync.Mutex
	handles []*Handle[K, V]
}

// New creates a multiqueue sized for numThreads worker goroutines, storing
// values of type V prioritised by keyOf.  The number of sub-queues is the
// per-thread factor times numThreads, rounded up to a power of two.
func New[K Key, V any](numThreads int, keyOf KeyOf[K, V], opts ...Option[K, V]) (*MultiQueue[K, V], error) {
	if keyOf == nil {
		return nil, errNilKeyOf
	}
	cfg := defaultConfig[K, V](numThreads)
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}

	mq := &MultiQueue[K, V]{
		guards: make([]guard.Guard[K, V], cfg.numPQs),
		shared: policy.NewShared(cfg.queuePolicy, cfg.numPQs),
		cfg:    cfg,
		keyOf:  keyOf,
		log:    cfg.logger,
	}

	newContainer := cfg.newContainer
	if newContainer == nil {
		less := func(a, b V) bool { return cfg.less(keyOf(a), keyOf(b)) }
		if cfg.buffered {
			newContainer = func() guard.Container[V] {
				return buffered.New(less, buffered.DefaultInsertionBufferSize, buffered.DefaultDeletionBufferSize, dary.DefaultArity)
			}
		} else {
			newContainer = func() guard.Container[V] {
				return dary.New(less, dary.DefaultArity)
			}
		}
	}
	for i := range mq.guards {
		mq.guards[i].Init(newContainer(), keyOf, cfg.sentinel)
	}

	if cfg.registry != nil {
		cfg.registry.MustRegister(newCollector(mq))
	}

	mq.log.Info("multiqueue created",
		zap.Int("queues", cfg.numPQs),
		zap.Int("threads", numThreads),
		zap.Stringer("policy", cfg.queuePolicy),
		zap.Int64("seed", cfg.seed),
		zap.Bool("strict", cfg.strict),
	)
	return mq, nil
}

// NewKeyQueue is the common instantiation where the stored value is the
// key itself.
func NewKeyQueue[K Key](numThreads int, opts ...Option[K, K]) (*MultiQueue[K, K], error) {
	return New[K, K](numThreads, func(k K) K { return k }, opts...)
}

// Handle creates a fresh handle bound to this multiqueue.  The handle must
// be used by a single goroutine.  SwapAssignment limits the number of
// handles to half the sub-queue count; exceeding it returns an error.
func (mq *MultiQueue[K, V]) Handle() (*Handle[K, V], error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	sel, err := mq.shared.New(policy.Config{
		Seed:       mq.cfg.seed,
		Stickiness: mq.cfg.stickiness,
		PopPQs:     mq.cfg.popPQs,
	})
	if err != nil {
		return nil, err
	}
	h := &Handle[K, V]{mq: mq, sel: sel, id: len(mq.handles)}
	mq.handles = append(mq.handles, h)
	return h, nil
}

// NumQueues returns the number of sub-queues P.
func (mq *MultiQueue[K, V]) NumQueues() int {
	return len(mq.guards)
}

// lockGuard spins until guard i is acquired.  Only the structural methods
// below use it; the operation protocols never spin on a single guard.
func (mq *MultiQueue[K, V]) lockGuard(i int) *guard.Guard[K, V] {
	g := &mq.guards[i]
	for !g.TryLock() {
	}
	return g
}

// Len returns the total number of stored elements.  It locks each guard in
// turn, so the result is a consistent per-guard snapshot but only an
// approximation while concurrent operations run.
func (mq *MultiQueue[K, V]) Len() int {
	total := 0
	for i := range mq.guards {
		g := mq.lockGuard(i)
		total += g.PQ().Len()
		g.Unlock()
	}
	return total
}

// Clear removes all elements from every sub-queue.
func (mq *MultiQueue[K, V]) Clear() {
	for i := range mq.guards {
		g := mq.lockGuard(i)
		g.PQ().Clear()
		g.Popped()
		g.Unlock()
	}
}

// Stats aggregates the operation counters of every handle vended so far.
func (mq *MultiQueue[K, V]) Stats() Counters {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	var total Counters
	for _, h := range mq.handles {
		total.merge(h.Stats())
	}
	return total
}

// Close logs final statistics.  The multiqueue holds no resources beyond
// memory; Close exists for lifecycle symmetry and observability.
func (mq *MultiQueue[K, V]) Close() {
	s := mq.Stats()
	mq.log.Info("multiqueue closed",
		zap.Int64("pushes", s.Pushes),
		zap.Int64("pops", s.Pops),
		zap.Int64("locked_push", s.LockedPush),
		zap.Int64("locked_pop", s.LockedPop),
		zap.Int64("stale_pop", s.StalePop),
		zap.Int64("empty_pop", s.EmptyPop),
		zap.Int64("scan_pops", s.ScanPops),
	)
}
