// © 2025 multiqueue authors. MIT License.

package multiqueue_test

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Voskan/multiqueue/internal/oplog"
	multiqueue "github.com/Voskan/multiqueue/pkg"
)

type opt = multiqueue.Option[uint64, uint64]

func newQueue(t *testing.T, threads int, opts ...opt) *multiqueue.MultiQueue[uint64, uint64] {
	t.Helper()
	opts = append([]opt{multiqueue.WithSeed[uint64, uint64](42)}, opts...)
	mq, err := multiqueue.NewKeyQueue[uint64](threads, opts...)
	require.NoError(t, err)
	return mq
}

func handle(t *testing.T, mq *multiqueue.MultiQueue[uint64, uint64]) *multiqueue.Handle[uint64, uint64] {
	t.Helper()
	h, err := mq.Handle()
	require.NoError(t, err)
	return h
}

// allQueuesAsCandidates makes the single-handle pop examine every
// sub-queue, which gives strict priority order in the sequential limit.
func allQueuesAsCandidates(p int) opt {
	return multiqueue.WithPopCandidates[uint64, uint64](p)
}

func TestEmptyQueue(t *testing.T) {
	mq := newQueue(t, 1)
	require.Equal(t, 4, mq.NumQueues())
	h := handle(t, mq)
	_, ok := h.TryPop()
	assert.False(t, ok)
	assert.Equal(t, int64(0), h.Stats().Pops)
	assert.Positive(t, h.Stats().EmptyPop)
}

func TestSequentialAscending(t *testing.T) {
	mq := newQueue(t, 1, allQueuesAsCandidates(4))
	h := handle(t, mq)
	for k := uint64(0); k < 1000; k++ {
		h.Push(k)
	}
	for k := uint64(0); k < 1000; k++ {
		v, ok := h.TryPop()
		require.True(t, ok)
		require.Equal(t, k, v)
	}
	_, ok := h.TryPop()
	assert.False(t, ok)
}

func TestSequentialDescending(t *testing.T) {
	mq := newQueue(t, 1, allQueuesAsCandidates(4))
	h := handle(t, mq)
	for k := 999; k >= 0; k-- {
		h.Push(uint64(k))
	}
	for k := uint64(0); k < 1000; k++ {
		v, ok := h.TryPop()
		require.True(t, ok)
		require.Equal(t, k, v)
	}
}

func TestSingleQueueDegenerate(t *testing.T) {
	// P == 1 behaves as one locked sequential container.
	mq, err := multiqueue.NewKeyQueue[uint64](1,
		multiqueue.WithFactor[uint64, uint64](1),
		multiqueue.WithPopCandidates[uint64, uint64](1),
	)
	require.NoError(t, err)
	require.Equal(t, 1, mq.NumQueues())
	h := handle(t, mq)
	for _, k := range []uint64{5, 3, 8, 1} {
		h.Push(k)
	}
	for _, want := range []uint64{1, 3, 5, 8} {
		v, ok := h.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
}

func TestSinglePopCandidate(t *testing.T) {
	// k == 1 degenerates to sticky single-queue pop but still drains.
	mq := newQueue(t, 1, multiqueue.WithPopCandidates[uint64, uint64](1))
	h := handle(t, mq)
	for k := uint64(0); k < 100; k++ {
		h.Push(k)
	}
	got := map[uint64]bool{}
	for {
		v, ok := h.TryPop()
		if !ok {
			break
		}
		require.False(t, got[v])
		got[v] = true
	}
	assert.Len(t, got, 100)
}

func TestClearThenPop(t *testing.T) {
	mq := newQueue(t, 1)
	h := handle(t, mq)
	for k := uint64(0); k < 50; k++ {
		h.Push(k)
	}
	mq.Clear()
	assert.Equal(t, 0, mq.Len())
	_, ok := h.TryPop()
	assert.False(t, ok)
}

func TestConcurrentConservation(t *testing.T) {
	const (
		threads    = 8
		perThread  = 10_000
		totalElems = threads * perThread
	)
	mq := newQueue(t, threads)

	var eg errgroup.Group
	for w := 0; w < threads; w++ {
		h := handle(t, mq)
		base := uint64(w * perThread)
		eg.Go(func() error {
			for i := uint64(0); i < perThread; i++ {
				h.Push(base + i)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	require.Equal(t, totalElems, mq.Len())

	results := make([][]uint64, threads)
	for w := 0; w < threads; w++ {
		w := w
		h := handle(t, mq)
		eg.Go(func() error {
			for {
				v, ok := h.TryPop()
				if !ok {
					return nil
				}
				results[w] = append(results[w], v)
			}
		})
	}
	require.NoError(t, eg.Wait())

	seen := make(map[uint64]int, totalElems)
	for _, r := range results {
		for _, v := range r {
			seen[v]++
		}
	}
	require.Len(t, seen, totalElems)
	for v, n := range seen {
		require.Equal(t, 1, n, "value %d popped %d times", v, n)
		require.Less(t, v, uint64(totalElems))
	}
	assert.Equal(t, 0, mq.Len())
}

func TestInterleavedChurn(t *testing.T) {
	const (
		threads = 4
		ops     = 100_000
	)
	mq := newQueue(t, threads)

	pushed := make([]map[uint64]int, threads)
	popped := make([]map[uint64]int, threads)
	var eg errgroup.Group
	for w := 0; w < threads; w++ {
		w := w
		h := handle(t, mq)
		pushed[w] = map[uint64]int{}
		popped[w] = map[uint64]int{}
		rnd := rand.New(rand.NewSource(int64(1000 + w)))
		eg.Go(func() error {
			for i := 0; i < ops/threads; i++ {
				if rnd.Intn(100) < 60 {
					k := uint64(rnd.Uint32())
					h.Push(k)
					pushed[w][k]++
				} else if v, ok := h.TryPop(); ok {
					popped[w][v]++
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	pushCount, popCount := 0, 0
	pushedAll := map[uint64]int{}
	for w := 0; w < threads; w++ {
		for k, n := range pushed[w] {
			pushedAll[k] += n
			pushCount += n
		}
		for k, n := range popped[w] {
			pushedAll[k] -= n
			popCount += n
		}
	}
	require.Equal(t, pushCount-popCount, mq.Len())

	// Exhaustively popping yields exactly the non-popped pushes.
	h := handle(t, mq)
	for {
		v, ok := h.TryPop()
		if !ok {
			break
		}
		pushedAll[v]--
	}
	for k, n := range pushedAll {
		require.Zero(t, n, "conservation violated for key %d", k)
	}
}

func TestAllPoliciesConservation(t *testing.T) {
	policies := []multiqueue.Policy{
		multiqueue.PolicyRandom,
		multiqueue.PolicyStickRandom,
		multiqueue.PolicySwapAssignment,
		multiqueue.PolicyGlobalPermutation,
	}
	for _, p := range policies {
		t.Run(p.String(), func(t *testing.T) {
			const (
				threads   = 4
				perThread = 2_000
			)
			mq := newQueue(t, threads, multiqueue.WithPolicy[uint64, uint64](p))

			var eg errgroup.Group
			results := make([][]uint64, threads)
			for w := 0; w < threads; w++ {
				w := w
				h := handle(t, mq)
				base := uint64(w * perThread)
				eg.Go(func() error {
					for i := uint64(0); i < perThread; i++ {
						h.Push(base + i)
					}
					for {
						v, ok := h.TryPop()
						if !ok {
							return nil
						}
						results[w] = append(results[w], v)
					}
				})
			}
			require.NoError(t, eg.Wait())

			seen := map[uint64]int{}
			total := 0
			for _, r := range results {
				for _, v := range r {
					seen[v]++
					total++
				}
			}
			// Pops may stop while racing pushers still insert, so drain.
			h := handle(t, mq)
			for {
				v, ok := h.TryPop()
				if !ok {
					break
				}
				seen[v]++
				total++
			}
			require.Equal(t, threads*perThread, total)
			for v, n := range seen {
				require.Equal(t, 1, n, "value %d popped %d times", v, n)
			}
		})
	}
}

func TestStrictComparisonMode(t *testing.T) {
	const threads = 4
	mq := newQueue(t, threads, multiqueue.WithStrictComparison[uint64, uint64](true))
	var eg errgroup.Group
	var mu sync.Mutex
	seen := map[uint64]int{}
	for w := 0; w < threads; w++ {
		h := handle(t, mq)
		base := uint64(w * 5_000)
		eg.Go(func() error {
			local := map[uint64]int{}
			for i := uint64(0); i < 5_000; i++ {
				h.Push(base + i)
				if v, ok := h.TryPop(); ok {
					local[v]++
				}
			}
			for {
				v, ok := h.TryPop()
				if !ok {
					break
				}
				local[v]++
			}
			mu.Lock()
			for k, n := range local {
				seen[k] += n
			}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	require.Len(t, seen, threads*5_000)
	for v, n := range seen {
		require.Equal(t, 1, n, "value %d popped %d times", v, n)
	}
}

func TestBufferedHeapBackend(t *testing.T) {
	mq := newQueue(t, 1, allQueuesAsCandidates(4), multiqueue.WithBufferedHeap[uint64, uint64](true))
	h := handle(t, mq)
	for k := 499; k >= 0; k-- {
		h.Push(uint64(k))
	}
	for k := uint64(0); k < 500; k++ {
		v, ok := h.TryPop()
		require.True(t, ok)
		require.Equal(t, k, v)
	}
}

func TestCustomOrder(t *testing.T) {
	// Max-queue: greater keys first, sentinel 0.
	mq, err := multiqueue.NewKeyQueue[uint64](1,
		multiqueue.WithSeed[uint64, uint64](42),
		multiqueue.WithPopCandidates[uint64, uint64](4),
		multiqueue.WithOrder[uint64, uint64](func(a, b uint64) bool { return a > b }, 0),
	)
	require.NoError(t, err)
	h := handle(t, mq)
	for k := uint64(1); k <= 100; k++ {
		h.Push(k)
	}
	for k := uint64(100); k >= 1; k-- {
		v, ok := h.TryPop()
		require.True(t, ok)
		require.Equal(t, k, v)
	}
}

func TestHandleCounters(t *testing.T) {
	mq := newQueue(t, 1)
	h := handle(t, mq)
	for k := uint64(0); k < 10; k++ {
		h.Push(k)
	}
	for i := 0; i < 10; i++ {
		_, ok := h.TryPop()
		require.True(t, ok)
	}
	s := h.Stats()
	assert.Equal(t, int64(10), s.Pushes)
	assert.Equal(t, int64(10), s.Pops)
	h.ResetStats()
	assert.Equal(t, multiqueue.Counters{}, h.Stats())
}

func TestSwapAssignmentHandleLimitSurfaced(t *testing.T) {
	mq, err := multiqueue.NewKeyQueue[uint64](1,
		multiqueue.WithPolicy[uint64, uint64](multiqueue.PolicySwapAssignment),
	)
	require.NoError(t, err)
	// P = 4, so at most 2 handles.
	for i := 0; i < 2; i++ {
		_, err := mq.Handle()
		require.NoError(t, err)
	}
	_, err = mq.Handle()
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	_, err := multiqueue.NewKeyQueue[uint64](0)
	assert.Error(t, err)
	_, err = multiqueue.NewKeyQueue[uint64](1, multiqueue.WithFactor[uint64, uint64](0))
	assert.Error(t, err)
	_, err = multiqueue.NewKeyQueue[uint64](1, multiqueue.WithPopCandidates[uint64, uint64](0))
	assert.Error(t, err)
	_, err = multiqueue.NewKeyQueue[uint64](1, multiqueue.WithPopCandidates[uint64, uint64](99))
	assert.Error(t, err)
	_, err = multiqueue.NewKeyQueue[uint64](1,
		multiqueue.WithPolicy[uint64, uint64](multiqueue.PolicyGlobalPermutation),
		multiqueue.WithPopCandidates[uint64, uint64](3),
	)
	assert.Error(t, err)
	_, err = multiqueue.New[uint64, uint64](1, nil)
	assert.Error(t, err)
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	mq := newQueue(t, 1, multiqueue.WithMetrics[uint64, uint64](reg))
	h := handle(t, mq)
	for k := uint64(0); k < 25; k++ {
		h.Push(k)
	}
	for i := 0; i < 5; i++ {
		_, ok := h.TryPop()
		require.True(t, ok)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				got[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				got[mf.GetName()] += m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 25.0, got["multiqueue_pushes_total"])
	assert.Equal(t, 5.0, got["multiqueue_pops_total"])
	assert.Equal(t, 4.0, got["multiqueue_queues"])
}

// TestOpLogConsistency runs a concurrent workload through the op-log
// recorder and replays the log through the verifier.
func TestOpLogConsistency(t *testing.T) {
	const (
		threads   = 4
		perThread = 5_000
	)
	type elem struct {
		key    uint64
		thread int
		ord    uint64
	}
	mq, err := multiqueue.New[uint64, elem](threads,
		func(e elem) uint64 { return e.key },
		multiqueue.WithSeed[uint64, elem](42),
	)
	require.NoError(t, err)

	rec := oplog.NewRecorder(threads)
	var eg errgroup.Group
	handles := make([]*multiqueue.Handle[uint64, elem], threads)
	for w := 0; w < threads; w++ {
		handles[w], err = mq.Handle()
		require.NoError(t, err)
	}
	for w := 0; w < threads; w++ {
		w := w
		h := handles[w]
		rnd := rand.New(rand.NewSource(int64(w)))
		eg.Go(func() error {
			for i := 0; i < perThread; i++ {
				key := uint64(rnd.Uint32())
				ord := rec.Insert(w, key)
				h.Push(elem{key: key, thread: w, ord: ord})
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	for w := 0; w < threads; w++ {
		w := w
		h := handles[w]
		eg.Go(func() error {
			for {
				e, ok := h.TryPop()
				if !ok {
					return nil
				}
				rec.Delete(w, e.key, e.thread, e.ord)
			}
		})
	}
	require.NoError(t, eg.Wait())

	var buf bytes.Buffer
	_, err = rec.WriteTo(&buf)
	require.NoError(t, err)
	stats, err := oplog.Verify(&buf)
	require.NoError(t, err)
	assert.Equal(t, threads*perThread, stats.Insertions)
	assert.Equal(t, threads*perThread, stats.Deletions)
	assert.Zero(t, stats.Remaining)
}
