// © 2025 multiqueue authors. MIT License.

package policy

import "github.com/Voskan/multiqueue/internal/rng"

const (
	permShift = 32
	permMask  = (1 << permShift) - 1
)

// globalPermutation derives every assignment from one shared 64-bit word
// encoding an affine permutation: with a in the low half (kept odd) and b
// in the high half, handle id is assigned the sub-queues
// ((2·id + j)·a + b) mod P for j in {0, 1}.  P must be a power of two so
// that an odd a makes the map a permutation of [0, P).
//
// The use counter is shared between push and pop.  On expiry, the handle
// CAS-publishes a fresh word; other handles pick the change up lazily.  On
// a failed operation the handle falls back to uniformly random indices
// until the next success advances the counter.
type globalPermutation struct {
	rng    *rng.PCG32
	shared *Shared
	mask   uint64 // numPQs - 1
	p      float64
	local  uint64
	uses   int
	index  uint64 // handle id
	pushPQ int

	useRandomPush bool
	useRandomPop  bool
	pop           [2]int
}

func newGlobalPermutation(shared *Shared, cfg Config, r *rng.PCG32, id uint64) *globalPermutation {
	g := &globalPermutation{
		rng:    r,
		shared: shared,
		mask:   uint64(shared.numPQs - 1),
		p:      0.5 / float64(cfg.Stickiness),
		local:  shared.word.Load(),
		index:  id,
	}
	g.uses = r.Geometric(g.p)
	return g
}

func (g *globalPermutation) idx(j int) int {
	a := g.local & permMask
	b := (g.local >> permShift) & permMask
	return int(((2*g.index + uint64(j)) * a + b) & g.mask)
}

// resetPermutation publishes a fresh permutation word.  Losing the CAS
// means another handle already refreshed; its word is adopted on the next
// refresh.
func (g *globalPermutation) resetPermutation() {
	next := g.rng.Uint64() | 1 // low half must stay odd
	if g.shared.word.CompareAndSwap(g.local, next) {
		g.local = next
	}
	g.uses = g.rng.Geometric(g.p)
	g.useRandomPush = false
	g.useRandomPop = false
}

// refreshPermutation adopts a word published by another handle.
func (g *globalPermutation) refreshPermutation() {
	w := g.shared.word.Load()
	if w != g.local {
		g.local = w
		g.uses = g.rng.Geometric(g.p)
		g.useRandomPush = false
		g.useRandomPop = false
	}
}

func (g *globalPermutation) PushPQ() int {
	if g.useRandomPush {
		return g.rng.IntN(int(g.mask) + 1)
	}
	g.refreshPermutation()
	return g.idx(g.pushPQ)
}

func (g *globalPermutation) ResetPushPQ() {
	g.useRandomPush = true
}

func (g *globalPermutation) UsePushPQ() {
	g.useRandomPush = false
	if g.uses <= 0 {
		g.resetPermutation()
	} else {
		g.uses--
	}
	g.pushPQ = 1 - g.pushPQ
}

func (g *globalPermutation) PopPQs() []int {
	if g.useRandomPop {
		g.pop[0] = g.rng.IntN(int(g.mask) + 1)
		g.pop[1] = g.rng.IntN(int(g.mask) + 1)
		return g.pop[:]
	}
	g.refreshPermutation()
	g.pop[0] = g.idx(0)
	g.pop[1] = g.idx(1)
	return g.pop[:]
}

func (g *globalPermutation) ResetPopPQs() {
	g.useRandomPop = true
}

func (g *globalPermutation) UsePopPQs() {
	g.useRandomPop = false
	if g.uses <= 0 {
		g.resetPermutation()
	} else {
		g.uses -= 2
	}
}
