// © 2025 multiqueue authors. MIT License.

package policy

import "github.com/Voskan/multiqueue/internal/rng"

// swapAssignment draws its two sticky indices from a global permutation
// table with one entry per sub-queue.  Handle id owns table slots 2·id and
// 2·id+1.  Re-randomising a slot swaps its value with a randomly chosen
// other slot under a three-step protocol:
//
//  1. CAS the own slot from its current value to the swapping marker.  If
//     this fails another handle already swapped a new value in, which is
//     just as good — abort.
//  2. Pick a random victim slot; skip it while it holds the marker; CAS its
//     value to our previous one.
//  3. Store the victim's previous value into the own slot.
//
// The table's multiset of values therefore always equals {0, …, P-1} at
// every quiescent point; a slot holding the marker belongs to a handle
// mid-swap, and only that handle clears it.
type swapAssignment struct {
	rng    *rng.PCG32
	shared *Shared
	p      float64
	base   int // first owned table slot (2·id)
	stick  [2]uint64
	uses   [2]int
	pushPQ int
	pop    [2]int
}

func newSwapAssignment(shared *Shared, cfg Config, r *rng.PCG32, id int) *swapAssignment {
	s := &swapAssignment{
		rng:    r,
		shared: shared,
		p:      1.0 / float64(cfg.Stickiness),
		base:   2 * id,
	}
	for i := range s.stick {
		s.stick[i] = shared.perm[s.base+i].value.Load()
		s.uses[i] = r.Geometric(s.p)
	}
	return s
}

func (s *swapAssignment) resetSlot(i int) {
	s.uses[i] = s.rng.Geometric(s.p)
	own := &s.shared.perm[s.base+i].value
	if !own.CompareAndSwap(s.stick[i], swapping) {
		// Somebody swapped a fresh value into our slot; keep it.
		return
	}
	for {
		t := s.rng.IntN(s.shared.numPQs)
		v := s.shared.perm[t].value.Load()
		if v == swapping {
			continue
		}
		if s.shared.perm[t].value.CompareAndSwap(v, s.stick[i]) {
			own.Store(v)
			s.stick[i] = v
			return
		}
	}
}

// refreshSlot picks up a value another handle swapped into our slot.
func (s *swapAssignment) refreshSlot(i int) {
	v := s.shared.perm[s.base+i].value.Load()
	if v != s.stick[i] {
		s.stick[i] = v
		s.uses[i] = s.rng.Geometric(s.p)
	}
}

func (s *swapAssignment) countDown(i int) {
	if s.uses[i] == 0 {
		s.resetSlot(i)
		return
	}
	s.uses[i]--
}

func (s *swapAssignment) PushPQ() int {
	s.refreshSlot(s.pushPQ)
	return int(s.stick[s.pushPQ])
}

func (s *swapAssignment) ResetPushPQ() {
	s.resetSlot(s.pushPQ)
}

func (s *swapAssignment) UsePushPQ() {
	s.countDown(s.pushPQ)
	s.pushPQ = 1 - s.pushPQ
}

func (s *swapAssignment) PopPQs() []int {
	s.refreshSlot(0)
	s.refreshSlot(1)
	s.pop[0] = int(s.stick[0])
	s.pop[1] = int(s.stick[1])
	return s.pop[:]
}

func (s *swapAssignment) ResetPopPQs() {
	s.resetSlot(0)
	s.resetSlot(1)
}

func (s *swapAssignment) UsePopPQs() {
	s.countDown(0)
	s.countDown(1)
}
