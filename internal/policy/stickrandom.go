// © 2025 multiqueue authors. MIT License.

package policy

import "github.com/Voskan/multiqueue/internal/rng"

// stickRandom keeps one sticky sub-queue index per slot and reuses it for a
// geometrically distributed number of operations.  Pushes rotate through
// the slots round-robin; pops use all slots as the candidate set, so the
// slots are kept pairwise distinct by redrawing with rejection.
//
// A failed lock resets the slot immediately, countdown included.
type stickRandom struct {
	rng    *rng.PCG32
	numPQs int
	p      float64 // success probability of the use-count distribution
	stick  []int
	uses   []int
	pushPQ int
}

func newStickRandom(numPQs int, cfg Config, r *rng.PCG32) *stickRandom {
	s := &stickRandom{
		rng:    r,
		numPQs: numPQs,
		p:      1.0 / float64(cfg.Stickiness),
		stick:  make([]int, cfg.PopPQs),
		uses:   make([]int, cfg.PopPQs),
	}
	for i := range s.stick {
		s.stick[i] = -1
	}
	for i := range s.stick {
		s.resetSlot(i)
	}
	return s
}

// resetSlot redraws the index of slot i, rejecting indices already held by
// another slot, and samples a fresh use count.
func (s *stickRandom) resetSlot(i int) {
	s.uses[i] = s.rng.Geometric(s.p)
	for {
		idx := s.rng.IntN(s.numPQs)
		taken := false
		for j, other := range s.stick {
			if j != i && other == idx {
				taken = true
				break
			}
		}
		if !taken {
			s.stick[i] = idx
			return
		}
	}
}

func (s *stickRandom) countDown(i int) {
	if s.uses[i] == 0 {
		s.resetSlot(i)
		return
	}
	s.uses[i]--
}

func (s *stickRandom) PushPQ() int {
	return s.stick[s.pushPQ]
}

func (s *stickRandom) ResetPushPQ() {
	s.resetSlot(s.pushPQ)
}

func (s *stickRandom) UsePushPQ() {
	s.countDown(s.pushPQ)
	s.pushPQ = (s.pushPQ + 1) % len(s.stick)
}

func (s *stickRandom) PopPQs() []int {
	return s.stick
}

func (s *stickRandom) ResetPopPQs() {
	for i := range s.stick {
		s.resetSlot(i)
	}
}

func (s *stickRandom) UsePopPQs() {
	for i := range s.stick {
		s.countDown(i)
	}
}
