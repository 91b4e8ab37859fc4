// © 2025 multiqueue authors. MIT License.

package policy

import "github.com/Voskan/multiqueue/internal/rng"

// random draws fresh uniform indices on every query.  No state beyond the
// generator, so the Use/Reset callbacks are no-ops.
type random struct {
	rng    *rng.PCG32
	numPQs int
	pop    []int
}

func newRandom(numPQs int, cfg Config, r *rng.PCG32) *random {
	return &random{rng: r, numPQs: numPQs, pop: make([]int, cfg.PopPQs)}
}

func (p *random) PushPQ() int {
	return p.rng.IntN(p.numPQs)
}

func (p *random) ResetPushPQ() {}

func (p *random) UsePushPQ() {}

func (p *random) PopPQs() []int {
	for i := range p.pop {
		p.pop[i] = p.rng.IntN(p.numPQs)
	}
	return p.pop
}

func (p *random) ResetPopPQs() {}

func (p *random) UsePopPQs() {}
