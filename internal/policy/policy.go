// Package policy implements the queue-selection policies of the relaxed
// multiqueue.  A policy decides which sub-queue a handle touches for a push
// and which small candidate set it samples for a pop; the four variants
// trade selection cost against cache locality and contention.
//
// Every Selector is owned by exactly one handle and is not safe for
// concurrent use.  What the variants share across handles lives in Shared:
// the handle id counter, the swap-assignment permutation table, and the
// global permutation word.  Shared state is mutated with single atomic
// operations only; no policy ever blocks on another handle.
//
// © 2025 multiqueue authors. MIT License.

package policy

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Voskan/multiqueue/internal/guard"
	"github.com/Voskan/multiqueue/internal/rng"
)

// Kind selects one of the four policy variants.
type Kind int

const (
	// Random draws fresh uniform indices for every operation.
	Random Kind = iota
	// StickRandom keeps per-slot sticky indices for a geometrically
	// distributed number of uses.
	StickRandom
	// SwapAssignment assigns each handle two slots of a global permutation
	// table and re-randomises by atomically swapping slot contents.
	SwapAssignment
	// GlobalPermutation derives all assignments from one shared 64-bit
	// affine permutation word.
	GlobalPermutation
)

func (k Kind) String() string {
	switch k {
	case Random:
		return "random"
	case StickRandom:
		return "stick-random"
	case SwapAssignment:
		return "swap-assignment"
	case GlobalPermutation:
		return "global-permutation"
	default:
		return fmt.Sprintf("policy.Kind(%d)", int(k))
	}
}

// Parse maps a policy name as accepted on CLI flags back to its Kind.
func Parse(s string) (Kind, error) {
	switch s {
	case "random":
		return Random, nil
	case "stick-random":
		return StickRandom, nil
	case "swap-assignment":
		return SwapAssignment, nil
	case "global-permutation":
		return GlobalPermutation, nil
	default:
		return 0, fmt.Errorf("unknown queue-selection policy %q", s)
	}
}

// Config carries the knobs a Selector needs at construction.
type Config struct {
	// Seed is the multiqueue-wide base seed; each handle derives its own
	// stream from (Seed, handle id).
	Seed int64
	// Stickiness is the mean of the geometric use-count distribution.
	Stickiness int
	// PopPQs is the number of pop candidates k.  SwapAssignment and
	// GlobalPermutation support exactly 2.
	PopPQs int
}

// Selector is the per-handle selection state machine.  The handle reports
// the outcome of each operation back through the Use/Reset methods so the
// selector can maintain its stickiness counters.
type Selector interface {
	// PushPQ returns the sub-queue to try pushing to.
	PushPQ() int
	// ResetPushPQ is called after a failed lock on the push target.
	ResetPushPQ()
	// UsePushPQ is called after a successful push.
	UsePushPQ()
	// PopPQs returns the pop candidate set.  The returned slice is owned
	// by the selector and valid until the next call.
	PopPQs() []int
	// ResetPopPQs is called when the pop attempt failed.
	ResetPopPQs()
	// UsePopPQs is called after a successful pop.
	UsePopPQs()
}

// ErrTooManyHandles is returned when a policy cannot accommodate another
// handle (SwapAssignment owns two permutation slots per handle).
var ErrTooManyHandles = errors.New("policy: no free permutation slots for another handle")

// swapping marks a permutation-table slot whose owner is mid-swap.  Only
// the owning handle clears the marker from its slot.
const swapping = ^uint64(0)

// permSlot is one padded entry of the swap-assignment table.
type permSlot struct {
	value atomic.Uint64
	_     [guard.CacheLineSize - 8]byte
}

// Shared is the cross-handle state of one multiqueue instance.  Its
// lifecycle is tied to the owning multiqueue; it is not a process-wide
// singleton.
type Shared struct {
	kind   Kind
	numPQs int
	ids    atomic.Int64

	// perm is the swap-assignment permutation table; at every quiescent
	// point its multiset of values is {0, …, numPQs-1}.  While a handle is
	// mid-swap its own slot holds the swapping mark instead of a value;
	// several handles may be mid-swap at once.
	perm []permSlot

	// word is the global permutation (a in the low half, odd; b in the
	// high half).
	word atomic.Uint64
}

// NewShared builds the shared state for the given policy kind over numPQs
// sub-queues.
func NewShared(kind Kind, numPQs int) *Shared {
	s := &Shared{kind: kind, numPQs: numPQs}
	switch kind {
	case SwapAssignment:
		s.perm = make([]permSlot, numPQs)
		for i := range s.perm {
			s.perm[i].value.Store(uint64(i))
		}
	case GlobalPermutation:
		s.word.Store(1)
	}
	return s
}

// Kind returns the policy kind the shared state was built for.
func (s *Shared) Kind() Kind { return s.kind }

// NumPQs returns the number of sub-queues.
func (s *Shared) NumPQs() int { return s.numPQs }

// PermutationSnapshot copies the current swap-assignment table; nil for
// other kinds.  Used by invariant checks.
func (s *Shared) PermutationSnapshot() []uint64 {
	if s.perm == nil {
		return nil
	}
	out := make([]uint64, len(s.perm))
	for i := range s.perm {
		out[i] = s.perm[i].value.Load()
	}
	return out
}

// Word returns the current global permutation word; zero for other kinds.
func (s *Shared) Word() uint64 { return s.word.Load() }

// New vends a Selector bound to this shared state, assigning the next
// handle id.
func (s *Shared) New(cfg Config) (Selector, error) {
	id := s.ids.Add(1) - 1
	r := rng.New(rng.SplitMix64(uint64(cfg.Seed)^rng.SplitMix64(uint64(id))), uint64(id))
	switch s.kind {
	case Random:
		return newRandom(s.numPQs, cfg, r), nil
	case StickRandom:
		return newStickRandom(s.numPQs, cfg, r), nil
	case SwapAssignment:
		if int(2*id+1) >= s.numPQs {
			return nil, ErrTooManyHandles
		}
		return newSwapAssignment(s, cfg, r, int(id)), nil
	case GlobalPermutation:
		return newGlobalPermutation(s, cfg, r, uint64(id)), nil
	default:
		return nil, fmt.Errorf("policy: unknown kind %d", int(s.kind))
	}
}
