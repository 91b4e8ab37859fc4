package multiqueue

// config.go defines the internal configuration object and the set of
// functional options that can be passed to New[K,V].  A generic Option is
// used so that comparator and container hooks retain full type-safety with
// respect to the concrete key type K and value type V chosen by the user.
//
// Design notes
// ------------
// • All fields are initialised with sensible defaults in defaultConfig().
// • Options never allocate unless strictly necessary – they just capture
//   pointers to external objects (registry, logger …).
// • We hide the struct from the public API: users can only influence
//   behaviour via Option[K,V].  This guarantees forward compatibility.
//
// © 2025 multiqueue authors. MIT License.

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Voskan/multiqueue/internal/guard"
	"github.com/Voskan/multiqueue/internal/policy"
)

// Policy selects the queue-selection policy.  Re-exported so users do not
// import the internal package.
type Policy = policy.Kind

// The four queue-selection policies.  StickRandom is the default.
const (
	PolicyRandom            = policy.Random
	PolicyStickRandom       = policy.StickRandom
	PolicySwapAssignment    = policy.SwapAssignment
	PolicyGlobalPermutation = policy.GlobalPermutation
)

// ParsePolicy maps a policy name ("random", "stick-random",
// "swap-assignment", "global-permutation") to its Policy value.
func ParsePolicy(s string) (Policy, error) { return policy.Parse(s) }

// LessFn is a strict weak ordering on keys: it reports whether a sorts
// before b.  The sentinel must sort after every real key under it.
type LessFn[K Key] func(a, b K) bool

// Option is the functional option passed to New.  It is generic because
// some options (ordering, container choice) refer to the concrete K/V
// types.
type Option[K Key, V any] func(*config[K, V])

// config bundles every knob that influences multiqueue behaviour.  All
// fields are immutable once the MultiQueue is constructed – we do not
// support live mutation from user land.
type config[K Key, V any] struct {
	// copied from the New() arguments; kept here so all params live in one
	// object.
	numThreads int

	// tunables
	factor          int // sub-queues per thread, before power-of-two rounding
	queuePolicy     Policy
	seed            int64
	stickiness      int
	popPQs          int // pop candidates k
	numPopTries     int
	scanOnFailedPop bool
	strict          bool
	buffered        bool

	// ordering
	less     LessFn[K]
	sentinel K

	// container override; nil selects the heap (plain or buffered).  The
	// multi-FIFO front-end installs the ring buffer through this hook.
	newContainer func() guard.Container[V]

	// optional knobs
	registry *prometheus.Registry
	logger   *zap.Logger

	// derived – filled in by applyOptions.
	numPQs int
}

/*
   ---------------- Default configuration ----------------
*/

const (
	defaultFactor     = 4
	defaultStickiness = 16
	defaultPopPQs     = 2
)

func defaultConfig[K Key, V any](numThreads int) *config[K, V] {
	return &config[K, V]{
		numThreads:      numThreads,
		factor:          defaultFactor,
		queuePolicy:     PolicyStickRandom,
		seed:            1,
		stickiness:      defaultStickiness,
		popPQs:          defaultPopPQs,
		numPopTries:     1,
		scanOnFailedPop: true,
		less:            func(a, b K) bool { return a < b },
		sentinel:        ^K(0),
		logger:          zap.NewNop(),
		registry:        nil, // user must opt in to metrics
	}
}

/*
   ---------------- Functional options exposed to users ----------------
*/

// WithPolicy selects the queue-selection policy (default StickRandom).
func WithPolicy[K Key, V any](p Policy) Option[K, V] {
	return func(c *config[K, V]) {
		c.queuePolicy = p
	}
}

// WithFactor sets the per-thread sub-queue multiplier c; the multiqueue
// uses c·numThreads sub-queues, rounded up to a power of two.  Default 4.
func WithFactor[K Key, V any](factor int) Option[K, V] {
	return func(c *config[K, V]) {
		c.factor = factor
	}
}

// WithSeed fixes the base seed all handle PRNG streams derive from.
// Runs with the same seed, thread count and schedule select the same
// sub-queue sequences.
func WithSeed[K Key, V any](seed int64) Option[K, V] {
	return func(c *config[K, V]) {
		c.seed = seed
	}
}

// WithStickiness sets the mean of the geometric distribution governing how
// long sticky policies keep an index.  Default 16.
func WithStickiness[K Key, V any](stickiness int) Option[K, V] {
	return func(c *config[K, V]) {
		c.stickiness = stickiness
	}
}

// WithPopCandidates sets the number of sub-queues sampled per pop (default
// 2).  SwapAssignment and GlobalPermutation support exactly 2.
func WithPopCandidates[K Key, V any](k int) Option[K, V] {
	return func(c *config[K, V]) {
		c.popPQs = k
	}
}

// WithPopTries sets how many best-of-k rounds a pop performs before giving
// up or falling back to the scan.  Default 1.
func WithPopTries[K Key, V any](tries int) Option[K, V] {
	return func(c *config[K, V]) {
		c.numPopTries = tries
	}
}

// WithScanOnFailedPop toggles the fallback linear scan over all guards
// after the best-of-k rounds report empty.  Default on.
func WithScanOnFailedPop[K Key, V any](on bool) Option[K, V] {
	return func(c *config[K, V]) {
		c.scanOnFailedPop = on
	}
}

// WithStrictComparison makes a pop abort and retry when the locked
// sub-queue's real top key differs from the one observed in the cache.
// Off by default; lenient mode trades a little ordering quality for
// throughput.
func WithStrictComparison[K Key, V any](on bool) Option[K, V] {
	return func(c *config[K, V]) {
		c.strict = on
	}
}

// WithBufferedHeap backs each sub-queue with the buffered heap (insertion
// and deletion buffers in front of the d-ary heap) instead of the plain
// one.
func WithBufferedHeap[K Key, V any](on bool) Option[K, V] {
	return func(c *config[K, V]) {
		c.buffered = on
	}
}

// WithOrder replaces the natural `<` ordering.  The sentinel must sort
// after every real key under less; no real key may equal it.
func WithOrder[K Key, V any](less LessFn[K], sentinel K) Option[K, V] {
	return func(c *config[K, V]) {
		if less != nil {
			c.less = less
			c.sentinel = sentinel
		}
	}
}

// WithMetrics enables Prometheus metrics collection for the multiqueue
// instance.  Passing nil disables metrics (default).
func WithMetrics[K Key, V any](reg *prometheus.Registry) Option[K, V] {
	return func(c *config[K, V]) {
		c.registry = reg
	}
}

// WithLogger plugs an external zap.Logger.  The multiqueue never logs on
// the hot path; only construction and teardown are emitted.
func WithLogger[K Key, V any](l *zap.Logger) Option[K, V] {
	return func(c *config[K, V]) {
		if l != nil {
			c.logger = l
		}
	}
}

/*
   ---------------- Helper: apply options & validate ----------------
*/

// nextPow2 rounds n up to the next power of two.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// applyOptions copies user-supplied options into cfg, validates invariants
// and derives the sub-queue count.
func applyOptions[K Key, V any](cfg *config[K, V], opts []Option[K, V]) error {
	for _, opt := range opts {
		opt(cfg)
	}

	// Validation – bail out early with descriptive error.
	if cfg.numThreads <= 0 {
		return errInvalidThreads
	}
	if cfg.factor <= 0 {
		return errInvalidFactor
	}
	if cfg.stickiness <= 0 {
		return errInvalidStickiness
	}
	if cfg.numPopTries <= 0 {
		return errInvalidPopTries
	}

	cfg.numPQs = nextPow2(cfg.numThreads * cfg.factor)

	if cfg.popPQs <= 0 || cfg.popPQs > cfg.numPQs {
		return errInvalidPopPQs
	}
	switch cfg.queuePolicy {
	case PolicySwapAssignment, PolicyGlobalPermutation:
		if cfg.popPQs != 2 {
			return errPolicyPopPQs
		}
	}
	return nil
}

/*
   ---------------- Error values ----------------
*/

var (
	errNilKeyOf          = errors.New("key extractor must not be nil")
	errInvalidCapacity   = errors.New("per-queue capacity must be > 0")
	errInvalidThreads    = errors.New("num threads must be > 0")
	errInvalidFactor     = errors.New("queue factor must be > 0")
	errInvalidStickiness = errors.New("stickiness must be > 0")
	errInvalidPopTries   = errors.New("pop tries must be > 0")
	errInvalidPopPQs     = errors.New("pop candidates must be in [1, num queues]")
	errPolicyPopPQs      = errors.New("selected policy supports exactly 2 pop candidates")
)
