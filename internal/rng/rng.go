// Package rng provides the simulation's single seeded pseudo-random source.
//
// Tierra's determinism law (two runs with the same seed and config produce
// identical event streams) requires every stochastic decision in the engine
// - allocator policy choice, mutation rolls, disturbance selection, slice
// jitter - to draw from one shared, seeded generator rather than the
// unseeded global math/rand source.
package rng

import (
	"math/rand"
	"sync"
)

// Source is a seeded PRNG. Each draw holds an internal mutex, so concurrent
// calls do not corrupt its state, but the order of draws (and so the
// sequence each caller sees) is deterministic only when one goroutine
// draws; the engine is single-threaded per spec §5.
type Source struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// New returns a Source seeded with seed. A seed of 0 still produces a fully
// deterministic sequence (spec's "seed (0)" default is a normal seed value,
// not a request for nondeterminism).
func New(seed int64) *Source {
	return &Source{rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed reports the seed this Source was constructed with.
func (s *Source) Seed() int64 { return s.seed }

// Intn returns a pseudo-random int in [0, n).
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}

// Float64 returns a pseudo-random float64 in [0, 1).
func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

// Bool reports a coin flip.
func (s *Source) Bool() bool {
	return s.Intn(2) == 1
}

// Chance reports true with probability p (p <= 0 always false, p >= 1 always
// true). rate_mut, rate_flaw, rate_mov_mut and the gen_per_* genetic-operator
// probabilities are all expressed this way.
func (s *Source) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.Float64() < p
}

// Opcode returns a uniformly random opcode byte in 0-31; used by
// copy-mutation overwrite and instruction insertion.
func (s *Source) Opcode() byte {
	return byte(s.Intn(32))
}
