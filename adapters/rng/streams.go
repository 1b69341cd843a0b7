// Package rng provides deterministic named RNG streams so that equalization
// and permutation draws reproduce exactly for a recorded seed.
package rng

import (
	"hash/fnv"
	"math/rand"
)

// Streams implements ports.RNGPort. Each named stream derives its source
// from the base seed and the stream name, so adding a stream never perturbs
// the draws of existing ones.
type Streams struct{}

// New creates the stream factory.
func New() *Streams {
	return &Streams{}
}

// SeededStream returns a rand.Rand seeded from (name, seed).
func (s *Streams) SeededStream(name string, seed int64) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	derived := seed ^ int64(h.Sum64())
	return rand.New(rand.NewSource(derived))
}
