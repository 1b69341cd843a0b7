package ports

import (
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic
// operations. Permutation draws and block equalization pull named streams so
// the same seed reproduces the same analysis regardless of feature order.
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a
	// named operation.
	SeededStream(name string, seed int64) *rand.Rand
}
