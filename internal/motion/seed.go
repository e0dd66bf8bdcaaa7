// Package motion generates the stochastic parts of a render session: the
// blink schedule and the idle body motion. Both are pure functions of a
// session seed and the query time, so any number of render workers can
// recompute them independently.
package motion

import "math/rand/v2"

// Stream selectors keep the blink and idle generators independent of each
// other for the same seed.
const (
	blinkStream uint64 = 0x9e3779b97f4a7c15
	idleStream  uint64 = 0xbf58476d1ce4e5b9
)

// NewSeed returns a random session seed. Callers that need reproducible
// output pass a fixed seed instead.
func NewSeed() uint64 {
	seed := rand.Uint64()
	if seed == 0 {
		return 1
	}

	return seed
}

func newSource(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^stream))
}

// uniform returns a value in [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}

	return lo + rng.Float64()*(hi-lo)
}
