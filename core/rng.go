package core

import "math/rand"

// RandSource is the seedable randomness behind every consensus-critical
// sampling decision: PoCS-weighted validator selection, peer-review pairing,
// and (indirectly, via ContractStore's nonce counter) contract address
// derivation stays deterministic without any randomness at all. Tests inject
// a seeded source so selection outcomes are reproducible; production wiring
// may use a source seeded from process entropy once at startup.
type RandSource interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0).
	Float64() float64
	// Shuffle randomizes the order of n elements using swap.
	Shuffle(n int, swap func(i, j int))
}

// mathRandSource adapts *rand.Rand to RandSource.
type mathRandSource struct {
	r *rand.Rand
}

// NewRandSource returns a RandSource seeded with the given value. Two
// RandSources created with the same seed and driven with the same call
// sequence produce identical outputs.
func NewRandSource(seed int64) RandSource {
	return &mathRandSource{r: rand.New(rand.NewSource(seed))}
}

func (m *mathRandSource) Float64() float64 {
	return m.r.Float64()
}

func (m *mathRandSource) Shuffle(n int, swap func(i, j int)) {
	m.r.Shuffle(n, swap)
}
