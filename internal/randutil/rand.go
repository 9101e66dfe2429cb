package randutil

import rand "math/rand/v2"

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// The helper centralises how we derive the two 64-bit seeds required by rand/v2
// so that all call sites get reproducible sequences.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// GameSeed derives a per-game seed from a run's base seed and a game id so
// that self-play workers started in independent processes still produce a
// reproducible, non-colliding RNG stream each. Workers never share a process
// with one another, so the derivation has to be a pure function of inputs
// both sides of the fork already know.
func GameSeed(baseSeed int64, gameID int) int64 {
	return baseSeed ^ int64(gameID)
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
