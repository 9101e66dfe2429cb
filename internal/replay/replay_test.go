package replay

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transitionWithReward(r float64) Transition {
	return Transition{State: []float32{0}, Action: 0, Reward: r, NextState: []float32{0}, Done: false}
}

func TestUniformCapacityNeverExceeded(t *testing.T) {
	t.Parallel()
	b := NewUniform(5)
	for i := 0; i < 20; i++ {
		b.Add(transitionWithReward(float64(i)))
		assert.LessOrEqual(t, b.Len(), b.Capacity())
	}
	assert.Equal(t, 5, b.Len())
}

func TestUniformSampleWithoutReplacement(t *testing.T) {
	t.Parallel()
	b := NewUniform(10)
	for i := 0; i < 10; i++ {
		b.Add(transitionWithReward(float64(i)))
	}
	rng := rand.New(rand.NewPCG(1, 2))
	batch := b.Sample(5, rng)
	require.Len(t, batch.Transitions, 5)

	seen := map[int]bool{}
	for _, idx := range batch.Indices {
		assert.False(t, seen[idx], "sample without replacement must not repeat indices")
		seen[idx] = true
	}
	for _, w := range batch.Weights {
		assert.Equal(t, 1.0, w)
	}
}

func TestPrioritizedCapacityAndPriorityUpdate(t *testing.T) {
	t.Parallel()
	b := NewPrioritized(4, DefaultPrioritizedConfig())
	for i := 0; i < 10; i++ {
		b.Add(transitionWithReward(float64(i)))
		assert.LessOrEqual(t, b.Len(), b.Capacity())
	}

	rng := rand.New(rand.NewPCG(3, 4))
	batch := b.Sample(2, rng)
	require.Len(t, batch.Transitions, 2)
	b.UpdatePriorities(batch.Indices, []float64{5.0, 0.1})
	assert.Greater(t, b.priorities[batch.Indices[0]], b.priorities[batch.Indices[1]])
}

func TestPrioritizedBetaAnneals(t *testing.T) {
	t.Parallel()
	cfg := DefaultPrioritizedConfig()
	b := NewPrioritized(4, cfg)
	b.SetCycle(0)
	assert.InDelta(t, cfg.BetaStart, b.beta(), 1e-9)
	b.SetCycle(cfg.BetaCycles)
	assert.InDelta(t, cfg.BetaEnd, b.beta(), 1e-9)
}
