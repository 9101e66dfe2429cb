package agent

import (
	"math/rand/v2"
	"testing"

	"github.com/chessrl/chessrl/internal/encode"
	"github.com/chessrl/chessrl/internal/network"
	"github.com/chessrl/chessrl/internal/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(cfg Config) *Agent {
	netCfg := network.Config{HiddenLayers: []int{8}, LearningRate: 1e-2, GradientClip: 1.0, Seed: 1}
	online := network.NewManual(netCfg)
	target := network.NewManual(netCfg)
	buf := replay.NewUniform(100)
	return New(cfg, online, target, buf)
}

func TestSelectActionRespectsLegalMask(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.EpsilonStart, cfg.EpsilonEnd = 0, 0
	a := newTestAgent(cfg)
	rng := rand.New(rand.NewPCG(1, 2))
	state := make([]float32, encode.StateDim)
	legal := []int{3, 99, 4095}

	result := a.SelectAction(state, legal, rng)
	assert.Contains(t, legal, result.Action)
}

func TestSelectActionExploresAtEpsilonOne(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.EpsilonStart, cfg.EpsilonEnd = 1, 1
	a := newTestAgent(cfg)
	rng := rand.New(rand.NewPCG(5, 6))
	state := make([]float32, encode.StateDim)
	legal := []int{10, 20}

	seen := map[int]bool{}
	for i := 0; i < 50; i++ {
		seen[a.SelectAction(state, legal, rng).Action] = true
	}
	assert.True(t, seen[10] || seen[20])
}

func TestTrainBatchSyncsTargetEveryT(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.TargetUpdateFrequency = 2
	cfg.BatchSize = 2
	a := newTestAgent(cfg)
	probe := [][]float32{make([]float32, encode.StateDim)}

	batch := makeBatch(2)
	_, err := a.TrainBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Updates())
	assert.NotEqual(t, a.online.Predict(probe), a.target.Predict(probe), "target must not sync before T updates")

	_, err = a.TrainBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Updates())
	assert.Equal(t, a.online.Predict(probe), a.target.Predict(probe), "target must sync on the T-th update")
}

func TestEpsilonLinearDecay(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.EpsilonStart, cfg.EpsilonEnd = 1.0, 0.0
	cfg.EpsilonDecayUpdates = 4
	a := newTestAgent(cfg)

	batch := makeBatch(2)
	for i := 0; i < 4; i++ {
		_, err := a.TrainBatch(batch)
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.0, a.Epsilon(), 1e-9)
}

func makeBatch(n int) replay.Batch {
	b := replay.Batch{}
	for i := 0; i < n; i++ {
		s := make([]float32, encode.StateDim)
		s[i] = 1
		ns := make([]float32, encode.StateDim)
		b.Transitions = append(b.Transitions, replay.Transition{
			State: s, Action: i, Reward: 1.0, NextState: ns, Done: true,
		})
		b.Weights = append(b.Weights, 1.0)
		b.Indices = append(b.Indices, i)
	}
	return b
}
