package evaluator

import (
	"testing"

	"github.com/chessrl/chessrl/internal/agent"
	"github.com/chessrl/chessrl/internal/env"
	"github.com/chessrl/chessrl/internal/network"
	"github.com/chessrl/chessrl/internal/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T) *agent.Agent {
	t.Helper()
	cfg := network.Config{HiddenLayers: []int{8}, LearningRate: 1e-3, GradientClip: 1.0, Seed: 3}
	online := network.NewManual(cfg)
	target := network.NewManual(cfg)
	buf := replay.New("UNIFORM", 100, replay.DefaultPrioritizedConfig())
	return agent.New(agent.Config{Gamma: 0.99, EpsilonStart: 0.0, EpsilonEnd: 0.0, EpsilonDecayUpdates: 1}, online, target, buf)
}

func testConfig() Config {
	return Config{
		Games:           4,
		MaxStepsPerGame: 20,
		Epsilon:         0.0,
		RewardConfig:    env.DefaultRewardConfig(),
		Adjudication:    env.AdjudicationConfig{},
		Seed:            7,
	}
}

func TestEvaluateVsHeuristicRatesSumToOne(t *testing.T) {
	e := New()
	a := newTestAgent(t)
	report, err := e.EvaluateVsHeuristic(a, testConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, report.WinRate+report.DrawRate+report.LossRate, 1e-9)
	assert.LessOrEqual(t, report.AvgLength, float64(testConfig().MaxStepsPerGame))
	assert.Equal(t, report.Draws, report.Breakdown.Sum())
}

func TestEvaluateVsMinimaxRatesSumToOne(t *testing.T) {
	e := New()
	a := newTestAgent(t)
	report, err := e.EvaluateVsMinimax(a, 1, testConfig())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, report.WinRate+report.DrawRate+report.LossRate, 1e-9)
}

func TestCompareModelsRatesComplementary(t *testing.T) {
	e := New()
	a := newTestAgent(t)
	b := newTestAgent(t)
	result, err := e.CompareModels(a, b, testConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.A.WinRate+result.A.DrawRate+result.A.LossRate, 1e-9)
	assert.InDelta(t, 1.0, result.B.WinRate+result.B.DrawRate+result.B.LossRate, 1e-9)
	assert.InDelta(t, result.A.WinRate, result.B.LossRate, 1e-9)
	assert.InDelta(t, result.A.LossRate, result.B.WinRate, 1e-9)
}

func TestPerfScoreTieBreak(t *testing.T) {
	better := Report{Wins: 5, Losses: 1, Draws: 4, AvgLength: 30}
	better.WinRate, better.LossRate = 0.5, 0.1
	worse := Report{Wins: 5, Losses: 1, Draws: 4, AvgLength: 50}
	worse.WinRate, worse.LossRate = 0.5, 0.1
	assert.True(t, worse.Less(better))
}
