package selfplay

import (
	"path/filepath"
	"testing"

	"github.com/chessrl/chessrl/internal/agent"
	"github.com/chessrl/chessrl/internal/env"
	"github.com/chessrl/chessrl/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallJob(t *testing.T, opponentType string) WorkerJob {
	t.Helper()
	dir := t.TempDir()
	weightsPath := filepath.Join(dir, "weights.json")

	netCfg := network.Config{HiddenLayers: []int{8}, LearningRate: 1e-3, GradientClip: 1.0, Seed: 7}
	backend := network.NewManual(netCfg)
	require.NoError(t, backend.Save(weightsPath))

	return WorkerJob{
		GameID:          1,
		Seed:            12345,
		WeightsPath:     weightsPath,
		BackendName:     "manual",
		NetworkConfig:   netCfg,
		AgentConfig:     agent.Config{Gamma: 0.99, EpsilonStart: 1.0, EpsilonEnd: 1.0, EpsilonDecayUpdates: 1},
		RewardConfig:    env.DefaultRewardConfig(),
		Adjudication:    env.AdjudicationConfig{},
		MaxStepsPerGame: 12,
		OpponentType:    opponentType,
		OpponentDepth:   1,
	}
}

func TestPlayGameSelfPlayProducesTransitionsForBothSides(t *testing.T) {
	job := smallJob(t, "self")
	result, err := PlayGame(job)
	require.NoError(t, err)
	assert.Equal(t, job.MaxStepsPerGame, result.Length)
	assert.Len(t, result.Transitions, job.MaxStepsPerGame)
	assert.NotEmpty(t, result.FinalFEN)
}

func TestPlayGameHeuristicOpponentOnlyRecordsLearnerMoves(t *testing.T) {
	job := smallJob(t, "heuristic")
	result, err := PlayGame(job)
	require.NoError(t, err)
	// White (the learner) moves on roughly half the plies; Black's
	// heuristic replies are applied but never recorded as transitions.
	assert.Less(t, len(result.Transitions), result.Length+1)
	assert.Greater(t, len(result.Transitions), 0)
}

func TestPlayGameHitsStepLimitPenalty(t *testing.T) {
	job := smallJob(t, "self")
	job.MaxStepsPerGame = 4
	result, err := PlayGame(job)
	require.NoError(t, err)
	assert.Equal(t, "step_limit", result.TerminationTag)
	last := result.Transitions[len(result.Transitions)-1]
	assert.True(t, last.Done)
	assert.Equal(t, job.RewardConfig.StepLimitPenalty, last.Reward)
}
