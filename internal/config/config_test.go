package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidation(t *testing.T) {
	t.Parallel()
	require.NoError(t, Default().Validate())
}

func TestFastDebugProfileMatchesScenario(t *testing.T) {
	t.Parallel()
	c, err := Profile("fast-debug")
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, 2, c.SelfPlay.MaxCycles)
	assert.Equal(t, 5, c.SelfPlay.GamesPerCycle)
	assert.Equal(t, 2, c.SelfPlay.MaxConcurrentGames)
	assert.Equal(t, 40, c.SelfPlay.MaxStepsPerGame)
	assert.Equal(t, 32, c.Network.BatchSize)
	assert.EqualValues(t, 12345, c.System.Seed)
}

func TestUnknownProfileIsConfigInvalid(t *testing.T) {
	t.Parallel()
	_, err := Profile("nonexistent")
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestApplyOverride(t *testing.T) {
	t.Parallel()
	c := Default()
	require.NoError(t, c.ApplyOverride("rl.gamma=0.95"))
	assert.Equal(t, 0.95, c.RL.Gamma)

	require.NoError(t, c.ApplyOverride("selfplay.games_per_cycle=7"))
	assert.Equal(t, 7, c.SelfPlay.GamesPerCycle)

	err := c.ApplyOverride("rl.gamma")
	assert.ErrorIs(t, err, ErrConfigInvalid)

	err = c.ApplyOverride("nosuchsection.field=1")
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestValidateRejectsOutOfRangeGamma(t *testing.T) {
	t.Parallel()
	c := Default()
	c.RL.Gamma = 1.5
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "rl.gamma")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	c, err := Load("/nonexistent/profile.hcl")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}
