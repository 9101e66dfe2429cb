package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chessrl/chessrl/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallBackend() network.Backend {
	return network.NewManual(network.Config{HiddenLayers: []int{4}, LearningRate: 1e-2, GradientClip: 1.0, Seed: 1})
}

func TestSaveAndResolvePrefersBest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := NewManager(dir, "json", 10, 0)
	require.NoError(t, err)

	backend := smallBackend()
	require.NoError(t, m.Save(backend, 1, 0.1, false, "fp"))
	require.NoError(t, m.Save(backend, 2, 0.2, m.IsNewBest(0.2), "fp"))

	path, meta, err := m.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, m.bestWeightsPath(), path)
	assert.Equal(t, 2, meta.Cycle)
	assert.True(t, meta.IsBest)
}

func TestRetentionKeepsBestAndLastK(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := NewManager(dir, "json", 2, 0)
	require.NoError(t, err)
	backend := smallBackend()

	for cycle := 1; cycle <= 5; cycle++ {
		perf := float64(cycle)
		require.NoError(t, m.Save(backend, cycle, perf, m.IsNewBest(perf), "fp"))
	}

	cycles, err := m.listCheckpointCycles()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(cycles), 2)

	_, err = os.Stat(m.bestWeightsPath())
	assert.NoError(t, err, "best model must never be deleted by retention")
}

func TestResolveExplicitPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := NewManager(dir, "json", 10, 0)
	require.NoError(t, err)
	backend := smallBackend()
	require.NoError(t, m.Save(backend, 1, 1.0, true, "fp"))

	explicit := filepath.Join(dir, "checkpoint_cycle_1.json")
	path, meta, err := m.Resolve(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, path)
	assert.Equal(t, 1, meta.Cycle)
}

func TestResolveEmptyDirErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := NewManager(dir, "json", 10, 0)
	require.NoError(t, err)
	_, _, err = m.Resolve("")
	assert.ErrorIs(t, err, ErrCheckpointIO)
}
