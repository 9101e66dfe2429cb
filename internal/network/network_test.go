package network

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/chessrl/chessrl/internal/encode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	return Config{HiddenLayers: []int{16, 8}, LearningRate: 1e-2, GradientClip: 1.0, Seed: 7}
}

func TestPredictShape(t *testing.T) {
	t.Parallel()
	m := NewManual(smallConfig())
	states := [][]float32{make([]float32, encode.StateDim), make([]float32, encode.StateDim)}
	out := m.Predict(states)
	require.Len(t, out, 2)
	assert.Len(t, out[0], encode.ActionDim)
}

func TestTrainBatchReducesLoss(t *testing.T) {
	t.Parallel()
	m := NewManual(smallConfig())
	states := make([][]float32, 4)
	targets := make([][]float32, 4)
	for i := range states {
		states[i] = make([]float32, encode.StateDim)
		states[i][i] = 1
		targets[i] = m.Predict(states[i : i+1])[0]
		targets[i][0] += 1.0
	}

	firstLoss, _, err := m.TrainBatch(states, targets)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_, _, err := m.TrainBatch(states, targets)
		require.NoError(t, err)
	}
	lastLoss, _, err := m.TrainBatch(states, targets)
	require.NoError(t, err)
	assert.Less(t, lastLoss, firstLoss)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	m := NewManual(smallConfig())
	states := [][]float32{make([]float32, encode.StateDim)}
	states[0][5] = 1
	before := m.Predict(states)

	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, m.Save(path))

	loaded := NewManual(smallConfig())
	require.NoError(t, loaded.Load(path))
	after := loaded.Predict(states)

	for i := range before[0] {
		assert.InDelta(t, before[0][i], after[0][i], 1e-9)
	}
}

func TestCopyWeightsToRejectsForeignBackend(t *testing.T) {
	t.Parallel()
	m := NewManual(smallConfig())
	err := m.CopyWeightsTo(fakeBackend{})
	assert.ErrorIs(t, err, ErrCrossBackendCopy)
}

type fakeBackend struct{}

func (fakeBackend) Predict(_ [][]float32) [][]float32                       { return nil }
func (fakeBackend) TrainBatch(_, _ [][]float32) (float64, float64, error)    { return 0, 0, nil }
func (fakeBackend) CopyWeightsTo(_ Backend) error                           { return nil }
func (fakeBackend) Save(_ string) error                                     { return nil }
func (fakeBackend) Load(_ string) error                                     { return nil }
func (fakeBackend) ParameterCount() int                                     { return 0 }
func (fakeBackend) BackendID() string                                       { return "fake" }

func TestNonFiniteTargetSignalsError(t *testing.T) {
	t.Parallel()
	m := NewManual(smallConfig())
	states := [][]float32{make([]float32, encode.StateDim)}
	targets := [][]float32{make([]float32, encode.ActionDim)}
	targets[0][0] = float32(math.NaN())
	_, _, err := m.TrainBatch(states, targets)
	assert.ErrorIs(t, err, ErrNonFinite)
}
