package env

import (
	"testing"

	"github.com/chessrl/chessrl/internal/encode"
	"github.com/chessrl/chessrl/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetReturnsEncodedStartingState(t *testing.T) {
	t.Parallel()
	e := New(engine.NewBuiltin(), DefaultRewardConfig(), AdjudicationConfig{}, false)
	x := e.Reset()
	require.Len(t, x, encode.StateDim)
	assert.False(t, e.IsTerminal())
	assert.Len(t, e.ValidActions(), 20)
}

func TestStepRejectsIllegalActionWithoutMutation(t *testing.T) {
	t.Parallel()
	e := New(engine.NewBuiltin(), DefaultRewardConfig(), AdjudicationConfig{}, false)
	e.Reset()

	before := e.State().Position().ToFEN()
	_, reward, done, info := e.Step(encode.EncodeMove(0, 63))
	assert.True(t, info.Illegal)
	assert.False(t, done)
	assert.Equal(t, DefaultRewardConfig().InvalidMoveReward, reward)
	assert.Equal(t, before, e.State().Position().ToFEN())
}

func TestTwoStrikeIllegalCausesLoss(t *testing.T) {
	t.Parallel()
	e := New(engine.NewBuiltin(), DefaultRewardConfig(), AdjudicationConfig{}, true)
	e.Reset()

	_, _, done1, info1 := e.Step(encode.EncodeMove(0, 63))
	require.False(t, done1)
	require.True(t, info1.Illegal)

	_, reward, done2, info2 := e.Step(encode.EncodeMove(0, 63))
	assert.True(t, done2)
	assert.True(t, info2.MoverLost)
	assert.Equal(t, DefaultRewardConfig().LossReward, reward)
}

func TestAdjudicationResignOnMaterialThreshold(t *testing.T) {
	t.Parallel()
	a := engine.NewBuiltin()
	e := New(a, DefaultRewardConfig(), AdjudicationConfig{Enabled: true, ResignMaterialThreshold: 1, NoProgressPlies: 1000}, false)

	s, err := a.FromFEN("4k3/8/8/8/8/8/8/4KQ2 w - - 0 1")
	require.NoError(t, err)
	e.state = s
	assert.True(t, e.IsTerminal())
}
