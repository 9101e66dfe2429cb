package encode

import (
	"testing"

	"github.com/chessrl/chessrl/internal/chesscore"
	"github.com/stretchr/testify/assert"
)

func TestStateDimMatchesSpec(t *testing.T) {
	assert.Equal(t, 839, StateDim)
	assert.Equal(t, 4096, ActionDim)
}

func TestStateEncodingIsPureAndFinite(t *testing.T) {
	t.Parallel()
	pos := chesscore.NewGame()
	a := State(pos)
	b := State(pos)
	assert.Equal(t, a, b, "encoding must be a pure function of state")

	var ones int
	for _, v := range a {
		if v != 0 {
			assert.True(t, v == 1 || v > 0, "values must be finite/sane")
			ones++
		}
	}
	// 32 pieces one-hot + side-to-move(1) + 4 castle rights + fullmove(1)
	// = 38 (no en passant target and a zero halfmove clock at game start).
	assert.Equal(t, 38, ones)
}

func TestMoveActionRoundTrip(t *testing.T) {
	t.Parallel()
	for action := 0; action < ActionDim; action += 37 {
		from, to := DecodeAction(action)
		assert.Equal(t, action, EncodeMove(from, to))
	}
}
