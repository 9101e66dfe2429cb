package opponent

import (
	"math/rand/v2"
	"testing"

	"github.com/chessrl/chessrl/internal/chesscore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicTakesFreeCapture(t *testing.T) {
	// White rook can capture a hanging black knight on d5; nothing else
	// on the board offers material.
	p, err := chesscore.FromFEN("7k/8/8/3n4/8/8/3R4/7K w - - 0 1")
	require.NoError(t, err)

	h := NewHeuristic()
	rng := rand.New(rand.NewPCG(1, 2))
	mv, err := h.SelectMove(p, rng)
	require.NoError(t, err)
	assert.True(t, mv.IsCapture)
	assert.Equal(t, chesscore.Square(35), mv.To) // d5
}

func TestHeuristicErrorsWithNoLegalMoves(t *testing.T) {
	p, err := chesscore.FromFEN("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	require.NoError(t, err)
	require.Equal(t, chesscore.DrawStalemate, p.Status())

	h := NewHeuristic()
	_, err = h.SelectMove(p, rand.New(rand.NewPCG(1, 1)))
	assert.Error(t, err)
}

func TestMinimaxFindsMateInOne(t *testing.T) {
	// White to move, back-rank mate in one: Ra8#.
	p, err := chesscore.FromFEN("6k1/5ppp/8/8/8/8/6PP/R5K1 w - - 0 1")
	require.NoError(t, err)

	m := NewMinimax(2)
	mv, err := m.SelectMove(p, 0, 1, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	child := p.Clone()
	require.NoError(t, child.Apply(mv))
	assert.Equal(t, chesscore.WhiteWins, child.Status())
}

func TestMinimaxDeterministicAtZeroTau(t *testing.T) {
	p := chesscore.NewGame()
	m := NewMinimax(1)
	mv1, err := m.SelectMove(p, 0, 1, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	mv2, err := m.SelectMove(p, 0, 1, rand.New(rand.NewPCG(99, 7)))
	require.NoError(t, err)
	assert.Equal(t, mv1, mv2)
}

func TestSelectorFactory(t *testing.T) {
	_, err := New("heuristic", 0, 0, 0)
	assert.NoError(t, err)
	_, err = New("minimax", 2, 0, 1)
	assert.NoError(t, err)
	_, err = New("bogus", 0, 0, 0)
	assert.Error(t, err)
}
