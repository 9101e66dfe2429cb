package chesscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGameLegalMoveCount(t *testing.T) {
	t.Parallel()
	p := NewGame()
	moves := p.LegalMoves()
	assert.Len(t, moves, 20, "starting position has 20 legal moves")
	assert.Equal(t, Ongoing, p.Status())
}

func TestFENRoundTrip(t *testing.T) {
	t.Parallel()
	start := NewGame()
	fen := start.ToFEN()
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", fen)

	reparsed, err := FromFEN(fen)
	require.NoError(t, err)
	assert.Equal(t, fen, reparsed.ToFEN())
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	t.Parallel()
	p := NewGame()
	before := p.ToFEN()

	err := p.Apply(Move{From: mustSquare(t, "e2"), To: mustSquare(t, "e5")})
	require.Error(t, err)
	var illegal *IllegalMoveError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, before, p.ToFEN(), "state must be unchanged after a rejected move")
}

func TestApplyLegalPawnPush(t *testing.T) {
	t.Parallel()
	p := NewGame()
	err := p.Apply(Move{From: mustSquare(t, "e2"), To: mustSquare(t, "e4")})
	require.NoError(t, err)
	assert.Equal(t, Black, p.SideToMove())
	assert.Equal(t, mustSquare(t, "e3"), p.EnPassant())
}

func TestEnPassantCapture(t *testing.T) {
	t.Parallel()
	p := NewGame()
	require.NoError(t, p.Apply(Move{From: mustSquare(t, "e2"), To: mustSquare(t, "e4")}))
	require.NoError(t, p.Apply(Move{From: mustSquare(t, "a7"), To: mustSquare(t, "a6")}))
	require.NoError(t, p.Apply(Move{From: mustSquare(t, "e4"), To: mustSquare(t, "e5")}))
	require.NoError(t, p.Apply(Move{From: mustSquare(t, "d7"), To: mustSquare(t, "d5")}))

	require.NoError(t, p.Apply(Move{From: mustSquare(t, "e5"), To: mustSquare(t, "d6"), IsEnPas: true, IsCapture: true}))
	assert.True(t, p.PieceAt(mustSquare(t, "d5")).Empty(), "captured pawn must be removed")
	assert.Equal(t, Pawn, p.PieceAt(mustSquare(t, "d6")).Type)
}

func TestScholarsMateCheckmate(t *testing.T) {
	t.Parallel()
	p := NewGame()
	moves := []struct{ from, to string }{
		{"e2", "e4"}, {"e7", "e5"},
		{"f1", "c4"}, {"b8", "c6"},
		{"d1", "h5"}, {"g8", "f6"},
		{"h5", "f7"},
	}
	for _, m := range moves {
		require.NoError(t, p.Apply(Move{From: mustSquare(t, m.from), To: mustSquare(t, m.to), IsCapture: m.to == "f7"}))
	}
	assert.Equal(t, WhiteWins, p.Status())
	assert.Empty(t, p.LegalMoves())
}

func TestInsufficientMaterialBareKings(t *testing.T) {
	t.Parallel()
	p, err := FromFEN("8/8/4k3/8/8/4K3/8/8 w - - 0 1")
	require.NoError(t, err)
	assert.Equal(t, DrawInsufficientMaterial, p.Status())
}

func TestFiftyMoveRule(t *testing.T) {
	t.Parallel()
	p, err := FromFEN("4k3/8/8/8/8/8/8/4K3 w - - 99 50")
	require.NoError(t, err)
	require.NoError(t, p.Apply(Move{From: mustSquare(t, "e1"), To: mustSquare(t, "d1")}))
	assert.Equal(t, DrawFiftyMove, p.Status())
}

func mustSquare(t *testing.T, s string) Square {
	t.Helper()
	sq, err := ParseSquare(s)
	require.NoError(t, err)
	return sq
}
