// Package encode converts chess states to fixed-length float vectors and
// converts between move (from, to) pairs and the flat [0,4095] action space.
// Encoding is a pure function of state: two positions that encode to the
// same vector are, by construction, treated identically by every downstream
// consumer (agent, replay buffer, network).
package encode

import "github.com/chessrl/chessrl/internal/chesscore"

// StateDim is the length of the encoded state vector: 12 piece planes * 64
// squares (768) + side to move (1) + castling rights (4) + en-passant
// one-hot (64) + halfmove clock scaled (1) + fullmove number scaled (1).
const StateDim = 12*64 + 1 + 4 + 64 + 1 + 1

// ActionDim is the size of the flat action space: 64 from-squares * 64
// to-squares. Promotions are not represented in the action space; they are
// resolved deterministically by the environment (queen default, Q>R>B>N
// tie-break) when a (from,to) pair is ambiguous.
const ActionDim = 64 * 64

// planeIndex returns the piece-plane offset for a (type, color) pair: white
// pieces occupy planes 0-5 (pawn..king), black pieces planes 6-11.
func planeIndex(pt chesscore.PieceType, color chesscore.Color) int {
	base := int(pt) - 1 // Pawn==1 -> 0 ... King==6 -> 5
	if color == chesscore.Black {
		base += 6
	}
	return base
}

// State encodes a chess position into a length-StateDim float32 vector.
func State(s *chesscore.Position) []float32 {
	x := make([]float32, StateDim)

	for sq := chesscore.Square(0); sq < 64; sq++ {
		pc := s.PieceAt(sq)
		if pc.Empty() {
			continue
		}
		plane := planeIndex(pc.Type, pc.Color)
		x[plane*64+int(sq)] = 1
	}

	offset := 12 * 64
	if s.SideToMove() == chesscore.White {
		x[offset] = 1
	} else {
		x[offset] = 0
	}
	offset++

	rights := s.CastleRights()
	castleFlags := []chesscore.CastleRights{
		chesscore.WhiteKingside, chesscore.WhiteQueenside,
		chesscore.BlackKingside, chesscore.BlackQueenside,
	}
	for i, flag := range castleFlags {
		if rights&flag != 0 {
			x[offset+i] = 1
		}
	}
	offset += 4

	ep := s.EnPassant()
	if ep != chesscore.NoSquare {
		x[offset+int(ep)] = 1
	}
	offset += 64

	x[offset] = float32(s.HalfmoveClock()) / 100.0
	offset++
	x[offset] = float32(s.FullmoveNumber()) / 200.0

	return x
}

// EncodeMove maps a (from, to) square pair onto its flat action id.
func EncodeMove(from, to chesscore.Square) int {
	return int(from)*64 + int(to)
}

// DecodeAction maps a flat action id back onto its (from, to) square pair.
// For all i in [0,4095], EncodeMove(DecodeAction(i)) == i.
func DecodeAction(action int) (from, to chesscore.Square) {
	return chesscore.Square(action / 64), chesscore.Square(action % 64)
}
