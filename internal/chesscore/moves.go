package chesscore

var knightDeltas = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
var kingDeltas = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
var bishopDirs = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
var rookDirs = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// isAttacked reports whether sq is attacked by any piece of color by.
func (p *Position) isAttacked(sq Square, by Color) bool {
	f, r := sq.File(), sq.Rank()

	// Pawn attacks: a pawn of color `by` attacks diagonally forward from
	// its own perspective, so we look backward from sq.
	pawnRankDelta := -1
	if by == White {
		pawnRankDelta = 1
	}
	for _, df := range []int{-1, 1} {
		src := squareFromFileRank(f+df, r-pawnRankDelta)
		if src != NoSquare {
			pc := p.board[src]
			if pc.Type == Pawn && pc.Color == by {
				return true
			}
		}
	}

	for _, d := range knightDeltas {
		src := squareFromFileRank(f+d[0], r+d[1])
		if src != NoSquare {
			pc := p.board[src]
			if pc.Type == Knight && pc.Color == by {
				return true
			}
		}
	}

	for _, d := range kingDeltas {
		src := squareFromFileRank(f+d[0], r+d[1])
		if src != NoSquare {
			pc := p.board[src]
			if pc.Type == King && pc.Color == by {
				return true
			}
		}
	}

	for _, d := range bishopDirs {
		if p.rayAttacks(f, r, d[0], d[1], by, Bishop, Queen) {
			return true
		}
	}
	for _, d := range rookDirs {
		if p.rayAttacks(f, r, d[0], d[1], by, Rook, Queen) {
			return true
		}
	}
	return false
}

func (p *Position) rayAttacks(f, r, df, dr int, by Color, slider1, slider2 PieceType) bool {
	for i := 1; i < 8; i++ {
		sq := squareFromFileRank(f+df*i, r+dr*i)
		if sq == NoSquare {
			return false
		}
		pc := p.board[sq]
		if pc.Empty() {
			continue
		}
		if pc.Color == by && (pc.Type == slider1 || pc.Type == slider2) {
			return true
		}
		return false
	}
	return false
}

// PseudoLegalMoves returns all moves for the side to move ignoring whether
// they leave their own king in check.
func (p *Position) PseudoLegalMoves() []Move {
	moves := make([]Move, 0, 48)
	side := p.sideToMove
	for sq := Square(0); sq < 64; sq++ {
		pc := p.board[sq]
		if pc.Empty() || pc.Color != side {
			continue
		}
		switch pc.Type {
		case Pawn:
			p.genPawnMoves(sq, side, &moves)
		case Knight:
			p.genLeaperMoves(sq, side, knightDeltas[:], &moves)
		case King:
			p.genLeaperMoves(sq, side, kingDeltas[:], &moves)
			p.genCastleMoves(sq, side, &moves)
		case Bishop:
			p.genSliderMoves(sq, side, bishopDirs[:], &moves)
		case Rook:
			p.genSliderMoves(sq, side, rookDirs[:], &moves)
		case Queen:
			p.genSliderMoves(sq, side, bishopDirs[:], &moves)
			p.genSliderMoves(sq, side, rookDirs[:], &moves)
		}
	}
	return moves
}

// LegalMoves filters PseudoLegalMoves to those that do not leave the mover's
// own king in check.
func (p *Position) LegalMoves() []Move {
	pseudo := p.PseudoLegalMoves()
	legal := make([]Move, 0, len(pseudo))
	side := p.sideToMove
	for _, m := range pseudo {
		cp := p.Clone()
		cp.forceApply(m)
		if !cp.InCheck(side) {
			legal = append(legal, m)
		}
	}
	return legal
}

func (p *Position) genLeaperMoves(sq Square, side Color, deltas [][2]int, out *[]Move) {
	f, r := sq.File(), sq.Rank()
	for _, d := range deltas {
		to := squareFromFileRank(f+d[0], r+d[1])
		if to == NoSquare {
			continue
		}
		target := p.board[to]
		if target.Empty() {
			*out = append(*out, Move{From: sq, To: to})
		} else if target.Color != side {
			*out = append(*out, Move{From: sq, To: to, IsCapture: true})
		}
	}
}

func (p *Position) genSliderMoves(sq Square, side Color, dirs [][2]int, out *[]Move) {
	f, r := sq.File(), sq.Rank()
	for _, d := range dirs {
		for i := 1; i < 8; i++ {
			to := squareFromFileRank(f+d[0]*i, r+d[1]*i)
			if to == NoSquare {
				break
			}
			target := p.board[to]
			if target.Empty() {
				*out = append(*out, Move{From: sq, To: to})
				continue
			}
			if target.Color != side {
				*out = append(*out, Move{From: sq, To: to, IsCapture: true})
			}
			break
		}
	}
}

func (p *Position) genPawnMoves(sq Square, side Color, out *[]Move) {
	f, r := sq.File(), sq.Rank()
	forward := 1
	startRank, promoRank := 1, 7
	if side == Black {
		forward = -1
		startRank, promoRank = 6, 0
	}

	addPromoAware := func(to Square, capture bool) {
		if to.Rank() == promoRank {
			for _, promo := range []PieceType{Queen, Rook, Bishop, Knight} {
				*out = append(*out, Move{From: sq, To: to, Promotion: promo, IsCapture: capture})
			}
		} else {
			*out = append(*out, Move{From: sq, To: to, IsCapture: capture})
		}
	}

	oneStep := squareFromFileRank(f, r+forward)
	if oneStep != NoSquare && p.board[oneStep].Empty() {
		addPromoAware(oneStep, false)
		if r == startRank {
			twoStep := squareFromFileRank(f, r+2*forward)
			if twoStep != NoSquare && p.board[twoStep].Empty() {
				*out = append(*out, Move{From: sq, To: twoStep})
			}
		}
	}

	for _, df := range []int{-1, 1} {
		to := squareFromFileRank(f+df, r+forward)
		if to == NoSquare {
			continue
		}
		target := p.board[to]
		if !target.Empty() && target.Color != side {
			addPromoAware(to, true)
		} else if to == p.enPassant {
			*out = append(*out, Move{From: sq, To: to, IsCapture: true, IsEnPas: true})
		}
	}
}

func (p *Position) genCastleMoves(sq Square, side Color, out *[]Move) {
	rank := 0
	if side == Black {
		rank = 7
	}
	home := squareFromFileRank(4, rank)
	if sq != home {
		return
	}
	opp := side.Opponent()

	kingsideFlag, queensideFlag := WhiteKingside, WhiteQueenside
	if side == Black {
		kingsideFlag, queensideFlag = BlackKingside, BlackQueenside
	}

	if p.castle.has(kingsideFlag) {
		f1 := squareFromFileRank(5, rank)
		f2 := squareFromFileRank(6, rank)
		rookSq := squareFromFileRank(7, rank)
		if p.board[f1].Empty() && p.board[f2].Empty() && p.board[rookSq] == (Piece{Type: Rook, Color: side}) {
			if !p.isAttacked(home, opp) && !p.isAttacked(f1, opp) && !p.isAttacked(f2, opp) {
				*out = append(*out, Move{From: sq, To: f2, IsCastle: true})
			}
		}
	}
	if p.castle.has(queensideFlag) {
		d1 := squareFromFileRank(3, rank)
		d2 := squareFromFileRank(2, rank)
		d3 := squareFromFileRank(1, rank)
		rookSq := squareFromFileRank(0, rank)
		if p.board[d1].Empty() && p.board[d2].Empty() && p.board[d3].Empty() && p.board[rookSq] == (Piece{Type: Rook, Color: side}) {
			if !p.isAttacked(home, opp) && !p.isAttacked(d1, opp) && !p.isAttacked(d2, opp) {
				*out = append(*out, Move{From: sq, To: d2, IsCastle: true})
			}
		}
	}
}

// forceApply applies a pseudo-legal move without any legality checking; used
// internally to test whether a move leaves the mover in check, and by Apply
// once a move has been validated.
func (p *Position) forceApply(m Move) {
	mover := p.board[m.From]
	captured := p.board[m.To]
	side := mover.Color

	// Fifty-move clock.
	if mover.Type == Pawn || !captured.Empty() || m.IsEnPas {
		p.halfmove = 0
	} else {
		p.halfmove++
	}

	if m.IsEnPas {
		capturedSq := squareFromFileRank(m.To.File(), m.From.Rank())
		p.board[capturedSq] = Piece{}
	}

	p.board[m.From] = Piece{}
	if m.Promotion != None {
		p.board[m.To] = Piece{Type: m.Promotion, Color: side}
	} else {
		p.board[m.To] = mover
	}

	if m.IsCastle {
		rank := m.From.Rank()
		if m.To.File() == 6 { // kingside
			rookFrom := squareFromFileRank(7, rank)
			rookTo := squareFromFileRank(5, rank)
			p.board[rookTo] = p.board[rookFrom]
			p.board[rookFrom] = Piece{}
		} else { // queenside
			rookFrom := squareFromFileRank(0, rank)
			rookTo := squareFromFileRank(3, rank)
			p.board[rookTo] = p.board[rookFrom]
			p.board[rookFrom] = Piece{}
		}
	}

	// Update castling rights.
	switch {
	case mover.Type == King && side == White:
		p.castle &^= WhiteKingside | WhiteQueenside
	case mover.Type == King && side == Black:
		p.castle &^= BlackKingside | BlackQueenside
	}
	clearRookRights := func(sq Square) {
		switch sq {
		case squareFromFileRank(0, 0):
			p.castle &^= WhiteQueenside
		case squareFromFileRank(7, 0):
			p.castle &^= WhiteKingside
		case squareFromFileRank(0, 7):
			p.castle &^= BlackQueenside
		case squareFromFileRank(7, 7):
			p.castle &^= BlackKingside
		}
	}
	clearRookRights(m.From)
	clearRookRights(m.To)

	// En-passant target for the next move.
	p.enPassant = NoSquare
	if mover.Type == Pawn {
		delta := m.To.Rank() - m.From.Rank()
		if delta == 2 || delta == -2 {
			p.enPassant = squareFromFileRank(m.From.File(), (m.From.Rank()+m.To.Rank())/2)
		}
	}

	if side == Black {
		p.fullmove++
	}
	p.sideToMove = side.Opponent()
}

// Apply applies a legal move, mutating the position, and returns an error
// without mutating anything if the move is not currently legal. This is the
// single entry point the engine adapter uses; it never mutates state on an
// illegal move.
func (p *Position) Apply(m Move) error {
	for _, legal := range p.LegalMoves() {
		if legal.From == m.From && legal.To == m.To && legal.Promotion == m.Promotion {
			p.forceApply(legal)
			p.history = append(p.history, p.hash())
			return nil
		}
	}
	return &IllegalMoveError{Move: m}
}

// IllegalMoveError reports an attempt to apply a move that is not in the
// current legal set. The environment never mutates state when this occurs.
type IllegalMoveError struct {
	Move Move
}

func (e *IllegalMoveError) Error() string {
	return "chesscore: illegal move " + e.Move.From.String() + e.Move.To.String()
}
