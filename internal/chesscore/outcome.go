package chesscore

// Status returns the outcome of the position: Ongoing, a decisive result, or
// one of the drawn outcomes (stalemate, fifty-move, threefold, insufficient
// material). It is the only place checkmate/stalemate are distinguished.
func (p *Position) Status() Outcome {
	legal := p.LegalMoves()
	if len(legal) == 0 {
		if p.InCheck(p.sideToMove) {
			if p.sideToMove == White {
				return BlackWins
			}
			return WhiteWins
		}
		return DrawStalemate
	}
	if p.halfmove >= 100 {
		return DrawFiftyMove
	}
	if p.repetitionCount() >= 3 {
		return DrawThreefold
	}
	if p.hasInsufficientMaterial() {
		return DrawInsufficientMaterial
	}
	return Ongoing
}

// hasInsufficientMaterial covers the common draw-by-material cases: bare
// kings, king+minor vs king, and same-colored-bishop endings. It does not
// attempt to classify every theoretical fortress.
func (p *Position) hasInsufficientMaterial() bool {
	var minorCount, bishopCount int
	var hasMajorOrPawn bool
	var bishopSquareParitySeen = map[int]bool{}

	for sq := Square(0); sq < 64; sq++ {
		pc := p.board[sq]
		switch pc.Type {
		case None, King:
			continue
		case Pawn, Rook, Queen:
			hasMajorOrPawn = true
		case Knight:
			minorCount++
		case Bishop:
			minorCount++
			bishopCount++
			bishopSquareParitySeen[(sq.File()+sq.Rank())%2] = true
		}
	}

	if hasMajorOrPawn {
		return false
	}
	if minorCount == 0 {
		return true // bare kings
	}
	if minorCount == 1 {
		return true // king + single minor vs king
	}
	if minorCount == 2 && bishopCount == 2 && len(bishopSquareParitySeen) == 1 {
		// Only same-colored bishops present (covers K+B+B vs K same color).
		return true
	}
	return false
}

// MaterialDiff returns White material minus Black material in pawn units,
// used by the environment's early-adjudication resign rule.
func (p *Position) MaterialDiff() int {
	values := map[PieceType]int{Pawn: 1, Knight: 3, Bishop: 3, Rook: 5, Queen: 9}
	diff := 0
	for sq := Square(0); sq < 64; sq++ {
		pc := p.board[sq]
		v, ok := values[pc.Type]
		if !ok {
			continue
		}
		if pc.Color == White {
			diff += v
		} else {
			diff -= v
		}
	}
	return diff
}

// PliesSinceProgress returns the halfmove (fifty-move) clock, which this
// package already tracks as "plies since the last capture or pawn move" —
// the same definition the environment's no-progress adjudication rule uses.
func (p *Position) PliesSinceProgress() int { return p.halfmove }
