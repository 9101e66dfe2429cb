package chesscore

import (
	"fmt"
	"strconv"
	"strings"
)

var pieceLetters = map[PieceType]byte{Pawn: 'p', Knight: 'n', Bishop: 'b', Rook: 'r', Queen: 'q', King: 'k'}
var letterPieces = map[byte]PieceType{'p': Pawn, 'n': Knight, 'b': Bishop, 'r': Rook, 'q': Queen, 'k': King}

// ToFEN serializes the position to Forsyth-Edwards Notation.
func (p *Position) ToFEN() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := p.board[squareFromFileRank(file, rank)]
			if pc.Empty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			letter := pieceLetters[pc.Type]
			if pc.Color == White {
				letter -= 'a' - 'A'
			}
			sb.WriteByte(letter)
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}

	sb.WriteByte(' ')
	if p.sideToMove == White {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}

	sb.WriteByte(' ')
	rights := ""
	if p.castle.has(WhiteKingside) {
		rights += "K"
	}
	if p.castle.has(WhiteQueenside) {
		rights += "Q"
	}
	if p.castle.has(BlackKingside) {
		rights += "k"
	}
	if p.castle.has(BlackQueenside) {
		rights += "q"
	}
	if rights == "" {
		rights = "-"
	}
	sb.WriteString(rights)

	sb.WriteByte(' ')
	sb.WriteString(p.enPassant.String())

	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.halfmove))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.fullmove))

	return sb.String()
}

// FromFEN parses Forsyth-Edwards Notation into a fresh Position. History for
// threefold-repetition purposes starts empty beyond the parsed position,
// since FEN carries no move history.
func FromFEN(fen string) (*Position, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return nil, fmt.Errorf("chesscore: malformed FEN %q", fen)
	}

	p := &Position{enPassant: NoSquare, fullmove: 1}

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("chesscore: FEN must have 8 ranks, got %d", len(ranks))
	}
	for i, rankStr := range ranks {
		rank := 7 - i
		file := 0
		for _, c := range rankStr {
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			lower := byte(c)
			if lower >= 'A' && lower <= 'Z' {
				lower += 'a' - 'A'
			}
			pt, ok := letterPieces[lower]
			if !ok {
				return nil, fmt.Errorf("chesscore: unknown FEN piece %q", string(c))
			}
			color := Black
			if c >= 'A' && c <= 'Z' {
				color = White
			}
			sq := squareFromFileRank(file, rank)
			if sq == NoSquare {
				return nil, fmt.Errorf("chesscore: FEN rank overflow")
			}
			p.board[sq] = Piece{Type: pt, Color: color}
			file++
		}
	}

	switch fields[1] {
	case "w":
		p.sideToMove = White
	case "b":
		p.sideToMove = Black
	default:
		return nil, fmt.Errorf("chesscore: bad side-to-move field %q", fields[1])
	}

	for _, c := range fields[2] {
		switch c {
		case 'K':
			p.castle |= WhiteKingside
		case 'Q':
			p.castle |= WhiteQueenside
		case 'k':
			p.castle |= BlackKingside
		case 'q':
			p.castle |= BlackQueenside
		case '-':
		default:
			return nil, fmt.Errorf("chesscore: bad castling field %q", fields[2])
		}
	}

	ep, err := ParseSquare(fields[3])
	if err != nil {
		return nil, err
	}
	p.enPassant = ep

	if len(fields) > 4 {
		hm, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("chesscore: bad halfmove clock %q", fields[4])
		}
		p.halfmove = hm
	}
	if len(fields) > 5 {
		fm, err := strconv.Atoi(fields[5])
		if err != nil {
			return nil, fmt.Errorf("chesscore: bad fullmove number %q", fields[5])
		}
		p.fullmove = fm
	}

	p.history = append(p.history, p.hash())
	return p, nil
}

// ASCII renders the board as an 8x8 grid, White pieces uppercase, for
// debugging and log messages.
func (p *Position) ASCII() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			pc := p.board[squareFromFileRank(file, rank)]
			if pc.Empty() {
				sb.WriteByte('.')
				continue
			}
			letter := pieceLetters[pc.Type]
			if pc.Color == White {
				letter -= 'a' - 'A'
			}
			sb.WriteByte(letter)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
