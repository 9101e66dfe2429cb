// Package engine defines the Engine Adapter capability set (C1) and its
// sole shipped implementation, builtin, which wraps internal/chesscore. The
// interface is kept narrow so a second variant (a CGo or library-backed
// adapter) could be added without touching any other package.
package engine

import (
	"errors"
	"fmt"

	"github.com/chessrl/chessrl/internal/chesscore"
)

// StepInfo carries the side-channel information a Step call produces beyond
// the resulting state.
type StepInfo struct {
	Illegal    bool
	Outcome    chesscore.Outcome
	IsCapture  bool
	GaveCheck  bool
}

// Adapter is the capability set every chess rules backend must implement.
// It is the single oracle of legality: Step MUST NOT mutate state when
// handed an action outside LegalActions.
type Adapter interface {
	// Reset returns a fresh opaque state handle at the initial position.
	Reset() State

	// LegalActions returns the action ids (encoded as from*64+to, see
	// internal/encode) the environment will accept from this state.
	LegalActions(s State) []int

	// Step applies an action id, returning the resulting state and info.
	// An illegal action id returns the original state unchanged.
	Step(s State, action int) (State, StepInfo)

	// Status reports the game-theoretic outcome of a state.
	Status(s State) chesscore.Outcome

	// ToFEN serializes a state.
	ToFEN(s State) string

	// FromFEN deserializes a state, or an error if malformed.
	FromFEN(fen string) (State, error)

	// ASCII renders a state for logs/debugging.
	ASCII(s State) string
}

// State is an opaque position handle owned by an Adapter. Callers must not
// assume anything about its internal representation.
type State struct {
	pos *chesscore.Position
}

// SideToMove exposes whose turn it is without peeking at the internal
// representation, needed by the encoder and environment reward shaping.
func (s State) SideToMove() chesscore.Color { return s.pos.SideToMove() }

// MaterialDiff exposes White-minus-Black material, used by early
// adjudication in the environment.
func (s State) MaterialDiff() int { return s.pos.MaterialDiff() }

// PliesSinceProgress exposes the fifty-move-rule counter, used by the
// environment's no-progress adjudication rule.
func (s State) PliesSinceProgress() int { return s.pos.PliesSinceProgress() }

// Position exposes the underlying chesscore position for the encoder, which
// needs full board detail to build the 839-float vector. Kept as a method
// rather than a public field so future adapter variants can return a
// different concrete representation behind the same accessor name.
func (s State) Position() *chesscore.Position { return s.pos }

// Builtin is the native chesscore-backed Adapter.
type Builtin struct{}

// NewBuiltin constructs the sole shipped Adapter variant.
func NewBuiltin() *Builtin { return &Builtin{} }

var _ Adapter = (*Builtin)(nil)

func (b *Builtin) Reset() State {
	return State{pos: chesscore.NewGame()}
}

func (b *Builtin) LegalActions(s State) []int {
	legal := s.pos.LegalMoves()
	seen := make(map[int]bool, len(legal))
	actions := make([]int, 0, len(legal))
	for _, m := range legal {
		a := int(m.From)*64 + int(m.To)
		if !seen[a] {
			seen[a] = true
			actions = append(actions, a)
		}
	}
	return actions
}

func (b *Builtin) Step(s State, action int) (State, StepInfo) {
	from := chesscore.Square(action / 64)
	to := chesscore.Square(action % 64)

	move, ok := b.resolveMove(s.pos, from, to)
	if !ok {
		return s, StepInfo{Illegal: true, Outcome: s.pos.Status()}
	}

	next := s.pos.Clone()
	if err := next.Apply(move); err != nil {
		// resolveMove only returns moves drawn from LegalMoves, so this
		// should be unreachable; treat it as illegal defensively rather
		// than mutating state.
		return s, StepInfo{Illegal: true, Outcome: s.pos.Status()}
	}

	info := StepInfo{
		IsCapture: move.IsCapture,
		Outcome:   next.Status(),
		GaveCheck: next.InCheck(next.SideToMove()),
	}
	return State{pos: next}, info
}

// resolveMove finds the legal move matching (from, to), applying the
// deterministic Q>R>B>N promotion tie-break when more than one promotion
// piece would otherwise match the same square pair.
func (b *Builtin) resolveMove(pos *chesscore.Position, from, to chesscore.Square) (chesscore.Move, bool) {
	var best chesscore.Move
	found := false
	bestRank := -1
	promoPriority := map[chesscore.PieceType]int{
		chesscore.Queen: 4, chesscore.Rook: 3, chesscore.Bishop: 2, chesscore.Knight: 1,
	}
	for _, m := range pos.LegalMoves() {
		if m.From != from || m.To != to {
			continue
		}
		rank := promoPriority[m.Promotion]
		if !found || rank > bestRank {
			best, bestRank, found = m, rank, true
		}
	}
	return best, found
}

func (b *Builtin) Status(s State) chesscore.Outcome {
	return s.pos.Status()
}

func (b *Builtin) ToFEN(s State) string {
	return s.pos.ToFEN()
}

func (b *Builtin) FromFEN(fen string) (State, error) {
	pos, err := chesscore.FromFEN(fen)
	if err != nil {
		return State{}, fmt.Errorf("engine: %w", err)
	}
	return State{pos: pos}, nil
}

func (b *Builtin) ASCII(s State) string {
	return s.pos.ASCII()
}

// ErrUnknownBackend is returned by the backend factory for an unrecognised
// adapter name.
var ErrUnknownBackend = errors.New("engine: unknown adapter backend")

// New constructs an Adapter by name. "builtin" is the only name currently
// wired; a "chesslib" name is reserved for a future library-backed variant
// and returns ErrUnknownBackend today.
func New(name string) (Adapter, error) {
	switch name {
	case "", "builtin":
		return NewBuiltin(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}
