// Package opponent implements the non-learned move selectors used as the
// Black-side self-play training opponent (C7) and as the baseline teacher
// in the evaluator (C10): a material-greedy heuristic and an alpha-beta
// minimax search with a bounded transposition cache. Neither type touches
// the neural network backend; both operate directly on chesscore positions
// so they can be reused for any Adapter implementation that exposes one.
package opponent

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/chessrl/chessrl/internal/chesscore"
	lru "github.com/opencoff/golang-lru"
)

var pieceValue = map[chesscore.PieceType]int{
	chesscore.Pawn:   100,
	chesscore.Knight: 320,
	chesscore.Bishop: 330,
	chesscore.Rook:   500,
	chesscore.Queen:  900,
}

// materialScore returns the position's static material balance in
// centipawns from White's perspective.
func materialScore(p *chesscore.Position) int {
	score := 0
	for sq := chesscore.Square(0); sq < 64; sq++ {
		pc := p.PieceAt(sq)
		v, ok := pieceValue[pc.Type]
		if !ok {
			continue
		}
		if pc.Color == chesscore.White {
			score += v
		} else {
			score -= v
		}
	}
	return score
}

// perspective turns a White-relative score into a side-to-move-relative
// one, the convention the negamax search below uses throughout.
func perspective(score int, side chesscore.Color) int {
	if side == chesscore.Black {
		return -score
	}
	return score
}

// Heuristic selects a move by one-ply material greed: prefer the
// highest-value capture available, falling back to a uniform-random legal
// move when no capture improves material. It never looks more than one ply
// deep, matching §4.7's "heuristic" opponent tier.
type Heuristic struct{}

// NewHeuristic constructs a Heuristic selector.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// SelectMove returns the move Heuristic would play in p, or an error if no
// legal move exists (the caller should have already checked Status).
func (h *Heuristic) SelectMove(p *chesscore.Position, rng *rand.Rand) (chesscore.Move, error) {
	legal := p.LegalMoves()
	if len(legal) == 0 {
		return chesscore.Move{}, fmt.Errorf("opponent: no legal moves")
	}

	bestGain := -1
	var captures []chesscore.Move
	for _, m := range legal {
		if !m.IsCapture {
			continue
		}
		captured := p.PieceAt(m.To)
		gain := pieceValue[captured.Type]
		if m.IsEnPas {
			gain = pieceValue[chesscore.Pawn]
		}
		if gain > bestGain {
			bestGain = gain
			captures = []chesscore.Move{m}
		} else if gain == bestGain {
			captures = append(captures, m)
		}
	}
	if len(captures) > 0 {
		return captures[rng.IntN(len(captures))], nil
	}
	return legal[rng.IntN(len(legal))], nil
}

const minimaxCacheSize = 1 << 16

// scoredMove pairs a move with its negamax score, side-to-move relative.
type scoredMove struct {
	move  chesscore.Move
	score int
}

// Minimax is an alpha-beta negamax search over chesscore positions, used
// both as the fixed-depth Black-side training opponent (§4.7) and as the
// baseline evaluator's teacher (§4.10). Evaluated positions are memoized in
// a bounded LRU keyed by FEN+depth so repeated sub-trees across a search
// (and, for the evaluator, across games against the same opening) are not
// re-scored from scratch.
type Minimax struct {
	depth int
	cache *lru.Cache
}

// NewMinimax constructs a Minimax searcher for the given fixed ply depth.
// depth <= 0 is treated as 1.
func NewMinimax(depth int) *Minimax {
	if depth <= 0 {
		depth = 1
	}
	cache, err := lru.New(minimaxCacheSize)
	if err != nil {
		// Only fails on a non-positive size, which minimaxCacheSize never is.
		panic(fmt.Sprintf("opponent: lru.New: %v", err))
	}
	return &Minimax{depth: depth, cache: cache}
}

// SelectMove runs alpha-beta to m.depth plies and returns the best move by
// deterministic move ordering (ties broken by generation order, which is
// itself deterministic given chesscore's move generation). When tau > 0,
// instead of always taking the single best move, SelectMove samples among
// the top-K root moves with a softmax over score/tau — the §4.7
// "optional tau-sampling over top-K" variant used only for the self-play
// training opponent, never for the evaluator's teacher.
func (m *Minimax) SelectMove(p *chesscore.Position, tau float64, topK int, rng *rand.Rand) (chesscore.Move, error) {
	legal := p.LegalMoves()
	if len(legal) == 0 {
		return chesscore.Move{}, fmt.Errorf("opponent: no legal moves")
	}

	scored := make([]scoredMove, 0, len(legal))
	alpha, beta := -mateScore, mateScore
	for _, mv := range legal {
		child := p.Clone()
		if err := child.Apply(mv); err != nil {
			return chesscore.Move{}, fmt.Errorf("opponent: applying generated move: %w", err)
		}
		score := -m.negamax(child, m.depth-1, -beta, -alpha)
		scored = append(scored, scoredMove{move: mv, score: score})
		if score > alpha {
			alpha = score
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	if tau <= 0 || topK <= 1 {
		return scored[0].move, nil
	}
	if topK > len(scored) {
		topK = len(scored)
	}
	return sampleSoftmax(scored[:topK], tau, rng), nil
}

func sampleSoftmax(candidates []scoredMove, tau float64, rng *rand.Rand) chesscore.Move {
	weights := make([]float64, len(candidates))
	var total float64
	maxScore := candidates[0].score
	for i, c := range candidates {
		w := math.Exp(float64(c.score-maxScore) / tau)
		weights[i] = w
		total += w
	}
	r := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if r <= cum {
			return candidates[i].move
		}
	}
	return candidates[len(candidates)-1].move
}

const mateScore = 1 << 20

// negamax returns the score of position p from its side-to-move's
// perspective, searching depth plies with alpha-beta pruning and memoizing
// leaf/internal evaluations in m.cache.
func (m *Minimax) negamax(p *chesscore.Position, depth, alpha, beta int) int {
	outcome := p.Status()
	if outcome != chesscore.Ongoing {
		return terminalScore(outcome, p.SideToMove(), depth)
	}
	if depth == 0 {
		return perspective(materialScore(p), p.SideToMove())
	}

	key := cacheKey(p, depth)
	if v, ok := m.cache.Get(key); ok {
		return v.(int)
	}

	legal := p.LegalMoves()
	orderMovesForSearch(legal, p)

	best := -mateScore
	for _, mv := range legal {
		child := p.Clone()
		if err := child.Apply(mv); err != nil {
			continue
		}
		score := -m.negamax(child, depth-1, -beta, -alpha)
		if score > best {
			best = score
		}
		if best > alpha {
			alpha = best
		}
		if alpha >= beta {
			break
		}
	}
	m.cache.Add(key, best)
	return best
}

// terminalScore converts a rules outcome into a side-to-move-relative
// score, preferring faster mates (more depth remaining means the mate was
// reached in fewer plies, so it is scored higher in magnitude).
func terminalScore(outcome chesscore.Outcome, side chesscore.Color, depthRemaining int) int {
	switch outcome {
	case chesscore.WhiteWins:
		if side == chesscore.White {
			return mateScore - (64 - depthRemaining)
		}
		return -(mateScore - (64 - depthRemaining))
	case chesscore.BlackWins:
		if side == chesscore.Black {
			return mateScore - (64 - depthRemaining)
		}
		return -(mateScore - (64 - depthRemaining))
	default:
		return 0 // all draw kinds score as a dead-even draw
	}
}

// orderMovesForSearch sorts legal moves captures-first (MVV-LVA-lite: by
// captured piece value descending) to tighten alpha-beta pruning. Order is
// otherwise the deterministic generation order from chesscore, so search
// results are reproducible given the same position and depth.
func orderMovesForSearch(moves []chesscore.Move, p *chesscore.Position) {
	sort.SliceStable(moves, func(i, j int) bool {
		vi, vj := 0, 0
		if moves[i].IsCapture {
			vi = pieceValue[p.PieceAt(moves[i].To).Type] + 1
		}
		if moves[j].IsCapture {
			vj = pieceValue[p.PieceAt(moves[j].To).Type] + 1
		}
		return vi > vj
	})
}

// cacheKey combines FEN and remaining depth so the same position searched
// to a different depth is never served a stale shallower score.
func cacheKey(p *chesscore.Position, depth int) string {
	return fmt.Sprintf("%s|%d", p.ToFEN(), depth)
}

// Selector is the common move-selection capability both the self-play
// training opponent (C7) and the evaluator's teacher (C10) consume, so
// callers don't need to know whether they hold a Heuristic or a Minimax.
type Selector interface {
	SelectMove(p *chesscore.Position, rng *rand.Rand) (chesscore.Move, error)
}

// heuristicSelector adapts Heuristic to Selector.
type heuristicSelector struct{ h *Heuristic }

func (s heuristicSelector) SelectMove(p *chesscore.Position, rng *rand.Rand) (chesscore.Move, error) {
	return s.h.SelectMove(p, rng)
}

// minimaxSelector adapts Minimax to Selector at a fixed sampling policy:
// Tau == 0 always plays the single best move (the evaluator's teacher
// never samples), Tau > 0 samples among the top TopK root moves (the
// self-play training opponent's exploration knob).
type minimaxSelector struct {
	m      *Minimax
	tau    float64
	topK   int
}

func (s minimaxSelector) SelectMove(p *chesscore.Position, rng *rand.Rand) (chesscore.Move, error) {
	return s.m.SelectMove(p, s.tau, s.topK, rng)
}

// New builds a Selector by name: "heuristic", or "minimax" at the given
// depth. tau/topK are only meaningful for minimax and are ignored
// otherwise; pass tau=0 for the evaluator's deterministic teacher.
func New(kind string, depth int, tau float64, topK int) (Selector, error) {
	switch kind {
	case "heuristic":
		return heuristicSelector{h: NewHeuristic()}, nil
	case "minimax":
		return minimaxSelector{m: NewMinimax(depth), tau: tau, topK: topK}, nil
	default:
		return nil, fmt.Errorf("opponent: unknown selector kind %q", kind)
	}
}
