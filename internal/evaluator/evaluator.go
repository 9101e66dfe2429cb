// Package evaluator implements the Baseline Evaluator (C10): deterministic
// head-to-head games against a fixed opponent, draw-breakdown tagging, and
// the perf_score used for best-model selection.
package evaluator

import (
	"math/rand/v2"

	"github.com/chessrl/chessrl/internal/agent"
	"github.com/chessrl/chessrl/internal/chesscore"
	"github.com/chessrl/chessrl/internal/engine"
	"github.com/chessrl/chessrl/internal/env"
	"github.com/chessrl/chessrl/internal/opponent"
)

// DrawBreakdown tags each drawn game with its cause.
type DrawBreakdown struct {
	StepLimit            int `json:"step_limit"`
	Stalemate            int `json:"stalemate"`
	Repetition           int `json:"repetition"`
	FiftyMove            int `json:"fifty_move"`
	InsufficientMaterial int `json:"insufficient_material"`
	Adjudication         int `json:"adjudication"`
	ThreefoldLocal       int `json:"threefold_local"`
	Other                int `json:"other"`
}

func (d *DrawBreakdown) add(tag string) {
	switch tag {
	case "step_limit":
		d.StepLimit++
	case "stalemate":
		d.Stalemate++
	case "repetition":
		d.Repetition++
	case "fifty_move":
		d.FiftyMove++
	case "insufficient_material":
		d.InsufficientMaterial++
	case "adjudication":
		d.Adjudication++
	case "threefold_local":
		d.ThreefoldLocal++
	default:
		d.Other++
	}
}

// Sum returns the total draws recorded, used to cross-check against Draws.
func (d DrawBreakdown) Sum() int {
	return d.StepLimit + d.Stalemate + d.Repetition + d.FiftyMove +
		d.InsufficientMaterial + d.Adjudication + d.ThreefoldLocal + d.Other
}

// Report is the result of evaluating one side (or one of two sides in a
// head-to-head comparison) over N games.
type Report struct {
	Wins      int
	Losses    int
	Draws     int
	WinRate   float64
	DrawRate  float64
	LossRate  float64
	AvgLength float64
	Breakdown DrawBreakdown
}

// PerfScore is the §4.10 standardized best-selection score: win_rate minus
// loss_rate, tie-broken (by the caller, via Less) on higher win_rate then
// lower avg_length.
func (r Report) PerfScore() float64 { return r.WinRate - r.LossRate }

// Less reports whether r is a worse checkpoint than other under the
// §4.10 tie-break order: lower perf_score loses; tied perf_score falls back
// to lower win_rate, then to a higher (worse) avg_length.
func (r Report) Less(other Report) bool {
	if r.PerfScore() != other.PerfScore() {
		return r.PerfScore() < other.PerfScore()
	}
	if r.WinRate != other.WinRate {
		return r.WinRate < other.WinRate
	}
	return r.AvgLength > other.AvgLength
}

// Config controls one evaluation run.
type Config struct {
	Games           int
	MaxStepsPerGame int
	Epsilon         float64 // eval_epsilon; 0.0 = fully greedy
	RewardConfig    env.RewardConfig
	Adjudication    env.AdjudicationConfig
	Seed            int64
}

// Evaluator plays deterministic games between an Agent and either a fixed
// opponent.Selector or a second Agent, and reports aggregate statistics.
type Evaluator struct {
	adapter engine.Adapter
}

// New constructs an Evaluator over the builtin Adapter.
func New() *Evaluator {
	return &Evaluator{adapter: engine.NewBuiltin()}
}

// EvaluateVsHeuristic runs §4.10's evaluate_vs_heuristic(agent, N).
func (e *Evaluator) EvaluateVsHeuristic(a *agent.Agent, cfg Config) (Report, error) {
	opp, err := opponent.New("heuristic", 0, 0, 0)
	if err != nil {
		return Report{}, err
	}
	return e.evaluateVsOpponent(a, opp, cfg)
}

// EvaluateVsMinimax runs §4.10's evaluate_vs_minimax(agent, N, depth).
func (e *Evaluator) EvaluateVsMinimax(a *agent.Agent, depth int, cfg Config) (Report, error) {
	opp, err := opponent.New("minimax", depth, 0, 1)
	if err != nil {
		return Report{}, err
	}
	return e.evaluateVsOpponent(a, opp, cfg)
}

// CompareResult is the result of compare_models(A, B, N): one Report per
// model, from its own perspective.
type CompareResult struct {
	A, B Report
}

// CompareModels runs §4.10's compare_models(A, B, N): N games with
// alternating colors, both sides exploring at cfg.Epsilon.
func (e *Evaluator) CompareModels(a, b *agent.Agent, cfg Config) (CompareResult, error) {
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)+1))

	var reportA, reportB Report
	for i := 0; i < cfg.Games; i++ {
		aIsWhite := i%2 == 0
		white, black := a, b
		if !aIsWhite {
			white, black = b, a
		}

		outcome, length, tag, err := e.playOne(white, black, cfg, rng)
		if err != nil {
			return CompareResult{}, err
		}

		// outcome is White-relative; attribute it to A/B by who played White.
		whiteOutcome := outcome
		blackOutcome := flipOutcome(outcome)
		if aIsWhite {
			applyResult(&reportA, whiteOutcome, length, tag)
			applyResult(&reportB, blackOutcome, length, tag)
		} else {
			applyResult(&reportA, blackOutcome, length, tag)
			applyResult(&reportB, whiteOutcome, length, tag)
		}
	}
	finalize(&reportA, cfg.Games)
	finalize(&reportB, cfg.Games)
	return CompareResult{A: reportA, B: reportB}, nil
}

func flipOutcome(o gameOutcome) gameOutcome {
	switch o {
	case outcomeWin:
		return outcomeLoss
	case outcomeLoss:
		return outcomeWin
	default:
		return outcomeDraw
	}
}

func (e *Evaluator) evaluateVsOpponent(a *agent.Agent, opp opponent.Selector, cfg Config) (Report, error) {
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)+1))
	var report Report

	for i := 0; i < cfg.Games; i++ {
		agentIsWhite := i%2 == 0
		var white, black agentOrOpponent
		if agentIsWhite {
			white, black = agentSide{a}, opponentSide{opp}
		} else {
			white, black = opponentSide{opp}, agentSide{a}
		}

		outcome, length, tag, err := e.playGeneric(white, black, cfg, rng)
		if err != nil {
			return Report{}, err
		}
		agentOutcome := outcome
		if !agentIsWhite {
			agentOutcome = flipOutcome(outcome)
		}
		applyResult(&report, agentOutcome, length, tag)
	}
	finalize(&report, cfg.Games)
	return report, nil
}

type gameOutcome int

const (
	outcomeDraw gameOutcome = iota
	outcomeWin
	outcomeLoss
)

func applyResult(r *Report, outcome gameOutcome, length int, tag string) {
	switch outcome {
	case outcomeWin:
		r.Wins++
	case outcomeLoss:
		r.Losses++
	default:
		r.Draws++
		r.Breakdown.add(tag)
	}
	r.AvgLength += float64(length)
}

func finalize(r *Report, games int) {
	if games == 0 {
		return
	}
	r.AvgLength /= float64(games)
	r.WinRate = float64(r.Wins) / float64(games)
	r.DrawRate = float64(r.Draws) / float64(games)
	r.LossRate = float64(r.Losses) / float64(games)
}

// agentOrOpponent abstracts over an Agent and an opponent.Selector so
// playGeneric can treat both sides uniformly.
type agentOrOpponent interface {
	selectAction(state []float32, pos *chesscore.Position, legal []int, rng *rand.Rand, epsilon float64) (int, error)
}

type agentSide struct{ a *agent.Agent }

func (s agentSide) selectAction(state []float32, _ *chesscore.Position, legal []int, rng *rand.Rand, epsilon float64) (int, error) {
	sel := s.a.SelectActionWithEpsilon(state, legal, rng, epsilon)
	return sel.Action, nil
}

type opponentSide struct{ opp opponent.Selector }

func (s opponentSide) selectAction(_ []float32, pos *chesscore.Position, _ []int, rng *rand.Rand, _ float64) (int, error) {
	mv, err := s.opp.SelectMove(pos, rng)
	if err != nil {
		return 0, err
	}
	return int(mv.From)*64 + int(mv.To), nil
}

// playGeneric plays one game to completion (or the step cap) between two
// agentOrOpponent sides and returns the outcome from White's perspective.
func (e *Evaluator) playGeneric(white, black agentOrOpponent, cfg Config, rng *rand.Rand) (gameOutcome, int, string, error) {
	environment := env.New(e.adapter, cfg.RewardConfig, cfg.Adjudication, true)
	state := environment.Reset()

	for step := 0; step < cfg.MaxStepsPerGame; step++ {
		mover := environment.State().SideToMove()
		legal := environment.ValidActions()
		if len(legal) == 0 {
			break
		}

		side := black
		if mover == chesscore.White {
			side = white
		}
		action, err := side.selectAction(state, environment.State().Position(), legal, rng, cfg.Epsilon)
		if err != nil {
			return outcomeDraw, step, "other", err
		}

		next, _, done, info := environment.Step(action)
		state = next
		if done {
			outcome := classifyOutcome(info)
			if mover == chesscore.Black {
				// classifyOutcome is relative to the terminating mover;
				// flip it to honor this function's White-relative contract.
				outcome = flipOutcome(outcome)
			}
			return outcome, step + 1, terminationTag(info), nil
		}
	}
	// Step cap reached without a rules/adjudication termination.
	return outcomeDraw, cfg.MaxStepsPerGame, "step_limit", nil
}

// playOne is CompareModels' two-agent specialization of playGeneric.
func (e *Evaluator) playOne(white, black *agent.Agent, cfg Config, rng *rand.Rand) (gameOutcome, int, string, error) {
	return e.playGeneric(agentSide{white}, agentSide{black}, cfg, rng)
}

func classifyOutcome(info env.StepResult) gameOutcome {
	switch {
	case info.MoverWon:
		return outcomeWin
	case info.MoverLost:
		return outcomeLoss
	default:
		return outcomeDraw
	}
}

func terminationTag(info env.StepResult) string {
	switch info.Reason {
	case env.ReasonAdjudicationResign, env.ReasonAdjudicationNoProgress:
		return "adjudication"
	case env.ReasonManual:
		return "other"
	}
	switch info.Outcome {
	case chesscore.DrawStalemate:
		return "stalemate"
	case chesscore.DrawFiftyMove:
		return "fifty_move"
	case chesscore.DrawThreefold:
		return "threefold_local"
	case chesscore.DrawInsufficientMaterial:
		return "insufficient_material"
	default:
		return "other"
	}
}
