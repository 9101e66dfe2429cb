// Package env implements the Environment (C3): applying actions, shaping
// rewards, detecting termination (including optional early adjudication),
// and exposing the legal action set the agent must mask against.
package env

import (
	"sort"

	"github.com/chessrl/chessrl/internal/chesscore"
	"github.com/chessrl/chessrl/internal/encode"
	"github.com/chessrl/chessrl/internal/engine"
)

// RewardConfig holds the reward-shaping constants from the configuration
// surface (§6 Rewards).
type RewardConfig struct {
	WinReward             float64
	LossReward            float64
	DrawReward            float64
	StepLimitPenalty      float64
	InvalidMoveReward     float64
	EnablePositionRewards bool
}

// DefaultRewardConfig matches the spec's documented defaults.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		WinReward:         1.0,
		LossReward:        -1.0,
		DrawReward:        -0.2,
		StepLimitPenalty:  -1.0,
		InvalidMoveReward: -0.05,
	}
}

// AdjudicationConfig controls early termination independent of the
// adapter's own rules-based outcome detection.
type AdjudicationConfig struct {
	Enabled                 bool
	ResignMaterialThreshold int
	NoProgressPlies         int
}

// TerminationReason classifies why a step ended the game, used for
// draw-breakdown reporting in the evaluator.
type TerminationReason uint8

const (
	NotTerminal TerminationReason = iota
	ReasonRulesOutcome
	ReasonAdjudicationResign
	ReasonAdjudicationNoProgress
	ReasonManual // empty legal set at a non-terminal encoding (boundary case, §8)
)

// StepResult is the side-channel info returned alongside reward/done.
type StepResult struct {
	Illegal   bool
	Outcome   chesscore.Outcome
	Reason    TerminationReason
	MoverWon  bool
	MoverLost bool
	IsCapture bool
}

// Environment wraps an Adapter with reward shaping and adjudication. One
// Environment instance is owned by exactly one goroutine/process at a time
// (a self-play worker, or the evaluator); it is never shared.
type Environment struct {
	adapter      engine.Adapter
	state        engine.State
	rewards      RewardConfig
	adjudication AdjudicationConfig
	illegalLossSides map[chesscore.Color]int // consecutive illegal selections, optional flag-controlled loss
	twoStrikeLoss bool
}

// New constructs an Environment over the given adapter.
func New(adapter engine.Adapter, rewards RewardConfig, adjudication AdjudicationConfig, twoStrikeLoss bool) *Environment {
	return &Environment{
		adapter:          adapter,
		rewards:          rewards,
		adjudication:     adjudication,
		illegalLossSides: map[chesscore.Color]int{},
		twoStrikeLoss:    twoStrikeLoss,
	}
}

// Reset returns the encoded starting state.
func (e *Environment) Reset() []float32 {
	e.state = e.adapter.Reset()
	e.illegalLossSides = map[chesscore.Color]int{}
	return encode.State(e.state.Position())
}

// State exposes the current opaque engine state, needed by the agent for
// legal-action masking and by the orchestrator for FEN logging.
func (e *Environment) State() engine.State { return e.state }

// ValidActions returns the current legal action set, sorted by action id so
// that callers doing argmax tie-breaking (per §4.6) see a deterministic,
// id-ordered candidate list rather than the adapter's board-scan order.
func (e *Environment) ValidActions() []int {
	actions := e.adapter.LegalActions(e.state)
	sort.Ints(actions)
	return actions
}

// IsTerminal reports whether the current state is over by rules or
// adjudication.
func (e *Environment) IsTerminal() bool {
	if e.adapter.Status(e.state) != chesscore.Ongoing {
		return true
	}
	return e.checkAdjudication() != NotTerminal
}

func (e *Environment) checkAdjudication() TerminationReason {
	if !e.adjudication.Enabled {
		return NotTerminal
	}
	diff := e.state.MaterialDiff()
	if diff >= e.adjudication.ResignMaterialThreshold || -diff >= e.adjudication.ResignMaterialThreshold {
		return ReasonAdjudicationResign
	}
	if e.state.PliesSinceProgress() >= e.adjudication.NoProgressPlies {
		return ReasonAdjudicationNoProgress
	}
	return NotTerminal
}

// Step applies an action from the mover's perspective at step start and
// returns the next encoded state, the reward (from that mover's
// perspective), whether the episode is done, and step info.
func (e *Environment) Step(action int) ([]float32, float64, bool, StepResult) {
	mover := e.state.SideToMove()
	legal := e.adapter.LegalActions(e.state)

	if !containsAction(legal, action) {
		e.illegalLossSides[mover]++
		result := StepResult{Illegal: true, Outcome: e.adapter.Status(e.state)}
		if e.twoStrikeLoss && e.illegalLossSides[mover] >= 2 {
			result.MoverLost = true
			return encode.State(e.state.Position()), e.rewards.LossReward, true, result
		}
		return encode.State(e.state.Position()), e.rewards.InvalidMoveReward, false, result
	}
	e.illegalLossSides[mover] = 0

	next, stepInfo := e.adapter.Step(e.state, action)
	e.state = next

	if len(e.adapter.LegalActions(e.state)) == 0 && e.adapter.Status(e.state) == chesscore.Ongoing {
		// Boundary case (§8): empty legal set at a non-terminal state due to
		// encoding mismatch. Classify as MANUAL termination.
		return encode.State(e.state.Position()), e.rewards.StepLimitPenalty, true, StepResult{
			Outcome: chesscore.Ongoing,
			Reason:  ReasonManual,
		}
	}

	if adjReason := e.checkAdjudication(); adjReason != NotTerminal {
		reward, moverWon, moverLost := e.adjudicationReward(mover, adjReason)
		return encode.State(e.state.Position()), reward, true, StepResult{
			Outcome:   e.adapter.Status(e.state),
			Reason:    adjReason,
			MoverWon:  moverWon,
			MoverLost: moverLost,
		}
	}

	outcome := e.adapter.Status(e.state)
	if outcome == chesscore.Ongoing {
		reward := 0.0
		if e.rewards.EnablePositionRewards {
			reward = positionShaping(e.state, mover)
		}
		return encode.State(e.state.Position()), reward, false, StepResult{Outcome: outcome, IsCapture: stepInfo.IsCapture}
	}

	reward, moverWon, moverLost := e.outcomeReward(mover, outcome)
	return encode.State(e.state.Position()), reward, true, StepResult{
		Outcome:   outcome,
		Reason:    ReasonRulesOutcome,
		MoverWon:  moverWon,
		MoverLost: moverLost,
	}
}

func (e *Environment) outcomeReward(mover chesscore.Color, outcome chesscore.Outcome) (reward float64, won, lost bool) {
	switch {
	case outcome == chesscore.WhiteWins && mover == chesscore.White,
		outcome == chesscore.BlackWins && mover == chesscore.Black:
		return e.rewards.WinReward, true, false
	case outcome == chesscore.WhiteWins && mover == chesscore.Black,
		outcome == chesscore.BlackWins && mover == chesscore.White:
		return e.rewards.LossReward, false, true
	default:
		return e.rewards.DrawReward, false, false
	}
}

func (e *Environment) adjudicationReward(mover chesscore.Color, reason TerminationReason) (reward float64, won, lost bool) {
	if reason == ReasonAdjudicationNoProgress {
		return e.rewards.DrawReward, false, false
	}
	// Resignation: the side with less material resigns.
	diff := e.state.MaterialDiff()
	losingSide := chesscore.White
	if diff > 0 {
		losingSide = chesscore.Black
	}
	if mover == losingSide {
		return e.rewards.LossReward, false, true
	}
	return e.rewards.WinReward, true, false
}

// StepLimitPenalty returns the configured penalty that the game loop puts
// on the final transition when the per-game step cap has been hit, per
// §4.3 item 4 and §4.7 item 4 (this is a pipeline-level concern, not the
// Environment's own termination detection, since maxStepsPerGame lives in
// the orchestrator's per-cycle config rather than environment state).
func (e *Environment) StepLimitPenalty() float64 { return e.rewards.StepLimitPenalty }

func positionShaping(s engine.State, mover chesscore.Color) float64 {
	diff := float64(s.MaterialDiff()) / 39.0 // normalize by max non-king material
	if mover == chesscore.Black {
		diff = -diff
	}
	return diff * 0.01
}

func containsAction(actions []int, action int) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
