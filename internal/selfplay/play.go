package selfplay

import (
	"fmt"
	"time"

	"github.com/chessrl/chessrl/internal/agent"
	"github.com/chessrl/chessrl/internal/chesscore"
	"github.com/chessrl/chessrl/internal/engine"
	"github.com/chessrl/chessrl/internal/env"
	"github.com/chessrl/chessrl/internal/network"
	"github.com/chessrl/chessrl/internal/opponent"
	"github.com/chessrl/chessrl/internal/randutil"
)

// PlayGame runs one self-play game in-process per job, playing the learner
// as White against either itself or a non-learned opponent (per
// job.OpponentType), and returns the transitions and summary the
// orchestrator expects back over the file protocol. This is the function
// body the hidden internal-selfplay-worker CLI subcommand calls; it never
// touches the pipeline's live Agent, only a read-only weights snapshot.
func PlayGame(job WorkerJob) (WorkerResult, error) {
	start := time.Now()

	online, err := network.New(job.BackendName, job.NetworkConfig)
	if err != nil {
		return WorkerResult{}, fmt.Errorf("selfplay: building backend: %w", err)
	}
	if err := online.Load(job.WeightsPath); err != nil {
		return WorkerResult{}, fmt.Errorf("selfplay: loading weights: %w", err)
	}
	// The worker never trains, so online doubles as its own target; New's
	// CopyWeightsTo(online, online) is a harmless self-copy.
	learner := agent.New(job.AgentConfig, online, online, nil)

	var opp opponent.Selector
	if job.OpponentType != "" && job.OpponentType != "self" {
		opp, err = opponent.New(job.OpponentType, job.OpponentDepth, 0, 1)
		if err != nil {
			return WorkerResult{}, fmt.Errorf("selfplay: building opponent: %w", err)
		}
	}

	adapter := engine.NewBuiltin()
	environment := env.New(adapter, job.RewardConfig, job.Adjudication, true)
	state := environment.Reset()

	rng := randutil.New(job.Seed)

	result := WorkerResult{GameID: job.GameID}
	var transitions []TransitionDTO
	illegalAttempts := 0
	steps := 0

	for steps < job.MaxStepsPerGame {
		mover := environment.State().SideToMove()
		legal := environment.ValidActions()
		if len(legal) == 0 {
			break
		}

		playedByLearner := opp == nil || mover == chesscore.White
		var action int
		if playedByLearner {
			sel := learner.SelectAction(state, legal, rng)
			action = sel.Action
		} else {
			mv, err := opp.SelectMove(environment.State().Position(), rng)
			if err != nil {
				return WorkerResult{}, fmt.Errorf("selfplay: opponent move selection: %w", err)
			}
			action = chessMoveToAction(mv)
		}

		next, reward, done, info := environment.Step(action)
		if info.Illegal {
			illegalAttempts++
		}
		if playedByLearner {
			transitions = append(transitions, TransitionDTO{
				State:            state,
				Action:           action,
				Reward:           reward,
				NextState:        next,
				Done:             done,
				NextLegalActions: environment.ValidActions(),
			})
		}
		state = next
		steps++

		if done {
			result.TerminationTag = terminationTag(info)
			break
		}
	}

	if result.TerminationTag == "" {
		if steps >= job.MaxStepsPerGame {
			result.TerminationTag = "step_limit"
			if len(transitions) > 0 {
				transitions[len(transitions)-1].Reward = environment.StepLimitPenalty()
				transitions[len(transitions)-1].Done = true
			}
		} else {
			result.TerminationTag = outcomeTag(adapter.Status(environment.State()))
		}
	}

	result.Transitions = transitions
	result.Outcome = adapter.Status(environment.State()).String()
	result.Length = steps
	result.WallTimeSeconds = time.Since(start).Seconds()
	result.FinalFEN = adapter.ToFEN(environment.State())
	result.IllegalAttempts = illegalAttempts
	return result, nil
}

func terminationTag(info env.StepResult) string {
	switch info.Reason {
	case env.ReasonAdjudicationResign:
		return "adjudication"
	case env.ReasonAdjudicationNoProgress:
		return "adjudication"
	case env.ReasonManual:
		return "other"
	default:
		return outcomeTag(info.Outcome)
	}
}

func outcomeTag(o chesscore.Outcome) string {
	switch o {
	case chesscore.DrawStalemate:
		return "stalemate"
	case chesscore.DrawFiftyMove:
		return "fifty_move"
	case chesscore.DrawThreefold:
		return "threefold_local"
	case chesscore.DrawInsufficientMaterial:
		return "insufficient_material"
	case chesscore.WhiteWins, chesscore.BlackWins:
		return "decisive"
	default:
		return "other"
	}
}

// chessMoveToAction encodes a chesscore.Move the way the action space does,
// discarding promotion (the adapter re-resolves the Q>R>B>N tie-break from
// from/to alone, so an opponent's non-queen underpromotion is not
// expressible as a distinct action and is recorded under the same action
// as the queen promotion on that from/to).
func chessMoveToAction(m chesscore.Move) int {
	return int(m.From)*64 + int(m.To)
}
