// Package agent implements the DQN Agent (C6): action selection with
// legal-action masking, Double-DQN/vanilla target computation, target
// network synchronization, and the linear epsilon schedule.
package agent

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/chessrl/chessrl/internal/network"
	"github.com/chessrl/chessrl/internal/replay"
)

// ErrTrainingDiverged signals that a backend produced a non-finite loss;
// the pipeline must abort the cycle and persist a recovery checkpoint.
var ErrTrainingDiverged = errors.New("agent: training diverged (non-finite loss)")

// Config holds the RL hyperparameters from the configuration surface (§6
// RL section).
type Config struct {
	Gamma                 float64
	TargetUpdateFrequency int
	BatchSize             int
	DoubleDQN             bool
	EpsilonStart          float64
	EpsilonEnd            float64
	EpsilonDecayUpdates   int // N_epsilon: number of train_batch calls over which epsilon decays
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Gamma:                 0.99,
		TargetUpdateFrequency: 100,
		BatchSize:             64,
		DoubleDQN:             false,
		EpsilonStart:          0.1,
		EpsilonEnd:            0.1,
		EpsilonDecayUpdates:   1,
	}
}

// Agent owns the online network (theta), target network (theta-), and the
// replay buffer, per the ownership rule in §3: the pipeline owns exactly
// one Agent; self-play workers only ever see a read-only weights snapshot.
type Agent struct {
	cfg     Config
	online  network.Backend
	target  network.Backend
	buffer  replay.Buffer
	updates int
	epsilon float64
}

// New constructs an Agent around an already-built online/target pair and a
// replay buffer. The caller is responsible for ensuring online and target
// share the same backend/architecture (CopyWeightsTo enforces this at sync
// time regardless).
func New(cfg Config, online, target network.Backend, buffer replay.Buffer) *Agent {
	a := &Agent{cfg: cfg, online: online, target: target, buffer: buffer, epsilon: cfg.EpsilonStart}
	online.CopyWeightsTo(target)
	return a
}

// Online exposes the network whose weights are snapshotted for self-play
// workers.
func (a *Agent) Online() network.Backend { return a.online }

// Buffer exposes the owned replay buffer so the pipeline can merge
// self-play transitions into it.
func (a *Agent) Buffer() replay.Buffer { return a.buffer }

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 { return a.epsilon }

// Updates returns the number of successful train_batch calls so far.
func (a *Agent) Updates() int { return a.updates }

// SyncTarget forces an immediate online->target weight copy, bypassing the
// usual TargetUpdateFrequency cadence. Callers use this once after loading
// weights from a checkpoint (the fresh online weights must not wait up to
// TargetUpdateFrequency batches before the target network reflects them).
func (a *Agent) SyncTarget() error {
	return a.online.CopyWeightsTo(a.target)
}

// SelectResult reports whether action selection had to fall back due to a
// non-finite prediction, per §4.6's failure semantics.
type SelectResult struct {
	Action       int
	FellBackToRandom bool
}

// SelectAction implements epsilon-greedy selection over the legal action
// set L, with a NaN-prediction fallback to a uniformly random legal move.
func (a *Agent) SelectAction(state []float32, legal []int, rng *rand.Rand) SelectResult {
	return a.SelectActionWithEpsilon(state, legal, rng, a.epsilon)
}

// SelectActionWithEpsilon is SelectAction with an explicit exploration rate,
// used by the evaluator to play at eval_epsilon (0.0 = greedy) independent
// of wherever training's own decayed epsilon currently sits.
func (a *Agent) SelectActionWithEpsilon(state []float32, legal []int, rng *rand.Rand, epsilon float64) SelectResult {
	if len(legal) == 0 {
		return SelectResult{Action: -1}
	}
	if rng.Float64() < epsilon {
		return SelectResult{Action: legal[rng.IntN(len(legal))]}
	}

	q := a.online.Predict([][]float32{state})[0]
	best := legal[0]
	bestQ := q[best]
	nonFinite := !isFinite(bestQ)
	for _, act := range legal[1:] {
		v := q[act]
		if !isFinite(v) {
			nonFinite = true
			continue
		}
		if v > bestQ {
			best, bestQ = act, v
		}
	}
	if nonFinite {
		return SelectResult{Action: legal[rng.IntN(len(legal))], FellBackToRandom: true}
	}
	return SelectResult{Action: best}
}

// TrainResult summarizes one successful train_batch call.
type TrainResult struct {
	Loss         float64
	GradientNorm float64
}

// TrainBatch builds Double-DQN or vanilla targets for the given batch,
// invokes the backend, handles the target-network sync cadence, and
// advances the epsilon schedule. A non-finite loss returns
// ErrTrainingDiverged and leaves the update counter unchanged.
func (a *Agent) TrainBatch(batch replay.Batch) (TrainResult, error) {
	if len(batch.Transitions) == 0 {
		return TrainResult{}, fmt.Errorf("agent: empty batch")
	}

	states := make([][]float32, len(batch.Transitions))
	for i, t := range batch.Transitions {
		states[i] = t.State
	}
	currentQ := a.online.Predict(states)

	nextStates := make([][]float32, len(batch.Transitions))
	for i, t := range batch.Transitions {
		nextStates[i] = t.NextState
	}
	targetQNext := a.target.Predict(nextStates)
	var onlineQNext [][]float32
	if a.cfg.DoubleDQN {
		onlineQNext = a.online.Predict(nextStates)
	}

	targets := make([][]float32, len(batch.Transitions))
	for i, t := range batch.Transitions {
		row := make([]float32, len(currentQ[i]))
		copy(row, currentQ[i])

		y := t.Reward
		if !t.Done {
			legal := t.NextLegalActions
			if len(legal) == 0 {
				// Documented degradation: fall back to all actions when
				// the legal set at s' is unavailable.
				legal = allActions(len(targetQNext[i]))
			}
			if a.cfg.DoubleDQN {
				bestAction := legal[0]
				bestVal := onlineQNext[i][bestAction]
				for _, act := range legal[1:] {
					if onlineQNext[i][act] > bestVal {
						bestAction, bestVal = act, onlineQNext[i][act]
					}
				}
				y += a.cfg.Gamma * float64(targetQNext[i][bestAction])
			} else {
				best := float32(math.Inf(-1))
				for _, act := range legal {
					if targetQNext[i][act] > best {
						best = targetQNext[i][act]
					}
				}
				y += a.cfg.Gamma * float64(best)
			}
		}
		row[t.Action] = float32(y)
		targets[i] = row
	}

	loss, gradNorm, err := a.online.TrainBatch(states, targets)
	if err != nil || math.IsNaN(loss) || math.IsInf(loss, 0) {
		return TrainResult{}, ErrTrainingDiverged
	}

	a.updates++
	if a.cfg.TargetUpdateFrequency > 0 && a.updates%a.cfg.TargetUpdateFrequency == 0 {
		a.online.CopyWeightsTo(a.target)
	}
	a.decayEpsilon()

	return TrainResult{Loss: loss, GradientNorm: gradNorm}, nil
}

func (a *Agent) decayEpsilon() {
	n := a.cfg.EpsilonDecayUpdates
	if n <= 0 {
		a.epsilon = a.cfg.EpsilonEnd
		return
	}
	if a.updates >= n {
		a.epsilon = a.cfg.EpsilonEnd
		return
	}
	frac := float64(a.updates) / float64(n)
	a.epsilon = a.cfg.EpsilonStart + frac*(a.cfg.EpsilonEnd-a.cfg.EpsilonStart)
}

func isFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

func allActions(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
