package selfplay

import (
	"github.com/chessrl/chessrl/internal/agent"
	"github.com/chessrl/chessrl/internal/env"
	"github.com/chessrl/chessrl/internal/network"
)

// WorkerJob is the file-based message an orchestrator hands to a self-play
// worker process: everything the worker needs to instantiate its own
// Adapter, Environment, and Agent snapshot.
type WorkerJob struct {
	GameID          int                     `json:"game_id"`
	Seed            int64                   `json:"seed"`
	WeightsPath     string                  `json:"weights_path"`
	BackendName     string                  `json:"backend_name"`
	NetworkConfig   network.Config          `json:"network_config"`
	AgentConfig     agent.Config            `json:"agent_config"`
	RewardConfig    env.RewardConfig        `json:"reward_config"`
	Adjudication    env.AdjudicationConfig  `json:"adjudication"`
	MaxStepsPerGame int                     `json:"max_steps_per_game"`
	OpponentType    string                  `json:"opponent_type"` // self|heuristic|minimax
	OpponentDepth   int                     `json:"opponent_depth"`
}

// TransitionDTO is the wire representation of one replay.Transition.
type TransitionDTO struct {
	State            []float32 `json:"state"`
	Action           int       `json:"action"`
	Reward           float64   `json:"reward"`
	NextState        []float32 `json:"next_state"`
	Done             bool      `json:"done"`
	NextLegalActions []int     `json:"next_legal_actions,omitempty"`
}

// WorkerResult is the file-based message a worker writes back: transitions
// plus summary statistics for the game it played.
type WorkerResult struct {
	GameID          int             `json:"game_id"`
	Transitions     []TransitionDTO `json:"transitions"`
	Outcome         string          `json:"outcome"`
	TerminationTag  string          `json:"termination_tag"`
	Length          int             `json:"length"`
	WallTimeSeconds float64         `json:"wall_time_seconds"`
	FinalFEN        string          `json:"final_fen"`
	IllegalAttempts int             `json:"illegal_attempts"`
	Err             string          `json:"err,omitempty"`
}
