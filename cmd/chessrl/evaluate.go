package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chessrl/chessrl/internal/agent"
	"github.com/chessrl/chessrl/internal/config"
	"github.com/chessrl/chessrl/internal/env"
	"github.com/chessrl/chessrl/internal/evaluator"
	"github.com/chessrl/chessrl/internal/network"
	"github.com/chessrl/chessrl/internal/replay"
	"github.com/rs/zerolog"
)

// EvaluateCmd is the `chessrl evaluate` command group (§4.10 / §6).
type EvaluateCmd struct {
	Baseline EvaluateBaselineCmd `cmd:"" help:"Evaluate a model against a heuristic or minimax baseline"`
	Compare  EvaluateCompareCmd  `cmd:"" help:"Head-to-head comparison between two models"`
}

// EvaluateBaselineCmd is `chessrl evaluate baseline`.
type EvaluateBaselineCmd struct {
	Model    string `required:"" help:"Path to a model's weights file"`
	Opponent string `enum:"heuristic,minimax" default:"heuristic" help:"Baseline opponent"`
	Depth    int    `default:"2" help:"Minimax search depth (only used when --opponent=minimax)"`
	Games    int    `default:"100" help:"Number of evaluation games"`
	Seed     int64  `default:"7" help:"RNG seed for deterministic evaluation"`
	Config   string `help:"Path to an HCL config profile file (for reward/adjudication settings)"`
}

func (c *EvaluateBaselineCmd) Run(logger zerolog.Logger) error {
	cfg, err := resolveConfig(c.Config, "", nil)
	if err != nil {
		return err
	}

	a, err := loadAgentFromModel(cfg, c.Model)
	if err != nil {
		return err
	}

	evalCfg := evaluator.Config{
		Games:           c.Games,
		MaxStepsPerGame: cfg.SelfPlay.MaxStepsPerGame,
		Epsilon:         cfg.EvalEnv.Epsilon,
		RewardConfig: env.RewardConfig{
			WinReward:  cfg.Rewards.WinReward,
			LossReward: cfg.Rewards.LossReward,
			DrawReward: cfg.Rewards.DrawReward,
		},
		Adjudication: env.AdjudicationConfig{
			Enabled:                 cfg.EvalEnv.EarlyAdjudication,
			ResignMaterialThreshold: cfg.EvalEnv.ResignMaterialThreshold,
			NoProgressPlies:         cfg.EvalEnv.NoProgressPlies,
		},
		Seed: c.Seed,
	}

	ev := evaluator.New()
	var report evaluator.Report
	switch c.Opponent {
	case "minimax":
		report, err = ev.EvaluateVsMinimax(a, c.Depth, evalCfg)
	default:
		report, err = ev.EvaluateVsHeuristic(a, evalCfg)
	}
	if err != nil {
		return fmt.Errorf("evaluate baseline: %w", err)
	}

	return printJSON(report)
}

// EvaluateCompareCmd is `chessrl evaluate compare`.
type EvaluateCompareCmd struct {
	ModelA string `name:"model-a" required:"" help:"Path to model A's weights file"`
	ModelB string `name:"model-b" required:"" help:"Path to model B's weights file"`
	Games  int    `default:"50" help:"Number of games, colors alternating"`
	Seed   int64  `default:"1" help:"RNG seed for deterministic evaluation"`
	Config string `help:"Path to an HCL config profile file"`
}

func (c *EvaluateCompareCmd) Run(logger zerolog.Logger) error {
	cfg, err := resolveConfig(c.Config, "", nil)
	if err != nil {
		return err
	}

	a, err := loadAgentFromModel(cfg, c.ModelA)
	if err != nil {
		return err
	}
	b, err := loadAgentFromModel(cfg, c.ModelB)
	if err != nil {
		return err
	}

	evalCfg := evaluator.Config{
		Games:           c.Games,
		MaxStepsPerGame: cfg.SelfPlay.MaxStepsPerGame,
		Epsilon:         cfg.EvalEnv.Epsilon,
		RewardConfig: env.RewardConfig{
			WinReward:  cfg.Rewards.WinReward,
			LossReward: cfg.Rewards.LossReward,
			DrawReward: cfg.Rewards.DrawReward,
		},
		Adjudication: env.AdjudicationConfig{
			Enabled:                 cfg.EvalEnv.EarlyAdjudication,
			ResignMaterialThreshold: cfg.EvalEnv.ResignMaterialThreshold,
			NoProgressPlies:         cfg.EvalEnv.NoProgressPlies,
		},
		Seed: c.Seed,
	}

	ev := evaluator.New()
	result, err := ev.CompareModels(a, b, evalCfg)
	if err != nil {
		return fmt.Errorf("evaluate compare: %w", err)
	}
	return printJSON(result)
}

// loadAgentFromModel builds a network backend matching cfg's architecture,
// loads weights from path, and wraps it in an Agent configured to play
// fully greedy (eval_epsilon overrides exploration at call time via
// SelectActionWithEpsilon, so the agent's own epsilon here is irrelevant).
func loadAgentFromModel(cfg *config.Config, path string) (*agent.Agent, error) {
	netCfg := network.Config{
		HiddenLayers: cfg.Network.HiddenLayers,
		LearningRate: cfg.Network.LearningRate,
		L2:           cfg.Network.L2,
		GradientClip: cfg.Network.GradientClip,
		Seed:         cfg.System.Seed,
	}
	backend, err := network.New("manual", netCfg)
	if err != nil {
		return nil, err
	}
	if err := backend.Load(path); err != nil {
		return nil, fmt.Errorf("loading model %s: %w", path, err)
	}

	agentCfg := agent.Config{
		Gamma:                 cfg.RL.Gamma,
		TargetUpdateFrequency: cfg.RL.TargetUpdateFrequency,
		BatchSize:             cfg.Network.BatchSize,
		DoubleDQN:             cfg.RL.DoubleDQN,
		EpsilonStart:          0,
		EpsilonEnd:            0,
		EpsilonDecayUpdates:   1,
	}
	buffer := replay.New("UNIFORM", 1, replay.DefaultPrioritizedConfig())
	return agent.New(agentCfg, backend, backend, buffer), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
