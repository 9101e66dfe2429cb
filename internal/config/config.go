// Package config implements the Config & CLI surface (C0): HCL profile
// loading, dotted-path overrides, and validation. A Config is frozen once a
// run starts, per §3 — nothing downstream mutates it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ErrConfigInvalid is the sentinel §7 ConfigInvalid error kind.
var ErrConfigInvalid = fmt.Errorf("config: invalid configuration")

// NetworkConfig is the §6 "Network" option group.
type NetworkConfig struct {
	HiddenLayers []int   `hcl:"hidden_layers,optional"`
	LearningRate float64 `hcl:"learning_rate,optional"`
	BatchSize    int     `hcl:"batch_size,optional"`
	Optimizer    string  `hcl:"optimizer,optional"`
	L2           float64 `hcl:"l2,optional"`
	GradientClip float64 `hcl:"gradient_clip,optional"`
}

// RLConfig is the §6 "RL" option group.
type RLConfig struct {
	ExplorationRate       float64 `hcl:"exploration_rate,optional"`
	TargetUpdateFrequency int     `hcl:"target_update_frequency,optional"`
	MaxExperienceBuffer   int     `hcl:"max_experience_buffer,optional"`
	Gamma                 float64 `hcl:"gamma,optional"`
	DoubleDQN             bool    `hcl:"double_dqn,optional"`
	ReplayType            string  `hcl:"replay_type,optional"`
}

// SelfPlayConfig is the §6 "Self-play" option group.
type SelfPlayConfig struct {
	GamesPerCycle      int `hcl:"games_per_cycle,optional"`
	MaxConcurrentGames int `hcl:"max_concurrent_games,optional"`
	MaxStepsPerGame    int `hcl:"max_steps_per_game,optional"`
	MaxCycles          int `hcl:"max_cycles,optional"`
	MaxBatchesPerCycle int `hcl:"max_batches_per_cycle,optional"`
}

// RewardsConfig is the §6 "Rewards" option group.
type RewardsConfig struct {
	WinReward             float64 `hcl:"win_reward,optional"`
	LossReward            float64 `hcl:"loss_reward,optional"`
	DrawReward            float64 `hcl:"draw_reward,optional"`
	StepLimitPenalty      float64 `hcl:"step_limit_penalty,optional"`
	InvalidMoveReward     float64 `hcl:"invalid_move_reward,optional"`
	EnablePositionRewards bool    `hcl:"enable_position_rewards,optional"`
}

// TrainEnvConfig is the §6 "Training env" option group.
type TrainEnvConfig struct {
	EarlyAdjudication       bool   `hcl:"early_adjudication,optional"`
	ResignMaterialThreshold int    `hcl:"resign_material_threshold,optional"`
	NoProgressPlies         int    `hcl:"no_progress_plies,optional"`
	OpponentType            string `hcl:"opponent_type,optional"`
	OpponentDepth           int    `hcl:"opponent_depth,optional"`
}

// EvalEnvConfig is the §6 "Eval env" option group.
type EvalEnvConfig struct {
	EarlyAdjudication       bool    `hcl:"early_adjudication,optional"`
	ResignMaterialThreshold int     `hcl:"resign_material_threshold,optional"`
	NoProgressPlies         int     `hcl:"no_progress_plies,optional"`
	Epsilon                 float64 `hcl:"epsilon,optional"`
	EvaluationGames         int     `hcl:"evaluation_games,optional"`
}

// SystemConfig is the §6 "System" option group.
type SystemConfig struct {
	Seed                  int64  `hcl:"seed,optional"`
	CheckpointDirectory   string `hcl:"checkpoint_directory,optional"`
	CheckpointInterval    int    `hcl:"checkpoint_interval,optional"`
	CheckpointMaxVersions int    `hcl:"checkpoint_max_versions,optional"`
	CheckpointKeepEvery   int    `hcl:"checkpoint_keep_every,optional"`
	EvaluationInterval    int    `hcl:"evaluation_interval,optional"`
	MetricsFile           string `hcl:"metrics_file,optional"`
	ServeMetricsAddr      string `hcl:"serve_metrics_addr,optional"`
}

// Config is the complete, frozen configuration surface from §6.
type Config struct {
	Network  NetworkConfig  `hcl:"network,block"`
	RL       RLConfig       `hcl:"rl,block"`
	SelfPlay SelfPlayConfig `hcl:"selfplay,block"`
	Rewards  RewardsConfig  `hcl:"rewards,block"`
	TrainEnv TrainEnvConfig `hcl:"train_env,block"`
	EvalEnv  EvalEnvConfig  `hcl:"eval_env,block"`
	System   SystemConfig   `hcl:"system,block"`
}

// Default returns the spec's documented default values.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			HiddenLayers: []int{512, 256, 128},
			LearningRate: 1e-3,
			BatchSize:    64,
			Optimizer:    "adam",
			GradientClip: 1.0,
		},
		RL: RLConfig{
			ExplorationRate:       0.1,
			TargetUpdateFrequency: 100,
			MaxExperienceBuffer:   50000,
			Gamma:                 0.99,
			ReplayType:            "UNIFORM",
		},
		SelfPlay: SelfPlayConfig{
			GamesPerCycle:      20,
			MaxConcurrentGames: 4,
			MaxStepsPerGame:    80,
			MaxCycles:          100,
			MaxBatchesPerCycle: 50,
		},
		Rewards: RewardsConfig{
			WinReward:         1.0,
			LossReward:        -1.0,
			DrawReward:        -0.2,
			StepLimitPenalty:  -1.0,
			InvalidMoveReward: -0.05,
		},
		TrainEnv: TrainEnvConfig{
			ResignMaterialThreshold: 12,
			NoProgressPlies:         80,
			OpponentType:            "self",
			OpponentDepth:           2,
		},
		EvalEnv: EvalEnvConfig{
			ResignMaterialThreshold: 15,
			NoProgressPlies:         100,
			EvaluationGames:         100,
		},
		System: SystemConfig{
			CheckpointDirectory:   "checkpoints",
			CheckpointInterval:    5,
			CheckpointMaxVersions: 10,
			EvaluationInterval:    10,
		},
	}
}

// FastDebugProfile is the built-in profile named in the §8 cold-start
// end-to-end scenario.
func FastDebugProfile() *Config {
	c := Default()
	c.SelfPlay.MaxCycles = 2
	c.SelfPlay.GamesPerCycle = 5
	c.SelfPlay.MaxConcurrentGames = 2
	c.SelfPlay.MaxStepsPerGame = 40
	c.Network.BatchSize = 32
	c.System.Seed = 12345
	return c
}

// Profile resolves a named built-in profile, or an error if unknown.
func Profile(name string) (*Config, error) {
	switch name {
	case "", "default":
		return Default(), nil
	case "fast-debug":
		return FastDebugProfile(), nil
	default:
		return nil, fmt.Errorf("%w: unknown profile %q", ErrConfigInvalid, name)
	}
}

// Load reads an HCL profile file layered over the defaults; a missing file
// is not an error (it just returns the defaults), matching the teacher's
// own LoadServerConfig behavior.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: parsing %s: %s", ErrConfigInvalid, filename, diags.Error())
	}

	cfg := Default()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: decoding %s: %s", ErrConfigInvalid, filename, diags.Error())
	}
	return cfg, nil
}

// ApplyOverride applies one "dotted.path=value" override, e.g.
// "rl.gamma=0.95" or "selfplay.games_per_cycle=10". Overrides are applied
// after the profile/file is decoded and before Validate; dedicated CLI flags
// are applied after them and take precedence (§6: CLI flags highest).
func (c *Config) ApplyOverride(kv string) error {
	parts := strings.SplitN(kv, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%w: override %q must be key=value", ErrConfigInvalid, kv)
	}
	path, value := parts[0], parts[1]
	dotted := strings.SplitN(path, ".", 2)
	if len(dotted) != 2 {
		return fmt.Errorf("%w: override key %q must be section.field", ErrConfigInvalid, path)
	}
	section, field := dotted[0], dotted[1]

	setter, ok := fieldSetters[section][field]
	if !ok {
		return fmt.Errorf("%w: unknown override field %q", ErrConfigInvalid, path)
	}
	if err := setter(c, value); err != nil {
		return fmt.Errorf("%w: override %q: %v", ErrConfigInvalid, kv, err)
	}
	return nil
}

type setterFunc func(*Config, string) error

var fieldSetters = map[string]map[string]setterFunc{
	"network": {
		"learning_rate": func(c *Config, v string) error { return setFloat(&c.Network.LearningRate, v) },
		"batch_size":    func(c *Config, v string) error { return setInt(&c.Network.BatchSize, v) },
		"optimizer":     func(c *Config, v string) error { c.Network.Optimizer = v; return nil },
		"l2":            func(c *Config, v string) error { return setFloat(&c.Network.L2, v) },
		"gradient_clip": func(c *Config, v string) error { return setFloat(&c.Network.GradientClip, v) },
		"hidden_layers": func(c *Config, v string) error { return setIntSlice(&c.Network.HiddenLayers, v) },
	},
	"rl": {
		"exploration_rate":        func(c *Config, v string) error { return setFloat(&c.RL.ExplorationRate, v) },
		"target_update_frequency": func(c *Config, v string) error { return setInt(&c.RL.TargetUpdateFrequency, v) },
		"max_experience_buffer":   func(c *Config, v string) error { return setInt(&c.RL.MaxExperienceBuffer, v) },
		"gamma":                   func(c *Config, v string) error { return setFloat(&c.RL.Gamma, v) },
		"double_dqn":              func(c *Config, v string) error { return setBool(&c.RL.DoubleDQN, v) },
		"replay_type":             func(c *Config, v string) error { c.RL.ReplayType = v; return nil },
	},
	"selfplay": {
		"games_per_cycle":       func(c *Config, v string) error { return setInt(&c.SelfPlay.GamesPerCycle, v) },
		"max_concurrent_games":  func(c *Config, v string) error { return setInt(&c.SelfPlay.MaxConcurrentGames, v) },
		"max_steps_per_game":    func(c *Config, v string) error { return setInt(&c.SelfPlay.MaxStepsPerGame, v) },
		"max_cycles":            func(c *Config, v string) error { return setInt(&c.SelfPlay.MaxCycles, v) },
		"max_batches_per_cycle": func(c *Config, v string) error { return setInt(&c.SelfPlay.MaxBatchesPerCycle, v) },
	},
	"rewards": {
		"win_reward":              func(c *Config, v string) error { return setFloat(&c.Rewards.WinReward, v) },
		"loss_reward":             func(c *Config, v string) error { return setFloat(&c.Rewards.LossReward, v) },
		"draw_reward":             func(c *Config, v string) error { return setFloat(&c.Rewards.DrawReward, v) },
		"step_limit_penalty":      func(c *Config, v string) error { return setFloat(&c.Rewards.StepLimitPenalty, v) },
		"invalid_move_reward":     func(c *Config, v string) error { return setFloat(&c.Rewards.InvalidMoveReward, v) },
		"enable_position_rewards": func(c *Config, v string) error { return setBool(&c.Rewards.EnablePositionRewards, v) },
	},
	"train_env": {
		"early_adjudication":        func(c *Config, v string) error { return setBool(&c.TrainEnv.EarlyAdjudication, v) },
		"resign_material_threshold": func(c *Config, v string) error { return setInt(&c.TrainEnv.ResignMaterialThreshold, v) },
		"no_progress_plies":         func(c *Config, v string) error { return setInt(&c.TrainEnv.NoProgressPlies, v) },
		"opponent_type":             func(c *Config, v string) error { c.TrainEnv.OpponentType = v; return nil },
		"opponent_depth":            func(c *Config, v string) error { return setInt(&c.TrainEnv.OpponentDepth, v) },
	},
	"eval_env": {
		"early_adjudication":        func(c *Config, v string) error { return setBool(&c.EvalEnv.EarlyAdjudication, v) },
		"resign_material_threshold": func(c *Config, v string) error { return setInt(&c.EvalEnv.ResignMaterialThreshold, v) },
		"no_progress_plies":         func(c *Config, v string) error { return setInt(&c.EvalEnv.NoProgressPlies, v) },
		"epsilon":                   func(c *Config, v string) error { return setFloat(&c.EvalEnv.Epsilon, v) },
		"evaluation_games":          func(c *Config, v string) error { return setInt(&c.EvalEnv.EvaluationGames, v) },
	},
	"system": {
		"seed":                    func(c *Config, v string) error { return setInt64(&c.System.Seed, v) },
		"checkpoint_directory":    func(c *Config, v string) error { c.System.CheckpointDirectory = v; return nil },
		"checkpoint_interval":     func(c *Config, v string) error { return setInt(&c.System.CheckpointInterval, v) },
		"checkpoint_max_versions": func(c *Config, v string) error { return setInt(&c.System.CheckpointMaxVersions, v) },
		"checkpoint_keep_every":   func(c *Config, v string) error { return setInt(&c.System.CheckpointKeepEvery, v) },
		"evaluation_interval":     func(c *Config, v string) error { return setInt(&c.System.EvaluationInterval, v) },
		"metrics_file":            func(c *Config, v string) error { c.System.MetricsFile = v; return nil },
		"serve_metrics_addr":      func(c *Config, v string) error { c.System.ServeMetricsAddr = v; return nil },
	},
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setInt(dst *int, v string) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}

func setInt64(dst *int64, v string) error {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setIntSlice(dst *[]int, v string) error {
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return err
		}
		out = append(out, i)
	}
	*dst = out
	return nil
}

// Validate rejects out-of-range hyperparameters before a run starts,
// naming the offending field per §7's propagation policy.
func (c *Config) Validate() error {
	switch {
	case c.Network.LearningRate <= 0:
		return fmt.Errorf("%w: network.learning_rate must be positive, got %v", ErrConfigInvalid, c.Network.LearningRate)
	case c.Network.BatchSize <= 0:
		return fmt.Errorf("%w: network.batch_size must be positive, got %v", ErrConfigInvalid, c.Network.BatchSize)
	case len(c.Network.HiddenLayers) == 0:
		return fmt.Errorf("%w: network.hidden_layers must not be empty", ErrConfigInvalid)
	case c.RL.Gamma <= 0 || c.RL.Gamma > 1:
		return fmt.Errorf("%w: rl.gamma must be in (0,1], got %v", ErrConfigInvalid, c.RL.Gamma)
	case c.RL.ExplorationRate < 0 || c.RL.ExplorationRate > 1:
		return fmt.Errorf("%w: rl.exploration_rate must be in [0,1], got %v", ErrConfigInvalid, c.RL.ExplorationRate)
	case c.RL.MaxExperienceBuffer <= 0:
		return fmt.Errorf("%w: rl.max_experience_buffer must be positive, got %v", ErrConfigInvalid, c.RL.MaxExperienceBuffer)
	case c.RL.ReplayType != "UNIFORM" && c.RL.ReplayType != "PRIORITIZED":
		return fmt.Errorf("%w: rl.replay_type must be UNIFORM or PRIORITIZED, got %q", ErrConfigInvalid, c.RL.ReplayType)
	case c.SelfPlay.GamesPerCycle <= 0:
		return fmt.Errorf("%w: selfplay.games_per_cycle must be positive, got %v", ErrConfigInvalid, c.SelfPlay.GamesPerCycle)
	case c.SelfPlay.MaxConcurrentGames <= 0:
		return fmt.Errorf("%w: selfplay.max_concurrent_games must be positive, got %v", ErrConfigInvalid, c.SelfPlay.MaxConcurrentGames)
	case c.SelfPlay.MaxStepsPerGame <= 0:
		return fmt.Errorf("%w: selfplay.max_steps_per_game must be positive, got %v", ErrConfigInvalid, c.SelfPlay.MaxStepsPerGame)
	case c.SelfPlay.MaxCycles <= 0:
		return fmt.Errorf("%w: selfplay.max_cycles must be positive, got %v", ErrConfigInvalid, c.SelfPlay.MaxCycles)
	case c.TrainEnv.OpponentType != "self" && c.TrainEnv.OpponentType != "minimax" && c.TrainEnv.OpponentType != "heuristic":
		return fmt.Errorf("%w: train_env.opponent_type must be self, minimax, or heuristic, got %q", ErrConfigInvalid, c.TrainEnv.OpponentType)
	case c.System.CheckpointDirectory == "":
		return fmt.Errorf("%w: system.checkpoint_directory must not be empty", ErrConfigInvalid)
	case c.System.CheckpointInterval <= 0:
		return fmt.Errorf("%w: system.checkpoint_interval must be positive, got %v", ErrConfigInvalid, c.System.CheckpointInterval)
	}
	return nil
}
