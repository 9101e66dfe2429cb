package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	charmlog "github.com/charmbracelet/log"
	"github.com/chessrl/chessrl/internal/config"
	"github.com/chessrl/chessrl/internal/dashboard"
	"github.com/chessrl/chessrl/internal/metrics"
	"github.com/chessrl/chessrl/internal/pipeline"
	"github.com/rs/zerolog"
)

// TrainCmd is `chessrl train`: constructs and runs the training pipeline
// (§4.8), optionally resuming from a checkpoint, attaching a metrics.csv
// sink, a websocket broadcaster, and/or a live TUI dashboard.
type TrainCmd struct {
	Config   string   `help:"Path to an HCL config profile file"`
	Profile  string   `help:"Named built-in profile (e.g. fast-debug)" default:""`
	Override []string `help:"Dotted-path config override, e.g. rl.gamma=0.95 (repeatable)"`

	Resume bool   `help:"Resume from the best/latest checkpoint in checkpoint_directory"`
	Load   string `help:"Resume from an explicit checkpoint weights path"`

	JobDir string `help:"Scratch directory for self-play job/result files" default:"jobs"`

	TUI          bool   `name:"tui" help:"Run a live bubbletea dashboard alongside training"`
	TUILogFile   string `name:"tui-log-file" help:"Structured log file to use while --tui holds the terminal" default:"chessrl-tui.log"`
	ServeMetrics string `name:"serve-metrics" help:"Address to serve a websocket metrics feed on, e.g. :8090"`
	MetricsFile  string `name:"metrics-file" help:"Append one CSV row per cycle to this file"`
}

func (c *TrainCmd) Run(logger zerolog.Logger) error {
	cfg, err := resolveConfig(c.Config, c.Profile, c.Override)
	if err != nil {
		return err
	}
	if c.MetricsFile != "" {
		cfg.System.MetricsFile = c.MetricsFile
	}
	if c.ServeMetrics != "" {
		cfg.System.ServeMetricsAddr = c.ServeMetrics
	}

	var dashLogger *charmlog.Logger
	if c.TUI {
		// The dashboard owns the terminal, so both the pipeline's own
		// structured logger and the dashboard's internal debug logger move
		// to a file, mirroring the teacher's holdem-client --tui wiring.
		f, err := os.OpenFile(c.TUILogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("train: opening tui log file: %w", err)
		}
		defer f.Close()
		logger = zerolog.New(f).With().Timestamp().Logger()
		dashLogger = charmlog.NewWithOptions(f, charmlog.Options{Prefix: "dashboard"})
		dashLogger.SetLevel(charmlog.DebugLevel)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("train: resolving executable path: %w", err)
	}

	p, err := pipeline.New(cfg, logger, exe, c.JobDir)
	if err != nil {
		return err
	}

	if c.Resume || c.Load != "" {
		if err := p.Resume(c.Load); err != nil {
			return fmt.Errorf("train: resume failed: %w", err)
		}
	}

	var csvSink *metrics.CSVSink
	if cfg.System.MetricsFile != "" {
		csvSink, err = metrics.NewCSVSink(cfg.System.MetricsFile)
		if err != nil {
			return err
		}
	}

	var broadcaster *metrics.Broadcaster
	if cfg.System.ServeMetricsAddr != "" {
		broadcaster = metrics.NewBroadcaster(logger)
		if err := broadcaster.Serve(cfg.System.ServeMetricsAddr); err != nil {
			return err
		}
		defer broadcaster.Shutdown(context.Background())
	}

	var dashRows chan dashboard.Row
	if c.TUI {
		dashRows = make(chan dashboard.Row, 16)
		go func() {
			if err := dashboard.Run(dashRows, dashLogger); err != nil {
				logger.Warn().Err(err).Msg("dashboard exited with error")
			}
		}()
		defer close(dashRows)
	}

	p.OnCycle = func(result pipeline.CycleResult) {
		logger.Info().
			Int("cycle", result.Cycle).
			Int("games", result.GamesPlayed).
			Float64("avg_length", result.AvgLength).
			Int("batch_updates", result.BatchUpdates).
			Float64("loss", result.Loss).
			Float64("epsilon", result.Epsilon).
			Int("buffer_size", result.BufferSize).
			Bool("is_best", result.IsBest).
			Msg("cycle complete")

		if csvSink != nil {
			_ = csvSink.Write(metrics.CycleRecord{
				Cycle:        result.Cycle,
				GamesPlayed:  result.GamesPlayed,
				AvgLength:    result.AvgLength,
				AvgReward:    result.AvgReward,
				BatchUpdates: result.BatchUpdates,
				Loss:         result.Loss,
				GradientNorm: result.GradientNorm,
				Epsilon:      result.Epsilon,
				BufferSize:   result.BufferSize,
				WallTime:     result.WallTime,
				PerfScore:    result.PerfScore,
				IsBest:       result.IsBest,
			})
		}
		if broadcaster != nil {
			broadcaster.Broadcast(result)
		}
		if dashRows != nil {
			select {
			case dashRows <- dashboard.Row{
				Cycle:      result.Cycle,
				Games:      result.GamesPlayed,
				AvgLength:  result.AvgLength,
				Loss:       result.Loss,
				Epsilon:    result.Epsilon,
				BufferSize: result.BufferSize,
				BestPerf:   p.BestPerformance(),
				IsBest:     result.IsBest,
			}:
			default:
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("train: %w", err)
	}

	logger.Info().
		Int("total_cycles", p.TotalCycles()).
		Int("total_games_played", p.TotalGamesPlayed()).
		Msg("training complete")
	return nil
}

func resolveConfig(path, profile string, overrides []string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.Load(path)
	case profile != "":
		cfg, err = config.Profile(profile)
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		if err := cfg.ApplyOverride(o); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
