// Package selfplay implements the Self-Play Orchestrator (C7): a sliding
// window of isolated worker processes that each play one game and report
// transitions back over a file-based protocol. No shared mutable state
// crosses a process boundary; the orchestrator's only suspension points
// are process spawn, process wait, and file I/O.
package selfplay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chessrl/chessrl/internal/fileutil"
	"github.com/chessrl/chessrl/internal/procs"
	"github.com/chessrl/chessrl/internal/randutil"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config controls orchestration for one cycle.
type Config struct {
	ExecutablePath     string        // usually os.Args[0]
	WorkerSubcommand   string        // e.g. "internal-selfplay-worker"
	JobDir             string        // scratch directory for job/result files
	GamesPerCycle      int
	MaxConcurrentGames int
	WorkerTimeout      time.Duration
	MinSuccessRatio    float64     // fraction of GamesPerCycle required; capped at 0.5 per §4.7
	Clock              quartz.Clock // overridable so tests can simulate a worker hang without a real sleep; defaults to quartz.NewReal()
}

// Orchestrator runs self-play games across worker processes.
type Orchestrator struct {
	cfg    Config
	logger zerolog.Logger
}

// New constructs an Orchestrator.
func New(cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.MinSuccessRatio <= 0 {
		cfg.MinSuccessRatio = 0.5
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	return &Orchestrator{cfg: cfg, logger: logger.With().Str("component", "selfplay").Logger()}
}

// ErrCycleFailed is returned when fewer than the required number of games
// succeeded in a cycle.
var ErrCycleFailed = fmt.Errorf("selfplay: cycle failed, too few games succeeded")

// RunCycle plays GamesPerCycle games at concurrency MaxConcurrentGames,
// maintaining a sliding window of worker processes, and returns the
// successful games' results. baseSeed combines with each game id (XOR) to
// derive a deterministic per-worker seed.
func (o *Orchestrator) RunCycle(ctx context.Context, baseSeed int64, jobTemplate WorkerJob) ([]WorkerResult, error) {
	if err := os.MkdirAll(o.cfg.JobDir, 0o755); err != nil {
		return nil, fmt.Errorf("selfplay: creating job dir: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, o.cfg.MaxConcurrentGames)
	results := make([]*WorkerResult, o.cfg.GamesPerCycle)

	for gameID := 0; gameID < o.cfg.GamesPerCycle; gameID++ {
		gameID := gameID
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			job := jobTemplate
			job.GameID = gameID
			job.Seed = randutil.GameSeed(baseSeed, gameID)

			result, err := o.runWorker(gctx, job)
			if err != nil {
				o.logger.Warn().Int("game_id", gameID).Err(err).Msg("self-play worker failed, skipping game")
				return nil // recoverable: WorkerFailure is counted, not propagated
			}
			results[gameID] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("selfplay: cycle aborted: %w", err)
	}

	succeeded := make([]WorkerResult, 0, o.cfg.GamesPerCycle)
	for _, r := range results {
		if r != nil {
			succeeded = append(succeeded, *r)
		}
	}

	required := int(float64(o.cfg.GamesPerCycle) * min(o.cfg.MinSuccessRatio, 0.5))
	if len(succeeded) < required {
		return succeeded, fmt.Errorf("%w: %d/%d succeeded, needed %d", ErrCycleFailed, len(succeeded), o.cfg.GamesPerCycle, required)
	}
	return succeeded, nil
}

func (o *Orchestrator) runWorker(ctx context.Context, job WorkerJob) (*WorkerResult, error) {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobPath := filepath.Join(o.cfg.JobDir, fmt.Sprintf("job_%d.json", job.GameID))
	outPath := filepath.Join(o.cfg.JobDir, fmt.Sprintf("result_%d.json", job.GameID))
	defer os.Remove(jobPath)
	defer os.Remove(outPath)

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshaling job: %w", err)
	}
	if err := fileutil.WriteFileAtomic(jobPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing job file: %w", err)
	}

	args := append(append([]string{}, o.cfg.WorkerSubcommand), "--job", jobPath, "--out", outPath)
	worker := procs.NewWorker(workCtx, o.cfg.ExecutablePath, args, nil, o.logger)
	if err := worker.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- worker.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-o.cfg.Clock.After(o.cfg.WorkerTimeout):
		cancel()
		<-waitDone
		return nil, fmt.Errorf("worker timed out after %s", o.cfg.WorkerTimeout)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("worker exited with error: %w", waitErr)
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}
	var result WorkerResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parsing result file: %w", err)
	}
	if result.Err != "" {
		return nil, fmt.Errorf("worker reported error: %s", result.Err)
	}
	return &result, nil
}
