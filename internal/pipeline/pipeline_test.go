package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/chessrl/chessrl/internal/config"
	"github.com/chessrl/chessrl/internal/fileutil"
	"github.com/chessrl/chessrl/internal/selfplay"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestMain lets this test binary double as the hidden worker subcommand the
// pipeline's Orchestrator spawns, the same trick used in
// internal/selfplay's own orchestrator test: no separate cmd/chessrl binary
// needs to exist for these tests to exercise real subprocesses.
func TestMain(m *testing.M) {
	if len(os.Args) >= 2 && os.Args[1] == "internal-selfplay-worker" {
		os.Exit(runAsWorkerProcess(os.Args[2:]))
	}
	os.Exit(m.Run())
}

func runAsWorkerProcess(args []string) int {
	var jobPath, outPath string
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "--job":
			jobPath = args[i+1]
		case "--out":
			outPath = args[i+1]
		}
	}
	raw, err := os.ReadFile(jobPath)
	if err != nil {
		return 1
	}
	var job selfplay.WorkerJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return 1
	}
	result, err := selfplay.PlayGame(job)
	if err != nil {
		result = selfplay.WorkerResult{GameID: job.GameID, Err: err.Error()}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return 1
	}
	if err := fileutil.WriteFileAtomic(outPath, data, 0o644); err != nil {
		return 1
	}
	if result.Err != "" {
		return 1
	}
	return 0
}

// TestPipelineColdStartEndToEnd matches §8 scenario 1: a fast-debug profile
// run of two cycles of five games each should complete both cycles, play
// all ten games, and leave checkpoint artifacts on disk.
func TestPipelineColdStartEndToEnd(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := config.FastDebugProfile()
	cfg.System.CheckpointDirectory = filepath.Join(dir, "checkpoints")
	cfg.System.CheckpointInterval = 1
	cfg.System.EvaluationInterval = 1
	cfg.EvalEnv.EvaluationGames = 2
	require.NoError(t, cfg.Validate())

	p, err := New(cfg, zerolog.Nop(), self, filepath.Join(dir, "jobs"))
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, p.TotalCycles())
	require.Equal(t, 10, p.TotalGamesPlayed())
	require.Len(t, p.History(), 2)

	entries, err := os.ReadDir(cfg.System.CheckpointDirectory)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

// TestPipelineResumeLoadsCycleCount checks that a fresh Pipeline picks up
// the persisted cycle counter from an earlier run's checkpoint metadata.
func TestPipelineResumeLoadsCycleCount(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := config.FastDebugProfile()
	cfg.System.CheckpointDirectory = filepath.Join(dir, "checkpoints")
	cfg.System.CheckpointInterval = 1
	cfg.System.EvaluationInterval = 1
	cfg.EvalEnv.EvaluationGames = 2
	cfg.SelfPlay.MaxCycles = 1
	require.NoError(t, cfg.Validate())

	first, err := New(cfg, zerolog.Nop(), self, filepath.Join(dir, "jobs"))
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))
	require.Equal(t, 1, first.TotalCycles())

	second, err := New(cfg, zerolog.Nop(), self, filepath.Join(dir, "jobs"))
	require.NoError(t, err)
	require.NoError(t, second.Resume(""))
	require.Equal(t, 1, second.TotalCycles())
}
