package selfplay

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chessrl/chessrl/internal/agent"
	"github.com/chessrl/chessrl/internal/env"
	"github.com/chessrl/chessrl/internal/network"
	"github.com/chessrl/chessrl/internal/fileutil"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// clockAdvanceDelay gives the runWorker goroutine time to register its
// Clock.After(WorkerTimeout) call before the test advances the mock clock
// past it.
const clockAdvanceDelay = 10 * time.Millisecond

// TestMain lets this test binary double as the worker subprocess the
// orchestrator spawns: when invoked as
// "<test binary> internal-selfplay-worker --job <path> --out <path>" it
// plays the job directly instead of running the go test harness, mirroring
// how the real cmd/chessrl internal-selfplay-worker subcommand behaves
// without requiring a separate built binary for this package's tests.
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
	var job WorkerJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return 1
	}
	if job.OpponentType == "hang" {
		select {} // never returns on its own; only SIGINT/SIGKILL from the parent ends it
	}
	result, err := PlayGame(job)
	if err != nil {
		result = WorkerResult{GameID: job.GameID, Err: err.Error()}
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

func testJobTemplate() WorkerJob {
	netCfg := network.Config{HiddenLayers: []int{8}, LearningRate: 1e-3, GradientClip: 1.0, Seed: 1}
	return WorkerJob{
		BackendName:     "manual",
		NetworkConfig:   netCfg,
		AgentConfig:     agent.Config{Gamma: 0.99, EpsilonStart: 1.0, EpsilonEnd: 1.0, EpsilonDecayUpdates: 1},
		RewardConfig:    env.DefaultRewardConfig(),
		MaxStepsPerGame: 6,
		OpponentType:    "self",
	}
}

func TestOrchestratorRunCycleCollectsAllGames(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	weightsPath := filepath.Join(dir, "weights.json")
	backend := network.NewManual(network.Config{HiddenLayers: []int{8}, LearningRate: 1e-3, GradientClip: 1.0, Seed: 1})
	require.NoError(t, backend.Save(weightsPath))

	cfg := Config{
		ExecutablePath:     self,
		WorkerSubcommand:   "internal-selfplay-worker",
		JobDir:             filepath.Join(dir, "jobs"),
		GamesPerCycle:      4,
		MaxConcurrentGames: 2,
		WorkerTimeout:      10 * time.Second,
		MinSuccessRatio:    0.5,
	}
	orch := New(cfg, zerolog.Nop())

	job := testJobTemplate()
	job.WeightsPath = weightsPath

	results, err := orch.RunCycle(context.Background(), 42, job)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		require.NotEmpty(t, r.FinalFEN)
	}
}

// TestOrchestratorWorkerTimeoutIsDeterministic simulates a hung worker and
// confirms the cycle fails on a virtual clock advance rather than a real
// wall-clock sleep, per the worker-timeout property.
func TestOrchestratorWorkerTimeoutIsDeterministic(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	weightsPath := filepath.Join(dir, "weights.json")
	backend := network.NewManual(network.Config{HiddenLayers: []int{8}, LearningRate: 1e-3, GradientClip: 1.0, Seed: 1})
	require.NoError(t, backend.Save(weightsPath))

	mock := quartz.NewMock(t)
	cfg := Config{
		ExecutablePath:     self,
		WorkerSubcommand:   "internal-selfplay-worker",
		JobDir:             filepath.Join(dir, "jobs"),
		GamesPerCycle:      2,
		MaxConcurrentGames: 2,
		WorkerTimeout:      5 * time.Second,
		MinSuccessRatio:    1.0,
		Clock:              mock,
	}
	orch := New(cfg, zerolog.Nop())

	job := testJobTemplate()
	job.WeightsPath = weightsPath
	job.OpponentType = "hang"

	errCh := make(chan error, 1)
	go func() {
		_, runErr := orch.RunCycle(context.Background(), 1, job)
		errCh <- runErr
	}()

	time.Sleep(clockAdvanceDelay)
	mock.Advance(cfg.WorkerTimeout).MustWait(context.Background())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrCycleFailed)
	case <-time.After(10 * time.Second):
		t.Fatal("orchestrator did not return after the mock clock advanced past the worker timeout")
	}
}
