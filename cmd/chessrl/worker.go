package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chessrl/chessrl/internal/fileutil"
	"github.com/chessrl/chessrl/internal/selfplay"
	"github.com/rs/zerolog"
)

// InternalSelfplayWorkerCmd is the hidden C13 worker entrypoint spawned by
// the orchestrator (§4.14): it reads a WorkerJob file, plays one game, and
// writes a WorkerResult file atomically. It is never invoked directly by a
// user.
type InternalSelfplayWorkerCmd struct {
	Job string `required:"" help:"Path to a WorkerJob JSON file"`
	Out string `required:"" help:"Path to write the WorkerResult JSON file"`
}

func (c *InternalSelfplayWorkerCmd) Run(logger zerolog.Logger) error {
	raw, err := os.ReadFile(c.Job)
	if err != nil {
		return fmt.Errorf("worker: reading job file: %w", err)
	}
	var job selfplay.WorkerJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("worker: parsing job file: %w", err)
	}

	result, err := selfplay.PlayGame(job)
	if err != nil {
		result = selfplay.WorkerResult{GameID: job.GameID, Err: err.Error()}
	}

	data, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return fmt.Errorf("worker: marshaling result: %w", marshalErr)
	}
	if writeErr := fileutil.WriteFileAtomic(c.Out, data, 0o644); writeErr != nil {
		return fmt.Errorf("worker: writing result file: %w", writeErr)
	}
	if err != nil {
		return err
	}
	return nil
}
