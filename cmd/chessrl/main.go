// Command chessrl is the training-core CLI: self-play DQN training,
// baseline evaluation, and the hidden worker entrypoint spawned by the
// self-play orchestrator.
package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
)

// version is set by ldflags during build, matching the teacher's own
// cmd/pokerforbots version-flag convention.
var version = "dev"

// CLI is the root kong command tree.
type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Debug   bool             `help:"Enable debug logging"`

	Train    TrainCmd    `cmd:"" help:"Run the self-play training pipeline"`
	Evaluate EvaluateCmd `cmd:"" help:"Evaluate a trained model"`

	InternalSelfplayWorker InternalSelfplayWorkerCmd `cmd:"internal-selfplay-worker" hidden:"" help:"Internal: plays one self-play game (spawned by the orchestrator)"`
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("chessrl"),
		kong.Description("Self-play DQN training core for a chess-playing agent"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version},
	)
	logger := newLogger(cli.Debug)
	err := ctx.Run(logger)
	ctx.FatalIfErrorf(err)
}
