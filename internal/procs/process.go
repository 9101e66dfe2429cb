// Package procs manages the lifecycle of self-play worker subprocesses: a
// context-scoped exec.Cmd with output capture and graceful-then-forceful
// termination. This is the process isolation mechanism the orchestrator
// (C7) relies on — workers never share memory with the pipeline or with
// each other.
package procs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Worker wraps one spawned self-play subprocess.
type Worker struct {
	ID      string
	Command string
	Args    []string
	Env     map[string]string

	cmd       *exec.Cmd
	ctx       context.Context
	cancel    context.CancelFunc
	logger    zerolog.Logger
	startTime time.Time
	mu        sync.RWMutex
	done      chan struct{}
	exitErr   error
}

// NewWorker creates a process manager scoped to ctx: cancelling ctx (or
// calling Stop) terminates the subprocess.
func NewWorker(ctx context.Context, command string, args []string, env map[string]string, logger zerolog.Logger) *Worker {
	procCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()[:8]

	return &Worker{
		ID:      id,
		Command: command,
		Args:    args,
		Env:     env,
		ctx:     procCtx,
		cancel:  cancel,
		logger:  logger.With().Str("worker_id", id).Logger(),
		done:    make(chan struct{}),
	}
}

// Start launches the subprocess and begins capturing its output.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cmd != nil {
		return fmt.Errorf("procs: worker %s already started", w.ID)
	}

	w.cmd = exec.CommandContext(w.ctx, w.Command, w.Args...)
	w.cmd.Env = os.Environ()
	for k, v := range w.Env {
		w.cmd.Env = append(w.cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdout, err := w.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("procs: stdout pipe: %w", err)
	}
	stderr, err := w.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("procs: stderr pipe: %w", err)
	}

	if err := w.cmd.Start(); err != nil {
		return fmt.Errorf("procs: start: %w", err)
	}
	w.startTime = time.Now()
	w.logger.Info().Str("command", w.Command).Strs("args", w.Args).Msg("self-play worker started")

	go w.readOutput("stdout", stdout)
	go w.readOutput("stderr", stderr)
	go w.monitor()

	return nil
}

// Stop terminates the worker gracefully (SIGINT), escalating to SIGKILL
// after a short grace period.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cmd == nil || w.cmd.Process == nil {
		return nil
	}
	select {
	case <-w.done:
		return nil
	default:
	}

	if err := w.cmd.Process.Signal(os.Interrupt); err != nil {
		select {
		case <-w.done:
			return nil
		default:
			if err := w.cmd.Process.Kill(); err != nil {
				select {
				case <-w.done:
					return nil
				default:
					return fmt.Errorf("procs: kill: %w", err)
				}
			}
		}
	}

	select {
	case <-w.done:
		return nil
	case <-time.After(time.Second):
		w.logger.Debug().Msg("force killing worker")
		if err := w.cmd.Process.Kill(); err != nil {
			select {
			case <-w.done:
				return nil
			default:
				if strings.Contains(err.Error(), "process already finished") {
					return nil
				}
				return fmt.Errorf("procs: force kill: %w", err)
			}
		}
		<-w.done
	}
	return nil
}

// Wait blocks until the worker exits and returns its exit error, if any.
func (w *Worker) Wait() error {
	<-w.done
	return w.exitErr
}

// IsAlive reports whether the subprocess is still running.
func (w *Worker) IsAlive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Worker) monitor() {
	defer close(w.done)
	err := w.cmd.Wait()

	w.mu.Lock()
	w.exitErr = err
	w.mu.Unlock()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			s := exitErr.String()
			if s == "signal: killed" || s == "signal: terminated" || s == "signal: interrupt" {
				w.logger.Info().Dur("duration", time.Since(w.startTime)).Msg("worker terminated by signal")
				return
			}
		}
		w.logger.Error().Err(err).Dur("duration", time.Since(w.startTime)).Msg("worker exited with error")
		return
	}
	w.logger.Debug().Dur("duration", time.Since(w.startTime)).Msg("worker exited successfully")
}

func (w *Worker) readOutput(stream string, pipe io.Reader) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if stream == "stderr" {
			w.logger.Warn().Str("stream", stream).Msg(line)
		} else {
			w.logger.Debug().Str("stream", stream).Msg(line)
		}
	}
	if err := scanner.Err(); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "file already closed") || strings.Contains(msg, "broken pipe") {
			return
		}
		select {
		case <-w.done:
		default:
			w.logger.Error().Err(err).Str("stream", stream).Msg("error reading worker output")
		}
	}
}
