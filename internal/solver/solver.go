// Package solver runs the external placement/path solver.
package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"gsd.app/relay/common/logger"
)

const (
	maxStderrBytes = 4096
	waitDelay      = 2 * time.Second
)

var ErrTimeout = errors.New("solver timed out")

// Solver turns one wire payload into robot instructions.
type Solver interface {
	Solve(ctx context.Context, payload []byte) ([]byte, error)
}

type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// SolverInvocationError reports a failed solver run. ExitCode is -1 when the
// process never started or was killed.
type SolverInvocationError struct {
	ExitCode int
	Stderr   string
	Timeout  bool
	Err      error
}

func (e *SolverInvocationError) Error() string {
	switch {
	case e.Timeout:
		return "solver timed out"
	case e.ExitCode >= 0:
		msg := fmt.Sprintf("solver exited with status %d", e.ExitCode)
		if e.Stderr != "" {
			msg += ": " + e.Stderr
		}
		return msg
	default:
		return fmt.Sprintf("solver invocation failed: %v", e.Err)
	}
}

func (e *SolverInvocationError) Unwrap() error {
	return e.Err
}

func (e *SolverInvocationError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}

// ExecSolver writes the payload to the solver's stdin and returns its stdout.
type ExecSolver struct {
	cmd    Command
	logger *slog.Logger
}

func NewExecSolver(cmd Command, logger *slog.Logger) *ExecSolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSolver{cmd: cmd, logger: logger}
}

// Solve blocks until the process exits or ctx is done. A context deadline
// kills the process and is reported as ErrTimeout.
func (s *ExecSolver) Solve(ctx context.Context, payload []byte) ([]byte, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.solver"})

	command := exec.CommandContext(ctx, s.cmd.Name, s.cmd.Args...)
	if s.cmd.Dir != "" {
		command.Dir = s.cmd.Dir
	}
	if len(s.cmd.Env) > 0 {
		command.Env = append(os.Environ(), s.cmd.Env...)
	}
	command.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	command.Stdin = bytes.NewReader(payload)
	command.Stdout = &stdout
	command.Stderr = &stderr

	start := time.Now()
	err := command.Run()
	elapsed := time.Since(start)

	if err != nil {
		invErr := &SolverInvocationError{
			ExitCode: -1,
			Stderr:   logger.Truncate(string(bytes.TrimSpace(stderr.Bytes())), maxStderrBytes),
			Err:      err,
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			invErr.Timeout = true
			invErr.Err = fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		} else {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				invErr.ExitCode = exitErr.ExitCode()
			}
		}

		s.logger.WarnContext(ctx, "solver invocation failed",
			"error", invErr,
			"exit_code", invErr.ExitCode,
			"duration_ms", elapsed.Milliseconds())
		return nil, invErr
	}

	if stderr.Len() > 0 {
		s.logger.DebugContext(ctx, "solver stderr",
			"stderr", logger.Truncate(stderr.String(), maxStderrBytes))
	}
	s.logger.DebugContext(ctx, "solver finished",
		"duration_ms", elapsed.Milliseconds(),
		"output_bytes", stdout.Len())

	return stdout.Bytes(), nil
}

// Func adapts a function to Solver.
type Func func(ctx context.Context, payload []byte) ([]byte, error)

func (f Func) Solve(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}
