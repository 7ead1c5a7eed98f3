package execute

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/wingspanai/qarun/internal/scope"
)

// Status is the terminal state of an execution.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Attempt records one subprocess invocation.
type Attempt struct {
	Number    int           `json:"number"` // 1 or 2
	Command   string        `json:"command"`
	ExitCode  int           `json:"exit_code"`
	Output    []byte        `json:"-"` // combined stdout/stderr, also streamed live
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Outcome is the engine's terminal result. Attempts holds exactly one or
// two entries.
type Outcome struct {
	Status   Status    `json:"status"`
	Attempts []Attempt `json:"attempts"`
}

// StartFunc runs one invocation to completion, streaming combined output to
// w, and returns the exit code. Injected so tests never spawn real runners.
type StartFunc func(ctx context.Context, inv scope.Invocation, dir string, env map[string]string, w io.Writer) (int, error)

func startProcess(ctx context.Context, inv scope.Invocation, dir string, env map[string]string, w io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Engine executes a validated CommandSpec with the one-shot retry policy:
// Idle -> Running(attempt=1) -> {Success | Failed}, with exactly one
// transition to Running(attempt=2) after a first failure. Cancellation
// terminates at the current attempt boundary and skips any retry.
type Engine struct {
	log   *zap.Logger
	start StartFunc
	out   io.Writer
}

func New(log *zap.Logger) *Engine {
	return &Engine{log: log, start: startProcess, out: os.Stdout}
}

// WithStart replaces the process starter (tests).
func (e *Engine) WithStart(start StartFunc) *Engine {
	e.start = start
	return e
}

// WithOutput redirects the live output stream.
func (e *Engine) WithOutput(w io.Writer) *Engine {
	e.out = w
	return e
}

// Execute runs the spec's clean step (best effort), then the command, then
// at most one retry shaped by the family's RetryPolicy. extraEnv is injected
// into every subprocess of this run, unchanged across retries.
func (e *Engine) Execute(ctx context.Context, spec scope.CommandSpec, extraEnv map[string]string) *Outcome {
	if spec.Clean != nil {
		e.clean(ctx, spec, extraEnv)
	}

	out := &Outcome{}

	first := e.attempt(ctx, 1, spec.Run, spec, extraEnv)
	out.Attempts = append(out.Attempts, first)

	if ctx.Err() != nil {
		out.Status = StatusCancelled
		e.log.Warn("run cancelled during attempt 1")
		return out
	}
	if first.ExitCode == 0 {
		out.Status = StatusSuccess
		return out
	}

	policy := policyFor(spec.Family)
	retry := policy.Retry(spec)
	e.log.Info("attempt failed, retrying once",
		zap.Int("exit_code", first.ExitCode),
		zap.String("strategy", policy.Name()))

	second := e.attempt(ctx, 2, retry, spec, extraEnv)
	out.Attempts = append(out.Attempts, second)

	switch {
	case ctx.Err() != nil:
		out.Status = StatusCancelled
		e.log.Warn("run cancelled during attempt 2")
	case second.ExitCode == 0:
		out.Status = StatusSuccess
	default:
		out.Status = StatusFailed
	}
	return out
}

func (e *Engine) attempt(ctx context.Context, number int, inv scope.Invocation, spec scope.CommandSpec, env map[string]string) Attempt {
	e.log.Info("executing",
		zap.Int("attempt", number),
		zap.String("command", inv.String()),
		zap.String("dir", spec.Dir))

	var buf bytes.Buffer
	start := time.Now()
	code, err := e.start(ctx, inv, spec.Dir, env, io.MultiWriter(e.out, &buf))
	if err != nil {
		// Could not start at all (command missing, dir gone).
		e.log.Error("could not run command", zap.String("command", inv.Name), zap.Error(err))
		code = -1
	}

	return Attempt{
		Number:    number,
		Command:   inv.String(),
		ExitCode:  code,
		Output:    buf.Bytes(),
		StartedAt: start,
		Duration:  time.Since(start),
	}
}

// clean runs the pre-step; a missing clean script must not block the run.
func (e *Engine) clean(ctx context.Context, spec scope.CommandSpec, env map[string]string) {
	e.log.Info("cleaning previous reports", zap.String("command", spec.Clean.String()))
	code, err := e.start(ctx, *spec.Clean, spec.Dir, env, e.out)
	if err != nil || code != 0 {
		e.log.Warn("clean step failed, continuing", zap.Int("exit_code", code), zap.Error(err))
	}
}
