// Package runner executes external tools (compilers, deployment scripts,
// simulations) with a hard wall-clock timeout. A process that outlives its
// budget is killed and reported as timed out rather than failed.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultTimeout bounds any single subprocess invocation.
const DefaultTimeout = 600 * time.Second

// Result captures one subprocess execution. A non-zero exit code is not an
// error at this layer; callers decide what failure means for their step.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Output returns stderr if present, otherwise stdout. Tool errors usually
// land on stderr but some toolchains print everything to stdout.
func (r *Result) Output() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner executes commands with a shared timeout policy.
type Runner struct {
	timeout time.Duration
}

// New creates a Runner. A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Run executes name with args in dir and waits for completion or timeout.
// The returned error covers only failures to run the command at all; exit
// status and timeout are reported through Result.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		zap.L().Warn("subprocess timed out",
			zap.String("command", name),
			zap.Duration("timeout", r.timeout),
		)
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, eris.Wrapf(err, "runner: exec %s", name)
	}

	return res, nil
}
