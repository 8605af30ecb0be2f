package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"

	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Command is one external invocation.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
	// Dir overrides the runner's base directory.
	Dir string
}

// Runner executes local processes and reports their raw outcome.
type Runner struct {
	baseDir string
	env     map[string]string
	logger  *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithEnv adds variables to every command's environment.
func WithEnv(env map[string]string) RunnerOption {
	return func(r *Runner) {
		for k, v := range env {
			r.env[k] = v
		}
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		env:    make(map[string]string),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd and waits for it.
//
// A process that starts and exits non-zero is a result, not an error: the exit
// code and captured output are returned with a nil error. Errors are reserved for
// commands that could not be started and for cancellation of ctx.
func (r *Runner) Run(ctx context.Context, cmd Command) (domain.CommandResult, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = r.baseDir
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	c.Env = append(c.Environ(), envList(r.env, cmd.Env)...)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := domain.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s interrupted: %w", cmd.Path, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		r.logger.Debug("command exited non-zero", "command", cmd.Path, "exit_code", result.ExitCode)
		return result, nil
	}
	return result, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
}

func envList(layers ...map[string]string) []string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}
