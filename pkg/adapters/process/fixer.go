package process

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/autofix"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Fixer plans and applies remediation from configured fix commands,
// such as formatters or linters run with their --fix flag.
// It satisfies autofix.Planner and autofix.Executor.
type Fixer struct {
	exec     Executor
	commands []CommandConfig
	logger   *slog.Logger
}

// FixerOption configures the fixer.
type FixerOption func(*Fixer)

// WithFixerLogger configures the structured logger.
func WithFixerLogger(logger *slog.Logger) FixerOption {
	return func(f *Fixer) {
		f.logger = logger
	}
}

// NewFixer creates a Fixer over exec.
func NewFixer(exec Executor, commands []CommandConfig, opts ...FixerOption) *Fixer {
	f := &Fixer{exec: exec, commands: commands, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GeneratePlan selects, in configured order, every fix command addressing at least
// one failing check. It fails when nothing applies.
func (f *Fixer) GeneratePlan(ctx context.Context, failures []domain.VerificationResult) (autofix.Plan, error) {
	failing := make(map[string]bool, len(failures))
	names := make([]string, 0, len(failures))
	for _, r := range failures {
		failing[r.Name] = true
		names = append(names, r.Name)
	}

	var plan autofix.Plan
	for _, c := range f.commands {
		if applies(c, failing) {
			plan.Steps = append(plan.Steps, c.Name)
		}
	}
	if len(plan.Steps) == 0 {
		return autofix.Plan{}, fmt.Errorf("no fix command addresses %s", strings.Join(names, ", "))
	}
	plan.Summary = fmt.Sprintf("run %s for %s", strings.Join(plan.Steps, ", "), strings.Join(names, ", "))
	return plan, nil
}

func applies(c CommandConfig, failing map[string]bool) bool {
	if len(c.For) == 0 {
		return true
	}
	for _, name := range c.For {
		if failing[name] {
			return true
		}
	}
	return false
}

// ExecutePlan runs the planned fix commands in order and reports each exit code.
// A fix command exiting non-zero does not stop the plan; re-verification decides.
func (f *Fixer) ExecutePlan(ctx context.Context, plan autofix.Plan) (string, error) {
	byName := make(map[string]CommandConfig, len(f.commands))
	for _, c := range f.commands {
		byName[c.Name] = c
	}

	lines := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		c, ok := byName[step]
		if !ok {
			return strings.Join(lines, "\n"), fmt.Errorf("unknown fix command %q", step)
		}
		res, err := f.exec.Run(ctx, Command{Path: c.Command, Args: c.Args, Env: c.Environment})
		if err != nil {
			return strings.Join(lines, "\n"), fmt.Errorf("fix command %s: %w", c.Name, err)
		}
		f.logger.Info("fix command finished", "name", c.Name, "exit_code", res.ExitCode)
		lines = append(lines, fmt.Sprintf("%s: exit %d", c.Name, res.ExitCode))
	}
	return strings.Join(lines, "\n"), nil
}
