package process

import (
	"context"
	"log/slog"

	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Executor runs a single command. *Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, cmd Command) (domain.CommandResult, error)
}

// Verifier runs the configured verification commands in order.
type Verifier struct {
	exec     Executor
	commands []CommandConfig
	logger   *slog.Logger
}

// VerifierOption configures the verifier.
type VerifierOption func(*Verifier)

// WithVerifierLogger configures the structured logger.
func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// NewVerifier creates a Verifier over exec.
func NewVerifier(exec Executor, commands []CommandConfig, opts ...VerifierOption) *Verifier {
	v := &Verifier{exec: exec, commands: commands, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs every command, even after one fails, and reports all of them.
// A command that cannot be started is reported with exit code -1 and the start
// error on stderr. Only cancellation of ctx returns an error.
func (v *Verifier) Verify(ctx context.Context) (domain.VerificationReport, error) {
	report := domain.VerificationReport{OK: true}
	for _, c := range v.commands {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := v.exec.Run(ctx, Command{Path: c.Command, Args: c.Args, Env: c.Environment})
		if err != nil {
			if ctx.Err() != nil {
				return report, err
			}
			res.ExitCode = -1
			res.Stderr = err.Error()
		}
		result := domain.VerificationResult{Name: c.Name, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
		if result.Failed() {
			report.OK = false
		}
		v.logger.Info("verification command finished", "name", c.Name, "exit_code", result.ExitCode)
		report.Results = append(report.Results, result)
	}
	return report, nil
}
