package runner

import (
	"context"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Step is one entry in a Drive sequence.
type Step struct {
	ID        string
	Title     string
	Work      WorkFunc
	Inputs    any
	Artifacts ArtifactsFunc
}

type driveConfig struct {
	failRunOnError bool
	finish         bool
}

// DriveOption configures Drive.
type DriveOption func(*driveConfig)

// FailRunOnError marks the run failed when a step returns an error.
// Without it the run stays running so the caller can retry or escalate.
func FailRunOnError() DriveOption {
	return func(c *driveConfig) {
		c.failRunOnError = true
	}
}

// LeaveRunning skips marking the run successful after the last step.
func LeaveRunning() DriveOption {
	return func(c *driveConfig) {
		c.finish = false
	}
}

// Drive runs steps strictly in order. Cancellation is checked between steps only;
// when it wins the run is marked canceled and an error matching domain.ErrCanceled
// is returned.
func (r *Runner) Drive(ctx context.Context, steps []Step, opts ...DriveOption) error {
	cfg := &driveConfig{finish: true}
	for _, opt := range opts {
		opt(cfg)
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return r.cancelRun(ctx, err)
		}

		var stepOpts []StepOption
		if s.Inputs != nil {
			stepOpts = append(stepOpts, WithInputs(s.Inputs))
		}
		if s.Artifacts != nil {
			stepOpts = append(stepOpts, WithArtifactsFn(s.Artifacts))
		}

		if _, err := r.RunStep(ctx, s.ID, s.Title, s.Work, stepOpts...); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return r.cancelRun(ctx, ctxErr)
			}
			if cfg.failRunOnError {
				if ferr := r.Finish(ctx, domain.RunFailed, "step "+s.ID+" failed"); ferr != nil {
					r.logger.Error("failed to mark run failed", "run_id", r.runID, "error", ferr)
				}
			}
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return r.cancelRun(ctx, err)
	}
	if cfg.finish {
		return r.Finish(ctx, domain.RunSuccess, "")
	}
	return nil
}

// Interrupted finishes the run as canceled when ctx has ended or err is a
// cancellation, and returns the cancellation error. Other errors pass through.
func (r *Runner) Interrupted(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return r.cancelRun(ctx, ctxErr)
	}
	if domain.KindOf(err) == domain.KindCanceled {
		return r.cancelRun(ctx, err)
	}
	return err
}

func (r *Runner) cancelRun(ctx context.Context, cause error) error {
	if err := r.Finish(ctx, domain.RunCanceled, "interrupted"); err != nil {
		r.logger.Error("failed to mark run canceled", "run_id", r.runID, "error", err)
	}
	return canceled("run.drive", cause)
}
