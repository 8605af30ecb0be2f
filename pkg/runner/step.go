package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/transcript"
)

// WorkFunc is a unit of work executed inside a step.
type WorkFunc func(ctx context.Context) (any, error)

// ArtifactsFunc maps a step result to named artifact payloads.
type ArtifactsFunc func(result any) map[string]any

type stepConfig struct {
	inputs      any
	artifactsFn ArtifactsFunc
}

// StepOption configures a single RunStep call.
type StepOption func(*stepConfig)

// WithInputs records a digest of v so later runs can detect changed inputs.
func WithInputs(v any) StepOption {
	return func(c *stepConfig) {
		c.inputs = v
	}
}

// WithArtifactsFn persists the payloads fn derives from the step result.
func WithArtifactsFn(fn ArtifactsFunc) StepOption {
	return func(c *stepConfig) {
		c.artifactsFn = fn
	}
}

// RunStep executes work as step stepID.
//
// The step is marked running with a fresh lease before work starts. On success
// the result digest and artifacts are recorded and the step is marked done; on
// failure the error is recorded, a note is added to the transcript and the error
// is returned unchanged. RunStep never swallows a work error.
//
// Cancellation is only checked before the step starts. Once work has run, its
// outcome is persisted even if ctx has been canceled in the meantime.
func (r *Runner) RunStep(ctx context.Context, stepID, title string, work WorkFunc, opts ...StepOption) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, canceled("step.start", err)
	}

	cfg := &stepConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	inputsDigest := ""
	if cfg.inputs != nil {
		d, err := domain.DigestValue(cfg.inputs)
		if err != nil {
			return nil, fmt.Errorf("failed to digest step inputs: %w", err)
		}
		inputsDigest = d
	}

	started := r.clock()
	lease := domain.Lease{LeaseID: ulid.Make().String(), StartedAt: started, HeartbeatAt: started}

	var attempt int
	_, err := r.store.Update(ctx, r.runID, func(st *domain.RunState) error {
		if st.Data.Run.Status.IsTerminal() {
			return &domain.Error{
				Kind:    domain.KindInvariant,
				Op:      "step.start",
				Message: fmt.Sprintf("run is %s", st.Data.Run.Status),
				Err:     domain.ErrInvalidTransition,
			}
		}
		rec := st.Step(stepID)
		if title != "" {
			rec.Title = title
		}
		if err := rec.Enter(lease, inputsDigest); err != nil {
			return err
		}
		st.Data.Run.Attempt++
		st.Data.Run.Step = stepID
		st.Data.Run.UpdatedAt = started
		attempt = st.Data.Run.Attempt
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.persisted()

	if r.hooks.OnStepStart != nil {
		r.hooks.OnStepStart(r.runID, stepID)
	}
	r.emit(ctx, domain.Event{
		Type:  domain.EventRunStep,
		Level: domain.LevelInfo,
		Payload: map[string]any{
			"stepId":  stepID,
			"title":   title,
			"status":  domain.StepEventRunning,
			"leaseId": lease.LeaseID,
			"attempt": attempt,
		},
	})
	r.logger.Debug("step started", "run_id", r.runID, "step", stepID, "lease", lease.LeaseID)

	result, workErr := work(ctx)

	// The outcome must be recorded even if the run was canceled while work ran.
	durable := context.WithoutCancel(ctx)

	if workErr == nil {
		if err := r.completeStep(durable, stepID, started, result, cfg); err != nil {
			var recErr *recordError
			if errors.As(err, &recErr) {
				return nil, err
			}
			workErr = err
		} else {
			return result, nil
		}
	}

	return nil, r.failStep(durable, stepID, started, workErr)
}

// recordError marks a failure to persist the step outcome itself.
type recordError struct{ err error }

func (e *recordError) Error() string { return "failed to record step outcome: " + e.err.Error() }
func (e *recordError) Unwrap() error { return e.err }

func (r *Runner) completeStep(ctx context.Context, stepID string, started time.Time, result any, cfg *stepConfig) error {
	outputsDigest := ""
	if result != nil {
		d, err := domain.DigestValue(result)
		if err != nil {
			r.logger.Warn("step result not digestible", "run_id", r.runID, "step", stepID, "error", err)
		} else {
			outputsDigest = d
		}
	}

	entries, err := r.writeArtifacts(ctx, stepID, result, cfg)
	if err != nil {
		return err
	}

	refs := make(map[string]string, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		refs[e.Name] = e.Path
		names = append(names, e.Name)
	}

	ended := r.clock()
	_, err = r.store.Update(ctx, r.runID, func(st *domain.RunState) error {
		if err := st.Step(stepID).Complete(ended, outputsDigest, refs); err != nil {
			return err
		}
		for _, e := range entries {
			st.IndexArtifact(e)
		}
		st.Data.Run.UpdatedAt = ended
		return nil
	})
	if err != nil {
		return &recordError{err: err}
	}
	r.persisted()

	elapsed := ended.Sub(started)
	if r.hooks.OnStepEnd != nil {
		r.hooks.OnStepEnd(r.runID, stepID, domain.StepDone, elapsed)
	}
	r.emit(ctx, domain.Event{
		Type:  domain.EventRunStep,
		Level: domain.LevelInfo,
		Payload: map[string]any{
			"stepId":        stepID,
			"status":        domain.StepEventSucceeded,
			"durationMs":    elapsed.Milliseconds(),
			"outputsDigest": outputsDigest,
			"artifacts":     names,
		},
	})
	r.logger.Debug("step succeeded", "run_id", r.runID, "step", stepID, "elapsed", elapsed)
	return nil
}

func (r *Runner) writeArtifacts(ctx context.Context, stepID string, result any, cfg *stepConfig) ([]domain.ArtifactEntry, error) {
	if cfg.artifactsFn == nil {
		return nil, nil
	}
	payloads := cfg.artifactsFn(result)
	if len(payloads) == 0 {
		return nil, nil
	}
	if r.artifacts == nil {
		return nil, fmt.Errorf("step %s produced artifacts but no artifact store is configured", stepID)
	}

	names := make([]string, 0, len(payloads))
	for name := range payloads {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]domain.ArtifactEntry, 0, len(names))
	for _, name := range names {
		entry, err := r.artifacts.Write(ctx, r.runID, stepID, name, payloads[name])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *Runner) failStep(ctx context.Context, stepID string, started time.Time, workErr error) error {
	stepErr := domain.NewStepError(workErr)
	ended := r.clock()

	_, err := r.store.Update(ctx, r.runID, func(st *domain.RunState) error {
		if err := st.Step(stepID).Fail(ended, stepErr); err != nil {
			return err
		}
		st.Data.Run.UpdatedAt = ended
		return nil
	})
	if err != nil {
		r.logger.Error("failed to record step failure", "run_id", r.runID, "step", stepID, "error", err)
		return errors.Join(workErr, &recordError{err: err})
	}
	r.persisted()

	if r.transcript != nil {
		note := transcript.Note{
			StepID: stepID,
			Text:   fmt.Sprintf("Step %s failed: %s", stepID, stepErr.Message),
			Meta:   map[string]any{"errorName": stepErr.Name, "code": stepErr.Code},
		}
		if err := r.transcript.Append(ctx, r.runID, note); err != nil {
			r.logger.Warn("transcript append failed", "run_id", r.runID, "error", err)
		}
	}

	elapsed := ended.Sub(started)
	if r.hooks.OnStepEnd != nil {
		r.hooks.OnStepEnd(r.runID, stepID, domain.StepFailed, elapsed)
	}
	r.emit(ctx, domain.Event{
		Type:  domain.EventRunStep,
		Level: domain.LevelError,
		Payload: map[string]any{
			"stepId":     stepID,
			"status":     domain.StepEventFailed,
			"durationMs": elapsed.Milliseconds(),
		},
		Error: &domain.EventError{Name: stepErr.Name, Message: stepErr.Message, Code: stepErr.Code},
	})
	r.logger.Debug("step failed", "run_id", r.runID, "step", stepID, "error", workErr)
	return workErr
}

// Run is the typed form of RunStep.
func Run[T any](ctx context.Context, r *Runner, stepID, title string, work func(ctx context.Context) (T, error), opts ...StepOption) (T, error) {
	var zero T
	out, err := r.RunStep(ctx, stepID, title, func(ctx context.Context) (any, error) {
		return work(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("step %s returned %T, not %T", stepID, out, zero)
	}
	return typed, nil
}

func canceled(op string, cause error) error {
	kind := domain.KindCanceled
	sentinel := domain.ErrCanceled
	if errors.Is(cause, context.DeadlineExceeded) {
		kind = domain.KindTimeout
		sentinel = domain.ErrTimeout
	}
	return &domain.Error{Kind: kind, Op: op, Message: sentinel.Message, Err: cause}
}
