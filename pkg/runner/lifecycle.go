package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/statestore"
)

// Start creates the run document, or resumes an existing run that has not finished.
// Starting over a finished run fails with domain.ErrInvalidTransition.
func (r *Runner) Start(ctx context.Context, phase string) (*domain.RunState, error) {
	existing, err := r.store.Read(ctx, r.runID)
	switch {
	case err == nil:
		if existing.Data.Run.Status.IsTerminal() {
			return nil, &domain.Error{
				Kind:    domain.KindInvariant,
				Op:      "run.start",
				Message: fmt.Sprintf("run %s already finished as %s", r.runID, existing.Data.Run.Status),
				Err:     domain.ErrInvalidTransition,
			}
		}
		r.emit(ctx, domain.Event{
			Type:    domain.EventRunStarted,
			Payload: map[string]any{"phase": existing.Data.Run.Phase, "resumed": true},
		})
		return existing, nil
	case !errors.Is(err, domain.ErrRunNotFound):
		return nil, err
	}

	state := domain.NewRunState(r.runID, phase, r.clock())
	digest, err := r.store.Write(ctx, r.runID, state)
	if err != nil {
		return nil, err
	}
	r.persisted()
	r.emit(ctx, domain.Event{
		Type:    domain.EventRunStarted,
		Payload: map[string]any{"phase": phase, "resumed": false, "digest": digest},
	})
	r.logger.Info("run started", "run_id", r.runID, "phase", phase)
	return state, nil
}

// Heartbeat refreshes the lease of a running step.
// It is a no-op, not an error, when the step is not running or holds no lease.
func (r *Runner) Heartbeat(ctx context.Context, stepID string) error {
	now := r.clock()
	_, err := r.store.Update(ctx, r.runID, func(st *domain.RunState) error {
		rec, ok := st.Data.Steps[stepID]
		if !ok || rec.Status != domain.StepRunning || rec.Lease == nil {
			return statestore.ErrNoChange
		}
		rec.Lease.HeartbeatAt = now
		return nil
	})
	return err
}

// KeepAlive heartbeats stepID every interval until the returned stop function is
// called or ctx ends. Stop waits for the background goroutine to exit.
func (r *Runner) KeepAlive(ctx context.Context, stepID string, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = domain.StaleLeaseThreshold / 4
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := r.Heartbeat(ctx, stepID); err != nil {
					r.logger.Warn("heartbeat failed", "run_id", r.runID, "step", stepID, "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}

// UpdateState is the sanctioned mutation entry point for phase controllers.
// fn edits the run data in place; returning statestore.ErrNoChange skips the write.
// A run.persisted event carrying the resulting digest is emitted every time.
func (r *Runner) UpdateState(ctx context.Context, fn func(*domain.RunData) error) (string, error) {
	now := r.clock()
	res, err := r.store.Update(ctx, r.runID, func(st *domain.RunState) error {
		before := st.Data.Run.Status
		if err := fn(&st.Data); err != nil {
			return err
		}
		after := st.Data.Run.Status
		if after != before && !before.CanTransition(after) {
			return &domain.Error{
				Kind:    domain.KindInvariant,
				Op:      "run.update",
				Message: fmt.Sprintf("run cannot move from %q to %q", before, after),
				Err:     domain.ErrInvalidTransition,
			}
		}
		st.Data.Run.UpdatedAt = now
		return nil
	})
	if err != nil {
		return "", err
	}

	payload := map[string]any{"digest": res.Digest, "changed": res.Diff != nil}
	if res.Diff != nil {
		r.persisted()
		payload["keys"] = res.Diff.Keys
	}
	r.emit(ctx, domain.Event{Type: domain.EventRunPersisted, Level: domain.LevelDebug, Payload: payload})
	return res.Digest, nil
}

// ChangePhase moves the run to phase to. Moving to the current phase is a no-op.
func (r *Runner) ChangePhase(ctx context.Context, to, reason string) error {
	var from string
	now := r.clock()
	res, err := r.store.Update(ctx, r.runID, func(st *domain.RunState) error {
		from = st.Data.Run.Phase
		if from == to {
			return statestore.ErrNoChange
		}
		if st.Data.Run.Status.IsTerminal() {
			return &domain.Error{
				Kind:    domain.KindInvariant,
				Op:      "run.phase",
				Message: fmt.Sprintf("run is %s", st.Data.Run.Status),
				Err:     domain.ErrInvalidTransition,
			}
		}
		st.Data.Run.Phase = to
		st.Data.Run.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}
	if res.Diff == nil {
		return nil
	}
	r.persisted()

	payload := map[string]any{"from": from, "to": to}
	if reason != "" {
		payload["reason"] = reason
	}
	r.emit(ctx, domain.Event{Type: domain.EventRunPhaseChanged, Payload: payload})
	r.logger.Info("phase changed", "run_id", r.runID, "from", from, "to", to)
	return nil
}

// Finish moves the run to a terminal status and emits run.finished.
func (r *Runner) Finish(ctx context.Context, status domain.RunStatus, reason string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish requires a terminal status, got %q", status)
	}
	ctx = context.WithoutCancel(ctx)
	now := r.clock()
	_, err := r.store.Update(ctx, r.runID, func(st *domain.RunState) error {
		return st.Data.Run.Transition(status, now)
	})
	if err != nil {
		return err
	}
	r.persisted()

	level := domain.LevelInfo
	switch status {
	case domain.RunFailed:
		level = domain.LevelError
	case domain.RunCanceled:
		level = domain.LevelWarn
	}
	payload := map[string]any{"status": string(status)}
	if reason != "" {
		payload["reason"] = reason
	}
	r.emit(ctx, domain.Event{Type: domain.EventRunFinished, Level: level, Payload: payload})
	if r.hooks.OnFinish != nil {
		r.hooks.OnFinish(r.runID, status)
	}
	r.logger.Info("run finished", "run_id", r.runID, "status", status)
	return nil
}

// WriteArtifact stores payload outside any step's work and indexes it under stepID.
// Operator decisions such as overrides and aborts are recorded this way.
func (r *Runner) WriteArtifact(ctx context.Context, stepID, name string, payload any) (domain.ArtifactEntry, error) {
	if r.artifacts == nil {
		return domain.ArtifactEntry{}, fmt.Errorf("no artifact store is configured")
	}
	entry, err := r.artifacts.Write(ctx, r.runID, stepID, name, payload)
	if err != nil {
		return domain.ArtifactEntry{}, err
	}
	_, err = r.store.Update(ctx, r.runID, func(st *domain.RunState) error {
		st.IndexArtifact(entry)
		return nil
	})
	if err != nil {
		return domain.ArtifactEntry{}, err
	}
	r.persisted()
	r.emit(ctx, domain.Event{
		Type: domain.EventArtifactWritten,
		Payload: map[string]any{
			"stepId": entry.StepID,
			"name":   entry.Name,
			"digest": entry.Digest,
			"kind":   string(entry.Kind),
		},
	})
	return entry, nil
}
