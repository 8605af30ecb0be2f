// Package autofix runs bounded remediation attempts for failing verification.
//
// One call to Controller.Attempt runs at most one plan, apply and re-verify
// cycle. Every state it reaches is persisted to the run document before the
// next begins, so an interrupted attempt leaves an accurate record.
package autofix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Plan is a remediation plan. Its content is opaque to the controller.
type Plan struct {
	Summary string
	Steps   []string
}

// Planner turns verification failures into a plan.
type Planner interface {
	GeneratePlan(ctx context.Context, failures []domain.VerificationResult) (Plan, error)
}

// Executor applies a plan and returns a free-text result.
type Executor interface {
	ExecutePlan(ctx context.Context, plan Plan) (string, error)
}

// Verifier runs the verification commands.
type Verifier interface {
	Verify(ctx context.Context) (domain.VerificationReport, error)
}

// DiffSource reports working-tree change statistics.
type DiffSource interface {
	DiffStat(ctx context.Context) (domain.DiffStat, error)
}

// Recorder is the slice of the step runner the controller needs.
// *runner.Runner satisfies it.
type Recorder interface {
	State(ctx context.Context) (*domain.RunState, error)
	UpdateState(ctx context.Context, fn func(*domain.RunData) error) (string, error)
	Emit(ctx context.Context, event domain.Event)
}

// Config is the static part of the attempt policy.
type Config struct {
	Enabled     bool
	MaxAttempts int
	Apply       bool
	DryRun      bool
}

// Controller runs verification auto-fix attempts for one run.
type Controller struct {
	rec      Recorder
	planner  Planner
	executor Executor
	verifier Verifier
	diff     DiffSource
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option defines a functional option for configuring the Controller.
type Option func(*Controller)

// WithDiffSource enables before/after diff capture.
func WithDiffSource(d DiffSource) Option {
	return func(c *Controller) {
		c.diff = d
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a Controller.
func NewController(rec Recorder, planner Planner, executor Executor, verifier Verifier, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		rec:      rec,
		planner:  planner,
		executor: executor,
		verifier: verifier,
		cfg:      cfg,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attempt decides whether to remediate report and, if so, runs one attempt.
//
// Policy rejections are recorded as a skipped outcome and return a nil error.
// Plan and apply failures are recorded as failed with their reason code and
// returned as step_failure errors so the caller can decide how to escalate.
// The returned summary is always the last persisted one.
func (c *Controller) Attempt(ctx context.Context, report domain.VerificationReport, classified bool) (domain.AutoFixSummary, error) {
	failures := report.Failures()

	prior, err := c.previous(ctx)
	if err != nil {
		return domain.AutoFixSummary{}, err
	}

	summary := domain.AutoFixSummary{
		Attempts:     prior,
		MaxAttempts:  c.cfg.MaxAttempts,
		FailedChecks: checkNames(failures),
	}

	decision := ShouldAttempt(Policy{
		Enabled:     c.cfg.Enabled,
		MaxAttempts: c.cfg.MaxAttempts,
		Attempts:    prior,
		Classified:  classified,
		Apply:       c.cfg.Apply,
		DryRun:      c.cfg.DryRun,
	}, failures)
	if !decision.Attempt {
		summary.Status = domain.AttemptSkipped
		summary.ReasonCode = decision.ReasonCode
		c.logger.Info("auto-fix skipped", "reason", decision.ReasonCode, "attempts", prior)
		return summary, c.persist(ctx, &summary)
	}

	summary.Attempts = prior + 1
	summary.DiffBefore = c.diffStat(ctx)

	plan, err := c.planner.GeneratePlan(ctx, failures)
	if err != nil {
		return c.fail(ctx, &summary, ReasonPlanFailed, err)
	}
	summary.Status = domain.AttemptPlanned
	summary.PlanSummary = plan.Summary
	summary.PlanSteps = len(plan.Steps)
	if err := c.persist(ctx, &summary); err != nil {
		return summary, err
	}

	result, err := c.executor.ExecutePlan(ctx, plan)
	if err != nil {
		return c.fail(ctx, &summary, ReasonApplyFailed, err)
	}
	summary.Status = domain.AttemptApplied
	summary.ExecutorResult = result
	if err := c.persist(ctx, &summary); err != nil {
		return summary, err
	}

	after, err := c.verifier.Verify(ctx)
	summary.DiffAfter = c.diffStat(ctx)
	if err != nil {
		return c.fail(ctx, &summary, ReasonVerifyFailed, err)
	}

	remaining := after.Failures()
	if after.OK && len(remaining) == 0 {
		summary.Status = domain.AttemptSucceeded
		summary.ReasonCode = ""
		summary.FailedChecks = nil
	} else {
		summary.Status = domain.AttemptFailed
		summary.ReasonCode = ReasonStillFailing
		summary.FailedChecks = checkNames(remaining)
	}
	c.logger.Info("auto-fix attempt finished", "status", summary.Status, "attempt", summary.Attempts)
	return summary, c.persist(ctx, &summary)
}

func (c *Controller) previous(ctx context.Context) (int, error) {
	st, err := c.rec.State(ctx)
	if err != nil {
		return 0, err
	}
	if s := st.Data.VerificationAutoFixSummary; s != nil {
		return s.Attempts, nil
	}
	return 0, nil
}

func (c *Controller) fail(ctx context.Context, summary *domain.AutoFixSummary, reason string, cause error) (domain.AutoFixSummary, error) {
	summary.Status = domain.AttemptFailed
	summary.ReasonCode = reason
	c.logger.Warn("auto-fix attempt failed", "reason", reason, "error", cause)

	// Recording must survive a cancellation that interrupted the collaborator.
	if err := c.persist(context.WithoutCancel(ctx), summary); err != nil {
		return *summary, err
	}
	return *summary, &domain.Error{
		Kind:    domain.KindStepFailure,
		Op:      "autofix.attempt",
		Message: fmt.Sprintf("auto-fix %s", reason),
		Code:    reason,
		Details: map[string]any{"attempt": summary.Attempts},
		Err:     cause,
	}
}

func (c *Controller) persist(ctx context.Context, summary *domain.AutoFixSummary) error {
	summary.UpdatedAt = c.now().UTC()
	snapshot := *summary
	if _, err := c.rec.UpdateState(ctx, func(d *domain.RunData) error {
		d.VerificationAutoFixSummary = &snapshot
		return nil
	}); err != nil {
		return fmt.Errorf("failed to persist auto-fix summary: %w", err)
	}

	level := domain.LevelInfo
	if summary.Status == domain.AttemptFailed {
		level = domain.LevelWarn
	}
	c.rec.Emit(ctx, domain.Event{
		Type:  domain.EventAutoFix,
		Level: level,
		Payload: map[string]any{
			"status":     string(summary.Status),
			"reasonCode": summary.ReasonCode,
			"attempt":    summary.Attempts,
		},
	})
	return nil
}

// diffStat is diagnostic only; failures are logged and ignored.
func (c *Controller) diffStat(ctx context.Context) *domain.DiffStat {
	if c.diff == nil {
		return nil
	}
	stat, err := c.diff.DiffStat(ctx)
	if err != nil {
		c.logger.Debug("diff stat unavailable", "error", err)
		return nil
	}
	return &stat
}

func checkNames(results []domain.VerificationResult) []string {
	if len(results) == 0 {
		return nil
	}
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	return names
}
