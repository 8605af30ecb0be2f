package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/statestore"
	"github.com/stevekinney/silvan-sub003/pkg/transcript"
)

// StateStore is the persistence the runner needs.
// *statestore.Store satisfies it.
type StateStore interface {
	Read(ctx context.Context, runID string) (*domain.RunState, error)
	Write(ctx context.Context, runID string, state *domain.RunState) (string, error)
	Update(ctx context.Context, runID string, fn func(*domain.RunState) error) (statestore.UpdateResult, error)
}

// ArtifactWriter persists step outputs. *artifacts.Store satisfies it.
type ArtifactWriter interface {
	Write(ctx context.Context, runID, stepID, name string, payload any) (domain.ArtifactEntry, error)
}

// AuditSink receives audit events. *audit.Log satisfies it.
type AuditSink interface {
	Append(ctx context.Context, event domain.Event) error
}

// NoteWriter appends diagnostic notes to the run transcript. *transcript.Transcript satisfies it.
type NoteWriter interface {
	Append(ctx context.Context, runID string, note transcript.Note) error
}

// Runner executes the steps of a single run.
// Steps run one at a time; a Runner is not meant to drive two steps concurrently.
type Runner struct {
	runID      string
	store      StateStore
	audit      AuditSink
	artifacts  ArtifactWriter
	transcript NoteWriter
	hooks      domain.StepHooks
	logger     *slog.Logger
	now        func() time.Time
	source     string
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithAudit configures the audit sink. Without one, events are dropped.
func WithAudit(sink AuditSink) Option {
	return func(r *Runner) {
		r.audit = sink
	}
}

// WithArtifacts configures the artifact store used for step outputs.
func WithArtifacts(w ArtifactWriter) Option {
	return func(r *Runner) {
		r.artifacts = w
	}
}

// WithTranscript configures where failure notes go.
func WithTranscript(w NoteWriter) Option {
	return func(r *Runner) {
		r.transcript = w
	}
}

// WithHooks configures lifecycle callbacks, e.g. metrics.
func WithHooks(hooks domain.StepHooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithSource sets the source stamped on audit events.
func WithSource(source string) Option {
	return func(r *Runner) {
		r.source = source
	}
}

// New creates a Runner for runID backed by store.
func New(runID string, store StateStore, opts ...Option) *Runner {
	r := &Runner{
		runID:  runID,
		store:  store,
		logger: logging.NewNop(),
		now:    time.Now,
		source: "runner",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID returns the run this runner owns.
func (r *Runner) RunID() string {
	return r.runID
}

// State reads the current run document.
func (r *Runner) State(ctx context.Context) (*domain.RunState, error) {
	return r.store.Read(ctx, r.runID)
}

// Emit appends a controller-defined audit event for this run.
// Like every audit append it is best-effort.
func (r *Runner) Emit(ctx context.Context, event domain.Event) {
	r.emit(ctx, event)
}

func (r *Runner) clock() time.Time {
	return r.now().UTC()
}

// emit appends an audit event. The journal is best-effort: a failed append is
// logged and never fails the operation that produced it.
func (r *Runner) emit(ctx context.Context, event domain.Event) {
	if r.audit == nil {
		return
	}
	event.RunID = r.runID
	if event.Source == "" {
		event.Source = r.source
	}
	if event.TS.IsZero() {
		event.TS = r.clock()
	}
	if err := r.audit.Append(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("audit append failed", "run_id", r.runID, "type", event.Type, "error", err)
	}
}

func (r *Runner) persisted() {
	if r.hooks.OnPersist != nil {
		r.hooks.OnPersist(r.runID)
	}
}
