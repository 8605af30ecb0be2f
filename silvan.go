package silvan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/artifacts"
	"github.com/stevekinney/silvan-sub003/pkg/audit"
	"github.com/stevekinney/silvan-sub003/pkg/convergence"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stevekinney/silvan-sub003/pkg/observability"
	"github.com/stevekinney/silvan-sub003/pkg/persistence/middleware"
	"github.com/stevekinney/silvan-sub003/pkg/ports"
	"github.com/stevekinney/silvan-sub003/pkg/runner"
	"github.com/stevekinney/silvan-sub003/pkg/statestore"
	"github.com/stevekinney/silvan-sub003/pkg/transcript"
)

// OperatorStep is the step id under which operator decisions are recorded.
const OperatorStep = "operator"

// Workspace wires the state store, audit log, artifact store and transcripts of
// one repository together.
type Workspace struct {
	layout      statestore.Layout
	store       *statestore.Store
	audit       *audit.Log
	artifacts   *artifacts.Store
	transcripts *transcript.Transcript
	metrics     *observability.Metrics
	hooks       domain.StepHooks
	logger      *slog.Logger
	now         func() time.Time

	fs          afero.Fs
	backend     ports.RunStore
	locker      ports.Locker
	middlewares []middleware.Middleware
	storeOpts   []statestore.Option
}

// Option defines a functional option for configuring the Workspace.
type Option func(*Workspace)

// WithBackend replaces the default file backend for run documents.
func WithBackend(backend ports.RunStore) Option {
	return func(w *Workspace) {
		w.backend = backend
	}
}

// WithLocker replaces the default file locker.
func WithLocker(locker ports.Locker) Option {
	return func(w *Workspace) {
		w.locker = locker
	}
}

// WithMiddleware wraps the run document backend, e.g. with encryption.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Workspace) {
		w.middlewares = append(w.middlewares, mws...)
	}
}

// WithFs replaces the filesystem used for audit logs, artifacts and transcripts.
func WithFs(fs afero.Fs) Option {
	return func(w *Workspace) {
		w.fs = fs
	}
}

// WithMetrics records step and run metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Workspace) {
		w.metrics = m
	}
}

// WithHooks registers additional lifecycle hooks for every runner.
func WithHooks(hooks domain.StepHooks) Option {
	return func(w *Workspace) {
		w.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		w.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) {
		w.now = now
	}
}

// WithStoreOptions passes extra options to statestore.Open.
func WithStoreOptions(opts ...statestore.Option) Option {
	return func(w *Workspace) {
		w.storeOpts = append(w.storeOpts, opts...)
	}
}

// Open opens the workspace rooted at layout.
func Open(ctx context.Context, layout statestore.Layout, opts ...Option) (*Workspace, error) {
	w := &Workspace{
		layout: layout,
		logger: logging.NewNop(),
		now:    time.Now,
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(w)
	}

	storeOpts := []statestore.Option{statestore.WithLogger(w.logger)}
	if w.backend != nil || len(w.middlewares) > 0 {
		backend := w.backend
		if backend == nil {
			backend = statestore.DefaultBackend(layout, w.logger)
		}
		storeOpts = append(storeOpts, statestore.WithBackend(middleware.Chain(backend, w.middlewares...)))
	}
	if w.locker != nil {
		storeOpts = append(storeOpts, statestore.WithLocker(w.locker))
	}
	store, err := statestore.Open(ctx, layout, append(storeOpts, w.storeOpts...)...)
	if err != nil {
		return nil, err
	}
	w.store = store

	w.audit = audit.New(layout.Audit,
		audit.WithFs(w.fs),
		audit.WithRepoID(layout.RepoID),
		audit.WithLogger(w.logger),
		audit.WithClock(w.now),
	)
	w.artifacts = artifacts.New(layout.Artifacts, artifacts.WithFs(w.fs), artifacts.WithClock(w.now))
	w.transcripts = transcript.New(layout.Conversations, transcript.WithFs(w.fs), transcript.WithClock(w.now))
	return w, nil
}

// Close releases the store lock if it is still held.
func (w *Workspace) Close(ctx context.Context) error {
	return w.store.Close(ctx)
}

// Layout returns the on-disk layout.
func (w *Workspace) Layout() statestore.Layout {
	return w.layout
}

// Store returns the underlying state store.
func (w *Workspace) Store() *statestore.Store {
	return w.store
}

// Artifacts returns the artifact store.
func (w *Workspace) Artifacts() *artifacts.Store {
	return w.artifacts
}

// Metrics returns the metrics collectors, or nil when none were configured.
func (w *Workspace) Metrics() *observability.Metrics {
	return w.metrics
}

// NewRunID returns a fresh, lexically sortable run id.
func (w *Workspace) NewRunID() string {
	return strings.ToLower(ulid.Make().String())
}

// Runner returns a step runner for runID wired to this workspace.
func (w *Workspace) Runner(runID string, opts ...runner.Option) *runner.Runner {
	hooks := w.hooks
	if w.metrics != nil {
		hooks = observability.Chain(w.metrics.Hooks(), w.hooks)
	}
	base := []runner.Option{
		runner.WithAudit(w.audit),
		runner.WithArtifacts(w.artifacts),
		runner.WithTranscript(w.transcripts),
		runner.WithHooks(hooks),
		runner.WithLogger(w.logger),
		runner.WithClock(w.now),
	}
	return runner.New(runID, w.store, append(base, opts...)...)
}

// ListRuns returns the ids of every stored run.
func (w *Workspace) ListRuns(ctx context.Context) ([]string, error) {
	return w.store.List(ctx)
}

// Inspect reads the run document.
func (w *Workspace) Inspect(ctx context.Context, runID string) (*domain.RunState, error) {
	return w.store.Read(ctx, runID)
}

// Convergence derives the current verdict for runID.
func (w *Workspace) Convergence(ctx context.Context, runID string) (domain.RunConvergence, error) {
	st, err := w.store.Read(ctx, runID)
	if err != nil {
		return domain.RunConvergence{}, err
	}
	return convergence.Derive(convergence.Input{State: st, Now: w.now().UTC()}), nil
}

// Events returns the audit events recorded for runID.
func (w *Workspace) Events(ctx context.Context, runID string) ([]domain.Event, error) {
	return w.audit.Read(ctx, runID)
}

// Transcript returns the notes recorded for runID.
func (w *Workspace) Transcript(ctx context.Context, runID string) ([]transcript.Note, error) {
	return w.transcripts.Read(ctx, runID)
}

// Report combines audit analytics with cross-check findings for one run.
type Report struct {
	State       *domain.RunState      `json:"state"`
	Convergence domain.RunConvergence `json:"convergence"`
	Summary     audit.Summary         `json:"summary"`
	Findings    []audit.Finding       `json:"findings,omitempty"`
}

// Analyze builds a Report for runID. Findings are diagnostics only.
func (w *Workspace) Analyze(ctx context.Context, runID string) (Report, error) {
	st, err := w.store.Read(ctx, runID)
	if err != nil {
		return Report{}, err
	}
	events, err := w.audit.Read(ctx, runID)
	if err != nil {
		return Report{}, err
	}
	now := w.now().UTC()
	return Report{
		State:       st,
		Convergence: convergence.Derive(convergence.Input{State: st, Now: now}),
		Summary:     audit.Summarize(events),
		Findings:    audit.CrossCheck(st, events, now),
	}, nil
}

// Artifact looks up an indexed artifact and reads its content.
func (w *Workspace) Artifact(ctx context.Context, runID, stepID, name string) (domain.ArtifactEntry, []byte, error) {
	st, err := w.store.Read(ctx, runID)
	if err != nil {
		return domain.ArtifactEntry{}, nil, err
	}
	entry, ok := st.Data.ArtifactsIndex[stepID][name]
	if !ok {
		return domain.ArtifactEntry{}, nil, &domain.Error{
			Kind:    domain.KindNotFound,
			Op:      "artifact.read",
			Message: fmt.Sprintf("artifact %s/%s not found", stepID, name),
			Details: map[string]any{"runId": runID, "stepId": stepID, "name": name},
		}
	}
	data, err := w.artifacts.Read(ctx, entry)
	if err != nil {
		return entry, nil, err
	}
	return entry, data, nil
}

// OverrideRecord is the payload of an overrides artifact.
type OverrideRecord struct {
	Reason string    `json:"reason"`
	By     string    `json:"by,omitempty"`
	At     time.Time `json:"at"`
}

// Override records an operator decision to proceed despite local gate blockers.
// Once written, the gate no longer blocks convergence for this run.
func (w *Workspace) Override(ctx context.Context, runID, reason, by string) (domain.ArtifactEntry, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.ArtifactEntry{}, errors.New("an override needs a reason")
	}
	r := w.Runner(runID, runner.WithSource("operator"))
	if _, err := r.State(ctx); err != nil {
		return domain.ArtifactEntry{}, err
	}
	return r.WriteArtifact(ctx, OperatorStep, domain.ArtifactOverrides, OverrideRecord{Reason: reason, By: by, At: w.now().UTC()})
}

// Abort records an abort artifact and finishes the run as canceled.
// Aborting a run that already finished only records the artifact.
func (w *Workspace) Abort(ctx context.Context, runID, reason, by string) error {
	r := w.Runner(runID, runner.WithSource("operator"))
	st, err := r.State(ctx)
	if err != nil {
		return err
	}
	if _, err := r.WriteArtifact(ctx, OperatorStep, domain.ArtifactAbort, OverrideRecord{Reason: reason, By: by, At: w.now().UTC()}); err != nil {
		return err
	}
	if st.Data.Run.Status.IsTerminal() {
		return nil
	}
	return r.Finish(ctx, domain.RunCanceled, reason)
}
