// Package http serves a read-only inspection API over the run store.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/artifacts"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Inspector is the read side of a workspace. *silvan.Workspace satisfies it.
type Inspector interface {
	ListRuns(ctx context.Context) ([]string, error)
	Inspect(ctx context.Context, runID string) (*domain.RunState, error)
	Convergence(ctx context.Context, runID string) (domain.RunConvergence, error)
	Events(ctx context.Context, runID string) ([]domain.Event, error)
	Artifact(ctx context.Context, runID, stepID, name string) (domain.ArtifactEntry, []byte, error)
}

// Server holds the handlers of the inspection API.
type Server struct {
	runs     Inspector
	previews *artifacts.PreviewCache
	metrics  http.Handler
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithPreviews serves ?preview=true artifact requests from cache.
func WithPreviews(cache *artifacts.PreviewCache) Option {
	return func(s *Server) {
		s.previews = cache
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for the inspection API.
func NewHandler(runs Inspector, opts ...Option) http.Handler {
	s := &Server{runs: runs, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.ListRuns)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.GetRun)
			r.Get("/convergence", s.GetConvergence)
			r.Get("/events", s.GetEvents)
			r.Get("/artifacts/{stepID}/{name}", s.GetArtifact)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunSummary is one entry of GET /runs.
type RunSummary struct {
	RunID       string                   `json:"runId"`
	Status      domain.RunStatus         `json:"status"`
	Phase       string                   `json:"phase"`
	Step        string                   `json:"step,omitempty"`
	UpdatedAt   time.Time                `json:"updatedAt"`
	Convergence domain.ConvergenceStatus `json:"convergence"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRuns handles the GET /runs request. Unreadable runs are left out.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.runs.ListRuns(r.Context())
	if err != nil {
		s.writeError(w, "ListRuns", err)
		return
	}
	out := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		st, err := s.runs.Inspect(r.Context(), id)
		if err != nil {
			s.logger.Warn("skipping unreadable run", "run_id", id, "error", err)
			continue
		}
		conv, err := s.runs.Convergence(r.Context(), id)
		if err != nil {
			s.logger.Warn("skipping run without verdict", "run_id", id, "error", err)
			continue
		}
		out = append(out, RunSummary{
			RunID:       id,
			Status:      st.Data.Run.Status,
			Phase:       st.Data.Run.Phase,
			Step:        st.Data.Run.Step,
			UpdatedAt:   st.Data.Run.UpdatedAt,
			Convergence: conv.Status,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetRun handles the GET /runs/{runID} request.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	st, err := s.runs.Inspect(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeError(w, "GetRun", err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// GetConvergence handles the GET /runs/{runID}/convergence request.
func (s *Server) GetConvergence(w http.ResponseWriter, r *http.Request) {
	conv, err := s.runs.Convergence(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeError(w, "GetConvergence", err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

// GetEvents handles the GET /runs/{runID}/events request.
// The optional type and level query parameters filter the result.
func (s *Server) GetEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := s.runs.Inspect(r.Context(), runID); err != nil {
		s.writeError(w, "GetEvents", err)
		return
	}
	events, err := s.runs.Events(r.Context(), runID)
	if err != nil {
		s.writeError(w, "GetEvents", err)
		return
	}

	typ := domain.EventType(r.URL.Query().Get("type"))
	level := domain.EventLevel(r.URL.Query().Get("level"))
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if typ != "" && ev.Type != typ {
			continue
		}
		if level != "" && ev.Level != level {
			continue
		}
		out = append(out, ev)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetArtifact handles the GET /runs/{runID}/artifacts/{stepID}/{name} request.
// With ?preview=true and a preview cache configured, a truncated text preview is returned.
func (s *Server) GetArtifact(w http.ResponseWriter, r *http.Request) {
	runID, stepID, name := chi.URLParam(r, "runID"), chi.URLParam(r, "stepID"), chi.URLParam(r, "name")

	if r.URL.Query().Get("preview") == "true" && s.previews != nil {
		st, err := s.runs.Inspect(r.Context(), runID)
		if err != nil {
			s.writeError(w, "GetArtifact", err)
			return
		}
		entry, ok := st.Data.ArtifactsIndex[stepID][name]
		if !ok {
			s.writeError(w, "GetArtifact", &domain.Error{Kind: domain.KindNotFound, Message: "artifact not found"})
			return
		}
		text, err := s.previews.Preview(r.Context(), entry)
		if err != nil {
			s.writeError(w, "GetArtifact", err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Artifact-Digest", entry.Digest)
		_, _ = w.Write([]byte(text))
		return
	}

	entry, data, err := s.runs.Artifact(r.Context(), runID, stepID, name)
	if err != nil {
		s.writeError(w, "GetArtifact", err)
		return
	}
	contentType := "application/json"
	if entry.Kind == domain.ArtifactText {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Artifact-Digest", entry.Digest)
	_, _ = w.Write(data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch {
	case kind == domain.KindNotFound:
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRunID):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = 499
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Kind: string(kind)})
}
