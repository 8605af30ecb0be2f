package domain

import (
	"fmt"
	"time"
)

// DocumentVersion is the schema version stamped on every persisted run document.
const DocumentVersion = "1.0.0"

// RunStatus is the coarse lifecycle status of a run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFailed   RunStatus = "failed"
	RunSuccess  RunStatus = "success"
	RunCanceled RunStatus = "canceled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunFailed || s == RunSuccess || s == RunCanceled
}

// CanTransition reports whether a run may move from s to next.
// Runs only move forward: running -> {failed, success, canceled}.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case "", RunRunning:
		return next == RunRunning || next.IsTerminal()
	default:
		return false
	}
}

// RunRecord is the single mutable pointer to "where we are" in a run.
type RunRecord struct {
	Status    RunStatus `json:"status"`
	Phase     string    `json:"phase"`
	Step      string    `json:"step,omitempty"`
	Attempt   int       `json:"attempt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transition moves the run to next, enforcing forward-only semantics.
func (r *RunRecord) Transition(next RunStatus, at time.Time) error {
	if !r.Status.CanTransition(next) {
		return &Error{
			Kind:    KindInvariant,
			Op:      "run.transition",
			Message: fmt.Sprintf("run cannot move from %q to %q", r.Status, next),
			Err:     ErrInvalidTransition,
		}
	}
	r.Status = next
	r.UpdatedAt = at
	return nil
}

// RunState is the versioned envelope persisted once per run.
type RunState struct {
	Version string  `json:"version"`
	RunID   string  `json:"runId"`
	Data    RunData `json:"data"`
}

// NewRunState creates a fresh document for runID with empty steps and artifact index.
func NewRunState(runID, phase string, now time.Time) *RunState {
	return &RunState{
		Version: DocumentVersion,
		RunID:   runID,
		Data: RunData{
			Run: RunRecord{
				Status:    RunRunning,
				Phase:     phase,
				UpdatedAt: now,
			},
			Steps:          make(map[string]*StepRecord),
			ArtifactsIndex: make(map[string]map[string]ArtifactEntry),
		},
	}
}

// Step returns the record for stepID, creating a not_started record if absent.
func (s *RunState) Step(stepID string) *StepRecord {
	if s.Data.Steps == nil {
		s.Data.Steps = make(map[string]*StepRecord)
	}
	rec, ok := s.Data.Steps[stepID]
	if !ok {
		rec = &StepRecord{Status: StepNotStarted}
		s.Data.Steps[stepID] = rec
	}
	return rec
}

// IndexArtifact records entry under (entry.StepID, entry.Name), replacing any
// previous entry for the same key.
func (s *RunState) IndexArtifact(entry ArtifactEntry) {
	if s.Data.ArtifactsIndex == nil {
		s.Data.ArtifactsIndex = make(map[string]map[string]ArtifactEntry)
	}
	byName, ok := s.Data.ArtifactsIndex[entry.StepID]
	if !ok {
		byName = make(map[string]ArtifactEntry)
		s.Data.ArtifactsIndex[entry.StepID] = byName
	}
	byName[entry.Name] = entry
}

// Artifacts flattens the artifact index into a list.
func (s *RunState) Artifacts() []ArtifactEntry {
	var out []ArtifactEntry
	for _, byName := range s.Data.ArtifactsIndex {
		for _, entry := range byName {
			out = append(out, entry)
		}
	}
	SortArtifacts(out)
	return out
}

// StaleSteps returns the ids of running steps whose lease has gone stale.
func (s *RunState) StaleSteps(now time.Time) []string {
	var ids []string
	for id, rec := range s.Data.Steps {
		if rec.Status == StepRunning && rec.Lease != nil && rec.Lease.IsStale(now) {
			ids = append(ids, id)
		}
	}
	sortStrings(ids)
	return ids
}

// Clone returns a deep copy via JSON round-trip so callers can mutate freely.
func (s *RunState) Clone() (*RunState, error) {
	raw, err := MarshalDocument(s)
	if err != nil {
		return nil, err
	}
	return UnmarshalDocument(raw)
}
