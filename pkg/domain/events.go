package domain

import "time"

// EventType names an audit event.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventRunStep         EventType = "run.step"
	EventRunPersisted    EventType = "run.persisted"
	EventRunPhaseChanged EventType = "run.phase_changed"
	EventRunFinished     EventType = "run.finished"
	EventArtifactWritten EventType = "run.artifact"
	EventAutoFix         EventType = "verify.autofix"
	EventCIWait          EventType = "ci.wait"
)

// EventLevel is the severity of an audit event.
type EventLevel string

const (
	LevelDebug EventLevel = "debug"
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// Step statuses as reported in run.step payloads.
const (
	StepEventRunning   = "running"
	StepEventSucceeded = "succeeded"
	StepEventFailed    = "failed"
)

// EventError is the error detail carried by failed events.
type EventError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Event is one self-contained line of the audit log.
type Event struct {
	ID      string         `json:"id"`
	TS      time.Time      `json:"ts"`
	Level   EventLevel     `json:"level"`
	Source  string         `json:"source"`
	RunID   string         `json:"runId"`
	RepoID  string         `json:"repoId"`
	Type    EventType      `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   *EventError    `json:"error,omitempty"`
}

// StepHooks are optional callbacks fired by the step runner after each
// transition is durable.
type StepHooks struct {
	OnStepStart func(runID, stepID string)
	OnStepEnd   func(runID, stepID string, status StepStatus, elapsed time.Duration)
	OnPersist   func(runID string)
	OnFinish    func(runID string, status RunStatus)
}
