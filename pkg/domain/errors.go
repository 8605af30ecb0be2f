package domain

import (
	"context"
	"errors"
	"strings"
)

// ErrorKind is the closed set of failure categories the orchestrator distinguishes.
type ErrorKind string

const (
	// KindTransient covers infrastructure failures such as lock timeouts or disk errors.
	KindTransient ErrorKind = "transient"
	// KindStepFailure is a unit of work that returned an error.
	KindStepFailure ErrorKind = "step_failure"
	// KindPolicyRejection is a decision not to act. It is recorded, not raised.
	KindPolicyRejection ErrorKind = "policy_rejection"
	// KindVerificationFailure is failing verification output used as input data.
	KindVerificationFailure ErrorKind = "verification_failure"
	KindNotFound            ErrorKind = "not_found"
	KindInvariant           ErrorKind = "invariant"
	KindCanceled            ErrorKind = "canceled"
	KindTimeout             ErrorKind = "timeout"
)

var (
	// ErrRunNotFound is returned when a run document is missing or unreadable.
	ErrRunNotFound = &Error{Kind: KindNotFound, Message: "run not found"}

	// ErrInvalidTransition is returned when a run or step would move backwards.
	ErrInvalidTransition = &Error{Kind: KindInvariant, Message: "invalid state transition"}

	// ErrLockTimeout is returned when the store lock cannot be acquired in time.
	ErrLockTimeout = &Error{Kind: KindTransient, Message: "lock acquisition timed out"}

	// ErrCanceled is returned when a run is interrupted between steps.
	ErrCanceled = &Error{Kind: KindCanceled, Message: "run canceled"}

	// ErrTimeout is returned when a bounded wait runs out of budget.
	ErrTimeout = &Error{Kind: KindTimeout, Message: "timed out"}

	// ErrInvalidRunID is returned for run ids that cannot name a single file.
	ErrInvalidRunID = &Error{Kind: KindInvariant, Message: "invalid run id"}
)

// Error is the structured error used across the orchestrator.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Code    string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Err != nil && e.Err != error(e) {
		if sentinel, ok := e.Err.(*Error); !ok || sentinel.Message != e.Message {
			b.WriteString(": ")
			b.WriteString(e.Err.Error())
		}
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Message == "" || e.Message == t.Message)
}

// KindOf classifies any error into an ErrorKind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindTransient
}

// NewStepError converts a work failure into its persisted form.
func NewStepError(err error) StepError {
	se := StepError{Name: "Error", Message: err.Error()}
	var de *Error
	if errors.As(err, &de) {
		se.Name = string(de.Kind)
		se.Code = de.Code
		return se
	}
	switch KindOf(err) {
	case KindCanceled:
		se.Name = string(KindCanceled)
	case KindTimeout:
		se.Name = string(KindTimeout)
	}
	return se
}
