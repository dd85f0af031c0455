package wizard

import (
	"errors"
	"fmt"
)

var (
	// ErrInFlight is returned when the same operation is already running.
	ErrInFlight = errors.New("operation already in progress")
	// ErrStale is returned when a response arrived after the session moved on.
	// The response is discarded.
	ErrStale = errors.New("response superseded by a newer action")
)

// GenericFailureMessage is shown when a failed call carries no server text.
const GenericFailureMessage = "Something went wrong. Please try again."

// Validation error codes
const (
	CodeNoFiles             = "no_files"
	CodeNoFacts             = "no_facts"
	CodeNoSignals           = "no_signals"
	CodeConflictNotFound    = "conflict_not_found"
	CodeUnresolvedConflicts = "unresolved_conflicts"
	CodeStepLocked          = "step_locked"
	CodeUnknownStep         = "unknown_step"
	CodeNoNextStep          = "no_next_step"
	CodeNoPreviousStep      = "no_previous_step"
	CodeNoTimeline          = "no_timeline"
	CodeNoRecommendation    = "no_recommendation"
	CodeNoRationale         = "no_rationale"
	CodeInvalidEvent        = "invalid_event"
	CodeInvalidFile         = "invalid_file"
	CodeInvalidValue        = "invalid_value"
	CodeAlreadyEscalated    = "already_escalated"
)

// ValidationError is a locally detected problem with a user action
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(code, format string, args ...interface{}) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ExternalError is a failed backend call. The session is left untouched.
type ExternalError struct {
	Op  Operation
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// UserMessage returns the server-supplied error text when the cause carries
// one, else a generic retry hint.
func (e *ExternalError) UserMessage() string {
	var um interface{ UserMessage() string }
	if errors.As(e.Err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return GenericFailureMessage
}
