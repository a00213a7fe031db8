// Package refresh implements the schema refresh orchestration engine.
// It sequences the Preflight -> Export -> Transfer -> Drop -> Import ->
// Validate phases and classifies every external outcome before acting on it.
package refresh

import (
	"errors"
	"fmt"
)

// ErrorClass categorizes a refresh failure for control-flow decisions.
type ErrorClass string

const (
	// ErrorClassConfig indicates a bad or missing request field.
	// Caught at preflight, never retried.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassConnectivity indicates an unreachable endpoint.
	ErrorClassConnectivity ErrorClass = "connectivity"

	// ErrorClassTransient indicates a temporary transfer failure
	// (network timeout, throttling) that the transfer layer may retry.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassDestructive indicates a drop/import hard failure.
	// Never retried automatically; manual intervention required.
	ErrorClassDestructive ErrorClass = "destructive"

	// ErrorClassTimeout indicates a phase exceeded its allotted duration.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassPolicy indicates a safety policy refused a destructive
	// operation.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassCancelled indicates the run was cancelled by the caller
	// between phases.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// Error is a classified refresh error carrying the phase it occurred in.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Phase is the phase during which the error occurred, if known.
	Phase Phase `json:"phase,omitempty"`

	// Diagnostics is captured output from the external tool, if any.
	Diagnostics string `json:"diagnostics,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("[%s] %s (phase=%s): %s", e.Class, e.Message, e.Phase, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithPhase adds phase context to the error.
func (e *Error) WithPhase(phase Phase) *Error {
	e.Phase = phase
	return e
}

// WithDiagnostics attaches captured tool output to the error.
func (e *Error) WithDiagnostics(text string) *Error {
	e.Diagnostics = text
	return e
}

// NewConfigError creates a new config-class error.
func NewConfigError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewConnectivityError creates a new connectivity-class error.
func NewConnectivityError(message string, err error) *Error {
	return &Error{Class: ErrorClassConnectivity, Message: message, Err: err}
}

// NewTransientError creates a new transient-class error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewDestructiveError creates a new destructive-class error.
func NewDestructiveError(message string, err error) *Error {
	return &Error{Class: ErrorClassDestructive, Message: message, Err: err}
}

// NewTimeoutError creates a new timeout-class error.
func NewTimeoutError(message string, err error) *Error {
	return &Error{Class: ErrorClassTimeout, Message: message, Err: err}
}

// NewPolicyError creates a new policy-class error.
func NewPolicyError(message string, err error) *Error {
	return &Error{Class: ErrorClassPolicy, Message: message, Err: err}
}

// NewCancelledError creates a new cancelled-class error.
func NewCancelledError(message string, err error) *Error {
	return &Error{Class: ErrorClassCancelled, Message: message, Err: err}
}

func classOf(err error) (ErrorClass, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsConfig returns true if the error is classified as a config error.
func IsConfig(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassConfig
}

// IsConnectivity returns true if the error is classified as connectivity.
func IsConnectivity(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassConnectivity
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassTransient
}

// IsDestructive returns true if the error is classified as destructive.
func IsDestructive(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassDestructive
}

// IsTimeout returns true if the error is classified as a timeout.
func IsTimeout(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassTimeout
}

// IsPolicy returns true if the error is classified as a policy refusal.
func IsPolicy(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassPolicy
}

// IsCancelled returns true if the error is classified as a cancellation.
func IsCancelled(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassCancelled
}

// IsRetryable returns true if the transfer layer may retry the operation.
// Only transient errors are retryable; everything else escalates.
func IsRetryable(err error) bool {
	return IsTransient(err)
}
