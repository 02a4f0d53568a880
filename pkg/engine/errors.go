package engine

import (
	"errors"
	"fmt"
)

// SchedulingError indicates that a job cannot be admitted or can no longer
// run: a precondition or dependency is unsatisfiable, a CanRun guard refused
// the job, or a provider job the dependency resolution relied on failed.
// Jobs that fail with a SchedulingError never run any steps (or, for a
// cascaded failure, never run any further steps).
type SchedulingError struct {
	// Message is the human-readable reason the job was refused.
	Message string

	// Job is the ID of the job the error belongs to, when known.
	Job string

	// Object is the object the unsatisfied condition refers to, if any.
	Object ObjectRef

	// Err is the underlying error, if the refusal was caused by one.
	Err error
}

// Error implements the error interface.
func (e *SchedulingError) Error() string {
	if !e.Object.IsZero() {
		return fmt.Sprintf("scheduling error (object=%s): %s", e.Object, e.Message)
	}
	return fmt.Sprintf("scheduling error: %s", e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *SchedulingError) Unwrap() error { return e.Err }

// WithJob attaches the owning job ID to the error.
func (e *SchedulingError) WithJob(id string) *SchedulingError {
	e.Job = id
	return e
}

// WithObject attaches the object the condition refers to.
func (e *SchedulingError) WithObject(ref ObjectRef) *SchedulingError {
	e.Object = ref
	return e
}

// NewSchedulingError creates a SchedulingError with a formatted message.
func NewSchedulingError(format string, args ...interface{}) *SchedulingError {
	return &SchedulingError{Message: fmt.Sprintf(format, args...)}
}

// IsSchedulingError reports whether err is (or wraps) a SchedulingError.
func IsSchedulingError(err error) bool {
	var e *SchedulingError
	return errors.As(err, &e)
}

// InvariantViolation indicates that the state machine contract was broken by
// the program itself, for example setting a state that is not in the object's
// declared state set. It is a defect, not a user-recoverable condition.
type InvariantViolation struct {
	Message string
	Object  ObjectRef
}

// Error implements the error interface.
func (e *InvariantViolation) Error() string {
	if !e.Object.IsZero() {
		return fmt.Sprintf("invariant violation (object=%s): %s", e.Object, e.Message)
	}
	return fmt.Sprintf("invariant violation: %s", e.Message)
}

// NewInvariantViolation creates an InvariantViolation with a formatted message.
func NewInvariantViolation(ref ObjectRef, format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{Object: ref, Message: fmt.Sprintf(format, args...)}
}

// IsInvariantViolation reports whether err is (or wraps) an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var e *InvariantViolation
	return errors.As(err, &e)
}
