package agent

import (
	"errors"
	"fmt"
)

// CommError indicates the agent could not be reached or did not answer in
// time. Steps marked idempotent may be retried after a CommError; for any
// other step it is fatal to the owning job.
type CommError struct {
	// Host is the host the call was addressed to.
	Host string

	// Plugin is the agent plugin that was invoked.
	Plugin string

	// Err is the underlying transport or timeout error.
	Err error
}

// Error implements the error interface.
func (e *CommError) Error() string {
	return fmt.Sprintf("agent communication error (host=%s, plugin=%s): %v", e.Host, e.Plugin, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommError) Unwrap() error { return e.Err }

// ResultError indicates the agent answered but the payload was absent,
// malformed, or reported a plugin failure. Always fatal to the owning job.
type ResultError struct {
	Host    string
	Plugin  string
	Message string
}

// Error implements the error interface.
func (e *ResultError) Error() string {
	return fmt.Sprintf("agent result error (host=%s, plugin=%s): %s", e.Host, e.Plugin, e.Message)
}

// IsCommError reports whether err is (or wraps) a CommError.
func IsCommError(err error) bool {
	var e *CommError
	return errors.As(err, &e)
}

// IsResultError reports whether err is (or wraps) a ResultError.
func IsResultError(err error) bool {
	var e *ResultError
	return errors.As(err, &e)
}
