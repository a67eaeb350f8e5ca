// Package pipeline provides the durable step-workflow runner.
package pipeline

import (
	"errors"
	"fmt"
)

// The error taxonomy drives retry decisions:
//   - TransientError: network, timeout, rate-limit. Retryable.
//   - PermanentError: validation, content-safety rejection. Never retried.
//   - NotFoundError: missing entity or watchlist. Treated as an empty
//     result by collaborators, not a failure.

// TransientError wraps a failure that is expected to clear on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Returns nil for a nil err.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// PermanentError wraps a failure that will not clear on retry, such as
// malformed input or a content-safety rejection.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Op + ": " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError. Returns nil for a nil err.
func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Op: op, Err: err}
}

// NotFoundError reports a missing entity. Collaborators convert it into an
// empty result rather than a pipeline failure.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + e.Key
}

// IsTransient reports whether err is classified as retryable.
//
// A PermanentError anywhere in the chain wins over a TransientError
// wrapping it: once a failure is known permanent it stays permanent.
func IsTransient(err error) bool {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var tr *TransientError
	return errors.As(err, &tr)
}

// StepError reports a step that terminally failed after exhausting its
// retry budget (or failing permanently on the first attempt).
type StepError struct {
	RunID    string
	StepName string
	Attempts int
	Cause    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.StepName, e.Attempts, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

// RunnerError represents a configuration or store-level failure of the
// runner itself, as opposed to a step computation failure.
type RunnerError struct {
	Message string
	Code    string
}

func (e *RunnerError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
