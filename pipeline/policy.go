package pipeline

import (
	"errors"
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy indicates a RetryPolicy with impossible constraints.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy defines automatic retry configuration for transient step failures.
//
// When a step fails, the policy determines whether the failure is retryable
// and how long to wait before the next attempt. Exponential backoff with
// jitter spreads retries out so a batch of entities hitting the same
// transient failure does not produce a synchronized retry storm against the
// inference or mail collaborators.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of execution attempts, including
	// the initial attempt. Must be >= 1; a value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between retries.
	// The actual delay is min(BaseDelay * 2^attempt, MaxDelay) + jitter.
	BaseDelay time.Duration

	// MaxDelay caps exponential growth. Zero means no cap.
	MaxDelay time.Duration

	// Retryable determines whether an error is worth retrying.
	// If nil, no errors are retried.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the standard policy: three attempts, half a
// second base delay, thirty second cap, transient errors only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Retryable:   IsTransient,
	}
}

// Validate checks the policy's constraints:
//   - MaxAttempts must be >= 1
//   - MaxDelay, when set alongside BaseDelay, must be >= BaseDelay
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.BaseDelay < 0 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// computeBackoff calculates the delay before retrying a failed step.
//
// delay = min(base * 2^attempt, maxDelay) + jitter(0, base)
//
// The exponential component doubles the delay with each retry, reducing load
// on failing collaborators. Jitter randomizes retry timing across concurrent
// entity pipelines to avoid thundering herd.
//
// attempt is zero-based (0 = first retry). rng may be nil, in which case the
// global source is used.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}

	// Cap the shift so large attempt counts cannot overflow the delay.
	shift := attempt
	if shift > 20 {
		shift = 20
	}
	exponentialDelay := base * (1 << shift)
	if maxDelay > 0 && exponentialDelay > maxDelay {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		// Jitter for retry timing, not security.
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404
	}

	return exponentialDelay + jitter
}
