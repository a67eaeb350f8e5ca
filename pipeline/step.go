package pipeline

import (
	"context"
	"fmt"
	"time"
)

// StepFunc is the computation behind a named step. The returned value is
// JSON-marshaled into the step's checkpoint payload.
//
// Step computations may perform network I/O (inference calls, mail sends)
// and are NOT assumed idempotent — the runner's memoization exists exactly
// so that a completed computation is never re-invoked on replay.
type StepFunc func(ctx context.Context) (any, error)

// Step is a pure description of a unit of work: a name unique within the
// entity's pipeline plus the computation, with optional per-step overrides
// for retry policy and timeout.
type Step struct {
	// Name identifies the step within the run. The runner namespaces it by
	// entity ID before it reaches the store, so memoization is per-entity
	// inside a batch.
	Name string

	// Fn is the step's computation.
	Fn StepFunc

	// Retry overrides the runner's default retry policy when non-nil.
	Retry *RetryPolicy

	// Timeout overrides the runner's default per-step timeout when > 0.
	Timeout time.Duration
}

// invokeWithTimeout runs fn under a per-step deadline. Timeout precedence:
// step override > runner default > none. Panics inside the computation are
// converted to errors so a broken step cannot take down sibling entities.
func invokeWithTimeout(ctx context.Context, fn StepFunc, stepTimeout, defaultTimeout time.Duration) (result any, err error) {
	timeout := stepTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = Permanent("step", fmt.Errorf("panic: %v", r))
		}
	}()

	return fn(ctx)
}
