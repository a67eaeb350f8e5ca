// Package emit provides observability events for workflow execution.
package emit

// Event represents an observability event emitted during workflow execution.
//
// Events cover run and step lifecycle:
//   - run start/finish
//   - step start, memoized replay, success, retry, failure
//
// Events are delivered to an Emitter which can log them, convert them to
// OpenTelemetry spans, or buffer them for assertions in tests.
type Event struct {
	// RunID identifies the workflow execution that emitted this event.
	RunID string

	// EntityID identifies the entity whose pipeline emitted this event.
	// Empty for run-level events.
	EntityID string

	// StepName is the namespaced step identifier. Empty for run-level and
	// entity-level events.
	StepName string

	// Attempt is the attempt number for step events (1-indexed). Zero when
	// not applicable.
	Attempt int

	// Msg is a short machine-friendly description, e.g. "step_succeeded".
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": execution duration in milliseconds
	//   - "error": error details
	//   - "delay_ms": backoff delay before the next retry
	//   - "memoized": true when a cached result was replayed
	Meta map[string]interface{}
}

// Standard event messages.
const (
	MsgRunStarted    = "run_started"
	MsgRunFinished   = "run_finished"
	MsgStepStarted   = "step_started"
	MsgStepMemoized  = "step_memoized"
	MsgStepSucceeded = "step_succeeded"
	MsgStepRetrying  = "step_retrying"
	MsgStepFailed    = "step_failed"
)
