// Package store provides persistence for workflow runs and step checkpoints.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run or step record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadySucceeded is returned by Put when a succeeded record already
// exists for the same (runID, stepName) key. A succeeded record is immutable:
// it is the memoization contract that protects non-idempotent steps (mail
// sends, billed inference calls) from re-execution. Callers may treat the
// sentinel as a benign no-op or surface it loudly, but the stored record is
// never replaced either way.
var ErrAlreadySucceeded = errors.New("step record already succeeded")

// StepStatus is the lifecycle state of a single step record.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// TriggerKind identifies what fired a run.
type TriggerKind string

const (
	TriggerEvent     TriggerKind = "event"
	TriggerScheduled TriggerKind = "scheduled"
)

// Run identifies one workflow execution. A run is created when a trigger
// fires and owns its step records: deleting the run reclaims them.
type Run struct {
	ID          string
	TriggerKind TriggerKind
	Status      RunStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StepRecord is the checkpointed result of a named step within a run.
//
// The key is (RunID, StepName). At most one succeeded record exists per key;
// once written it is immutable. Payload is an opaque JSON document produced
// by the step's computation.
type StepRecord struct {
	RunID     string
	StepName  string
	Status    StepStatus
	Attempt   int
	Payload   json.RawMessage
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists runs and step records.
//
// Implementations must provide keyed isolation: concurrent runs with
// different run IDs never observe each other's records, and no lock spans
// unrelated keys. Writes of succeeded records must be atomic (never
// observable as partial).
//
// Backends:
//   - In-memory (memory.go) for tests and development
//   - SQLite (sqlite.go) for single-process durability
//   - MySQL (mysql.go) for shared deployments
type Store interface {
	// CreateRun registers a new run. Returns an error if the run ID exists.
	CreateRun(ctx context.Context, run Run) error

	// GetRun retrieves a run by ID. Returns ErrNotFound if absent.
	GetRun(ctx context.Context, runID string) (Run, error)

	// UpdateRunStatus transitions a run's status.
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error

	// DeleteRun removes a run and cascades to all of its step records.
	DeleteRun(ctx context.Context, runID string) error

	// Get retrieves the step record for (runID, stepName).
	// Returns ErrNotFound if no attempt has been recorded.
	Get(ctx context.Context, runID, stepName string) (StepRecord, error)

	// Put writes a step record for (runID, stepName), replacing any prior
	// record for the key — unless the prior record succeeded, in which case
	// Put returns ErrAlreadySucceeded and leaves the record untouched.
	Put(ctx context.Context, runID, stepName string, record StepRecord) error

	// ListSteps returns all step records for a run, ordered by step name.
	// An empty slice (not an error) is returned for a run with no records.
	ListSteps(ctx context.Context, runID string) ([]StepRecord, error)

	// Close releases backend resources.
	Close() error
}

// StepName namespaces a step by the entity it belongs to, so that
// memoization inside a batch run is per-entity. The empty entity ID
// returns the bare name (single-entity runs).
func StepName(entityID, name string) string {
	if entityID == "" {
		return name
	}
	return entityID + "/" + name
}
