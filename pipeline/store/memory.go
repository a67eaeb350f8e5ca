package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for:
//   - Testing and development
//   - Single-process pipelines where durability isn't required
//
// MemStore is thread-safe and supports concurrent access across runs.
// Data is lost when the process terminates; use SQLiteStore or MySQLStore
// when partial progress must survive restarts.
type MemStore struct {
	mu    sync.RWMutex
	runs  map[string]Run
	steps map[string]map[string]StepRecord // runID -> stepName -> record
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		runs:  make(map[string]Run),
		steps: make(map[string]map[string]StepRecord),
	}
}

func (m *MemStore) CreateRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return &ConflictError{RunID: run.ID}
	}

	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = RunPending
	}

	m.runs[run.ID] = run
	m.steps[run.ID] = make(map[string]StepRecord)
	return nil
}

func (m *MemStore) GetRun(_ context.Context, runID string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[runID]
	if !exists {
		return Run{}, ErrNotFound
	}
	return run, nil
}

func (m *MemStore) UpdateRunStatus(_ context.Context, runID string, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, exists := m.runs[runID]
	if !exists {
		return ErrNotFound
	}

	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	m.runs[runID] = run
	return nil
}

// DeleteRun removes the run and cascades to its step records.
func (m *MemStore) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[runID]; !exists {
		return ErrNotFound
	}

	delete(m.runs, runID)
	delete(m.steps, runID)
	return nil
}

func (m *MemStore) Get(_ context.Context, runID, stepName string) (StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, exists := m.steps[runID]
	if !exists {
		return StepRecord{}, ErrNotFound
	}

	record, exists := records[stepName]
	if !exists {
		return StepRecord{}, ErrNotFound
	}
	return record, nil
}

// Put stores a record under (runID, stepName). A prior succeeded record is
// immutable: Put returns ErrAlreadySucceeded without modifying it.
func (m *MemStore) Put(_ context.Context, runID, stepName string, record StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, exists := m.steps[runID]
	if !exists {
		// Runs created out-of-band (tests pre-populating records) are
		// tolerated; the record map is created lazily.
		records = make(map[string]StepRecord)
		m.steps[runID] = records
	}

	if prior, found := records[stepName]; found && prior.Status == StepSucceeded {
		return ErrAlreadySucceeded
	}

	now := time.Now().UTC()
	record.RunID = runID
	record.StepName = stepName
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	records[stepName] = record
	return nil
}

func (m *MemStore) ListSteps(_ context.Context, runID string) ([]StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	out := make([]StepRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StepName < out[j].StepName })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

// ConflictError reports an attempt to create a run whose ID already exists.
// One runner owns a run exclusively; a duplicate create is a caller bug.
type ConflictError struct {
	RunID string
}

func (e *ConflictError) Error() string {
	return "run already exists: " + e.RunID
}
