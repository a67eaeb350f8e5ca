package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps runs and step checkpoints in a single-file database. Designed for:
//   - Development and single-process deployments with zero setup
//   - Durability across process restarts (the replay guarantee depends on it)
//
// SQLiteStore uses WAL mode for concurrent reads and transactional writes so
// a succeeded record is never observable as partial.
//
// Schema:
//   - workflow_runs: one row per run
//   - workflow_steps: one row per (run_id, step_name), succeeded rows immutable
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a SQLite-backed store.
//
// The path is the database file location; ":memory:" yields an in-memory
// database that is still useful for exercising the SQL paths in tests.
// Tables are created on first use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports a single writer; keep the pool at one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id TEXT PRIMARY KEY,
			trigger_kind TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create workflow_runs table: %w", err)
	}

	stepsTable := `
		CREATE TABLE IF NOT EXISTS workflow_steps (
			run_id TEXT NOT NULL,
			step_name TEXT NOT NULL,
			status TEXT NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			payload TEXT,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (run_id, step_name),
			FOREIGN KEY (run_id) REFERENCES workflow_runs(run_id) ON DELETE CASCADE
		)
	`
	if _, err := s.db.ExecContext(ctx, stepsTable); err != nil {
		return fmt.Errorf("failed to create workflow_steps table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_steps_run_id ON workflow_steps(run_id)"); err != nil {
		return fmt.Errorf("failed to create idx_steps_run_id: %w", err)
	}

	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.Status == "" {
		run.Status = RunPending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (run_id, trigger_kind, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO NOTHING
	`, run.ID, string(run.TriggerKind), string(run.Status), run.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ConflictError{RunID: run.ID}
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	var trigger, status string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, trigger_kind, status, created_at, updated_at
		FROM workflow_runs WHERE run_id = ?
	`, runID).Scan(&run.ID, &trigger, &status, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	run.TriggerKind = TriggerKind(trigger)
	run.Status = RunStatus(status)
	return run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs SET status = ?, updated_at = ? WHERE run_id = ?
	`, string(status), time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRun removes the run; the foreign key cascades to its step records.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM workflow_runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, runID, stepName string) (StepRecord, error) {
	var record StepRecord
	var status string
	var payload sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, step_name, status, attempt, payload, last_error, created_at, updated_at
		FROM workflow_steps WHERE run_id = ? AND step_name = ?
	`, runID, stepName).Scan(&record.RunID, &record.StepName, &status, &record.Attempt,
		&payload, &record.LastError, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StepRecord{}, ErrNotFound
	}
	if err != nil {
		return StepRecord{}, fmt.Errorf("failed to load step %s/%s: %w", runID, stepName, err)
	}

	record.Status = StepStatus(status)
	if payload.Valid {
		record.Payload = []byte(payload.String)
	}
	return record, nil
}

// Put upserts the step record in a transaction. The succeeded guard and the
// write happen under the same transaction so the write-once contract holds
// even with a crash between check and write.
func (s *SQLiteStore) Put(ctx context.Context, runID, stepName string, record StepRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var priorStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM workflow_steps WHERE run_id = ? AND step_name = ?
	`, runID, stepName).Scan(&priorStatus)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First attempt for this key.
	case err != nil:
		return fmt.Errorf("failed to check step %s/%s: %w", runID, stepName, err)
	case StepStatus(priorStatus) == StepSucceeded:
		return ErrAlreadySucceeded
	}

	now := time.Now().UTC()
	var payload any
	if record.Payload != nil {
		payload = string(record.Payload)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_steps (run_id, step_name, status, attempt, payload, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step_name) DO UPDATE SET
			status = excluded.status,
			attempt = excluded.attempt,
			payload = excluded.payload,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, runID, stepName, string(record.Status), record.Attempt, payload, record.LastError, now, now)
	if err != nil {
		return fmt.Errorf("failed to write step %s/%s: %w", runID, stepName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step %s/%s: %w", runID, stepName, err)
	}
	return nil
}

func (s *SQLiteStore) ListSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, step_name, status, attempt, payload, last_error, created_at, updated_at
		FROM workflow_steps WHERE run_id = ? ORDER BY step_name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps for run %s: %w", runID, err)
	}
	defer rows.Close()

	records := make([]StepRecord, 0)
	for rows.Next() {
		var record StepRecord
		var status string
		var payload sql.NullString
		if err := rows.Scan(&record.RunID, &record.StepName, &status, &record.Attempt,
			&payload, &record.LastError, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, err
		}
		record.Status = StepStatus(status)
		if payload.Valid {
			record.Payload = []byte(payload.String)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
