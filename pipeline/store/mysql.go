package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL implementation of Store for shared deployments where
// several notifier processes point at the same database.
//
// The DSN must include parseTime=true so TIMESTAMP columns scan into
// time.Time, e.g.:
//
//	user:pass@tcp(localhost:3306)/notifier?parseTime=true
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a MySQL-backed store and runs schema migration.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id VARCHAR(64) PRIMARY KEY,
			trigger_kind VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			updated_at TIMESTAMP(6) NOT NULL
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create workflow_runs table: %w", err)
	}

	stepsTable := `
		CREATE TABLE IF NOT EXISTS workflow_steps (
			run_id VARCHAR(64) NOT NULL,
			step_name VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL,
			attempt INT NOT NULL DEFAULT 0,
			payload JSON,
			last_error TEXT,
			created_at TIMESTAMP(6) NOT NULL,
			updated_at TIMESTAMP(6) NOT NULL,
			PRIMARY KEY (run_id, step_name),
			CONSTRAINT fk_steps_run FOREIGN KEY (run_id)
				REFERENCES workflow_runs(run_id) ON DELETE CASCADE
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, stepsTable); err != nil {
		return fmt.Errorf("failed to create workflow_steps table: %w", err)
	}

	return nil
}

func (s *MySQLStore) CreateRun(ctx context.Context, run Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.Status == "" {
		run.Status = RunPending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT IGNORE INTO workflow_runs (run_id, trigger_kind, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
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

func (s *MySQLStore) GetRun(ctx context.Context, runID string) (Run, error) {
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

func (s *MySQLStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
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
		// RowsAffected is zero both for a missing run and for a no-op
		// status write; distinguish with an existence probe.
		if _, getErr := s.GetRun(ctx, runID); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (s *MySQLStore) DeleteRun(ctx context.Context, runID string) error {
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

func (s *MySQLStore) Get(ctx context.Context, runID, stepName string) (StepRecord, error) {
	var record StepRecord
	var status string
	var payload, lastError sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, step_name, status, attempt, payload, last_error, created_at, updated_at
		FROM workflow_steps WHERE run_id = ? AND step_name = ?
	`, runID, stepName).Scan(&record.RunID, &record.StepName, &status, &record.Attempt,
		&payload, &lastError, &record.CreatedAt, &record.UpdatedAt)
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
	record.LastError = lastError.String
	return record, nil
}

// Put upserts the step record. The succeeded guard runs inside the same
// transaction as the write, with a row lock held via SELECT ... FOR UPDATE.
func (s *MySQLStore) Put(ctx context.Context, runID, stepName string, record StepRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var priorStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM workflow_steps WHERE run_id = ? AND step_name = ? FOR UPDATE
	`, runID, stepName).Scan(&priorStatus)
	switch {
	case errors.Is(err, sql.ErrNoRows):
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
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			attempt = VALUES(attempt),
			payload = VALUES(payload),
			last_error = VALUES(last_error),
			updated_at = VALUES(updated_at)
	`, runID, stepName, string(record.Status), record.Attempt, payload, record.LastError, now, now)
	if err != nil {
		return fmt.Errorf("failed to write step %s/%s: %w", runID, stepName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step %s/%s: %w", runID, stepName, err)
	}
	return nil
}

func (s *MySQLStore) ListSteps(ctx context.Context, runID string) ([]StepRecord, error) {
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
		var payload, lastError sql.NullString
		if err := rows.Scan(&record.RunID, &record.StepName, &status, &record.Attempt,
			&payload, &lastError, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, err
		}
		record.Status = StepStatus(status)
		if payload.Valid {
			record.Payload = []byte(payload.String)
		}
		record.LastError = lastError.String
		records = append(records, record)
	}

	return records, rows.Err()
}

// Close closes the underlying database.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
