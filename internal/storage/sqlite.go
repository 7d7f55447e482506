// Package storage provides SQLite implementation of the Ledger interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/katachi/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

// NewSQLiteLedger opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{db: db, path: dbPath}, nil
}

// Files returns the database file and its WAL sidecars.
func (s *SQLiteLedger) Files() []string {
	return LedgerFiles(s.path)
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS extraction_runs (
		id TEXT PRIMARY KEY,
		split TEXT NOT NULL,
		model TEXT NOT NULL,
		status TEXT NOT NULL,
		artifact_path TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		written INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_split_started ON extraction_runs(split, started_at);

	CREATE TABLE IF NOT EXISTS extraction_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		identifier TEXT NOT NULL,
		error TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES extraction_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_failures_run_id ON extraction_failures(run_id);

	CREATE TABLE IF NOT EXISTS catalog_runs (
		id TEXT PRIMARY KEY,
		attempt INTEGER NOT NULL,
		status TEXT NOT NULL,
		step TEXT,
		rows INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// StartRun inserts a running extraction run. An empty ID is filled with a new UUID.
func (s *SQLiteLedger) StartRun(ctx context.Context, run *models.ExtractionRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = models.RunStatusRunning
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_runs (id, split, model, status, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Split, run.Model, run.Status, run.StartedAt,
	)
	return err
}

// RecordFailure stores one skipped item for a run.
func (s *SQLiteLedger) RecordFailure(ctx context.Context, runID string, failure models.ItemFailure) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_failures (run_id, identifier, error) VALUES (?, ?, ?)`,
		runID, failure.Identifier, failure.Error,
	)
	return err
}

// FinishRun stores the final counters and status of a run.
func (s *SQLiteLedger) FinishRun(ctx context.Context, run *models.ExtractionRun) error {
	now := time.Now()
	run.FinishedAt = &now
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_runs
		 SET status = ?, artifact_path = ?, processed = ?, written = ?, failed = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		run.Status, run.ArtifactPath, run.Processed, run.Written, run.Failed, run.Error, now, run.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "run", run.ID)
}

const runColumns = `id, split, model, status, artifact_path, processed, written, failed, error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.ExtractionRun, error) {
	var run models.ExtractionRun
	var artifactPath, errText sql.NullString
	var finishedAt sql.NullTime
	if err := row.Scan(&run.ID, &run.Split, &run.Model, &run.Status, &artifactPath,
		&run.Processed, &run.Written, &run.Failed, &errText, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.ArtifactPath = artifactPath.String
	run.Error = errText.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetRun returns an extraction run by ID.
func (s *SQLiteLedger) GetRun(ctx context.Context, id string) (*models.ExtractionRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM extraction_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// LastRun returns the most recently started run for split.
func (s *SQLiteLedger) LastRun(ctx context.Context, split string) (*models.ExtractionRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM extraction_runs WHERE split = ?
		 ORDER BY started_at DESC, rowid DESC LIMIT 1`, split))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run for split %s: %w", split, ErrNotFound)
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteLedger) ListRuns(ctx context.Context, limit int) ([]*models.ExtractionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM extraction_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.ExtractionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListFailures returns the skipped items of a run in the order they were recorded.
func (s *SQLiteLedger) ListFailures(ctx context.Context, runID string) ([]models.ItemFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier, error FROM extraction_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []models.ItemFailure
	for rows.Next() {
		var f models.ItemFailure
		if err := rows.Scan(&f.Identifier, &f.Error); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// StartCatalogRun inserts a running catalog attempt. An empty ID is filled with a new UUID.
func (s *SQLiteLedger) StartCatalogRun(ctx context.Context, run *models.CatalogRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = models.RunStatusRunning
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_runs (id, attempt, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Attempt, run.Status, run.StartedAt,
	)
	return err
}

// FinishCatalogRun stores the outcome of a catalog attempt.
func (s *SQLiteLedger) FinishCatalogRun(ctx context.Context, run *models.CatalogRun) error {
	now := time.Now()
	run.FinishedAt = &now
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_runs SET status = ?, step = ?, rows = ?, error = ?, finished_at = ? WHERE id = ?`,
		run.Status, run.Step, run.Rows, run.Error, now, run.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "catalog run", run.ID)
}

// ListCatalogRuns returns up to limit catalog attempts, newest first.
func (s *SQLiteLedger) ListCatalogRuns(ctx context.Context, limit int) ([]*models.CatalogRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempt, status, step, rows, error, started_at, finished_at
		 FROM catalog_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.CatalogRun
	for rows.Next() {
		var run models.CatalogRun
		var step, errText sql.NullString
		var finishedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.Attempt, &run.Status, &step, &run.Rows, &errText,
			&run.StartedAt, &finishedAt); err != nil {
			return nil, err
		}
		run.Step = step.String
		run.Error = errText.String
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
