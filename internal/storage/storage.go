// Package storage persists analysis runs in SQLite.
//
// A run is written in one transaction: the run row with its summary, one row per subject
// result, and the subject's duration buckets and frequency cells. Runs are immutable once saved.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/contactfit/internal/models"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	input_path      TEXT NOT NULL,
	started_at      INTEGER NOT NULL,
	completed_at    INTEGER NOT NULL,
	subjects        INTEGER NOT NULL,
	skipped         INTEGER NOT NULL,
	invalid_records INTEGER NOT NULL,
	testable        INTEGER NOT NULL,
	not_rejected_001 INTEGER NOT NULL,
	not_rejected_01 INTEGER NOT NULL,
	not_rejected_05 INTEGER NOT NULL,
	rejected        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS results (
	run_id             TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	subject_id         INTEGER NOT NULL,
	outcome            TEXT NOT NULL,
	skip_reason        TEXT NOT NULL,
	sample_size        REAL NOT NULL,
	observed_buckets   INTEGER NOT NULL,
	p                  REAL NOT NULL,
	chi_squared        REAL NOT NULL,
	degrees_of_freedom INTEGER NOT NULL,
	p_value            REAL NOT NULL,
	PRIMARY KEY (run_id, subject_id)
);

CREATE TABLE IF NOT EXISTS buckets (
	run_id      TEXT NOT NULL,
	subject_id  INTEGER NOT NULL,
	duration    INTEGER NOT NULL,
	occurrences REAL NOT NULL,
	probability REAL NOT NULL,
	normalized  INTEGER NOT NULL,
	PRIMARY KEY (run_id, subject_id, duration),
	FOREIGN KEY (run_id, subject_id) REFERENCES results(run_id, subject_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS cells (
	run_id     TEXT NOT NULL,
	subject_id INTEGER NOT NULL,
	trials     INTEGER NOT NULL,
	observed   REAL NOT NULL,
	expected   REAL NOT NULL,
	PRIMARY KEY (run_id, subject_id, trials),
	FOREIGN KEY (run_id, subject_id) REFERENCES results(run_id, subject_id) ON DELETE CASCADE
);
`

// Storage is a SQLite-backed run store. It is safe for concurrent use.
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath. ":memory:" gives a private
// in-memory database.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		return nil, errors.New("database path must not be empty")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	return &Storage{db: db}, nil
}

// Close releases the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveRun writes a run with all its results atomically.
func (s *Storage) SaveRun(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sm := run.Summary
	_, err = tx.ExecContext(ctx, `INSERT INTO runs (id, input_path, started_at, completed_at,
		subjects, skipped, invalid_records, testable, not_rejected_001, not_rejected_01, not_rejected_05, rejected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InputPath, run.StartedAt.UnixNano(), run.CompletedAt.UnixNano(),
		sm.Subjects, sm.Skipped, sm.InvalidRecords, sm.Testable,
		sm.NotRejected001, sm.NotRejected01, sm.NotRejected05, sm.Rejected)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	resultStmt, err := tx.PrepareContext(ctx, `INSERT INTO results (run_id, subject_id, outcome, skip_reason,
		sample_size, observed_buckets, p, chi_squared, degrees_of_freedom, p_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer resultStmt.Close()

	bucketStmt, err := tx.PrepareContext(ctx, `INSERT INTO buckets (run_id, subject_id, duration,
		occurrences, probability, normalized) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare bucket insert: %w", err)
	}
	defer bucketStmt.Close()

	cellStmt, err := tx.PrepareContext(ctx, `INSERT INTO cells (run_id, subject_id, trials, observed, expected)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cell insert: %w", err)
	}
	defer cellStmt.Close()

	for _, r := range run.Results {
		if _, err := resultStmt.ExecContext(ctx, run.ID, r.SubjectID, string(r.Outcome), r.SkipReason,
			r.SampleSize, r.ObservedBuckets, r.P, r.ChiSquared, r.DegreesOfFreedom, r.PValue); err != nil {
			return fmt.Errorf("failed to insert result for subject %d: %w", r.SubjectID, err)
		}
		for _, b := range r.Buckets {
			if _, err := bucketStmt.ExecContext(ctx, run.ID, r.SubjectID, b.Duration,
				b.Occurrences, b.Probability, b.Normalized); err != nil {
				return fmt.Errorf("failed to insert bucket %d for subject %d: %w", b.Duration, r.SubjectID, err)
			}
		}
		for _, c := range r.Cells {
			if _, err := cellStmt.ExecContext(ctx, run.ID, r.SubjectID, c.Trials, c.Observed, c.Expected); err != nil {
				return fmt.Errorf("failed to insert cell %d for subject %d: %w", c.Trials, r.SubjectID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run with all of its results.
func (s *Storage) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	results, err := s.ListResults(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Results = results
	return run, nil
}

// ListRuns returns run summaries, newest first, without their results.
// A non-positive limit returns every run.
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListResults returns the results of one run in subject order, with buckets and cells.
func (s *Storage) ListResults(ctx context.Context, runID string) ([]models.FitResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subject_id, outcome, skip_reason, sample_size,
		observed_buckets, p, chi_squared, degrees_of_freedom, p_value
		FROM results WHERE run_id = ? ORDER BY subject_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []models.FitResult
	index := make(map[int]int)
	for rows.Next() {
		var r models.FitResult
		var outcome string
		if err := rows.Scan(&r.SubjectID, &outcome, &r.SkipReason, &r.SampleSize,
			&r.ObservedBuckets, &r.P, &r.ChiSquared, &r.DegreesOfFreedom, &r.PValue); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Outcome = models.Outcome(outcome)
		index[r.SubjectID] = len(results)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachBuckets(ctx, runID, results, index); err != nil {
		return nil, err
	}
	if err := s.attachCells(ctx, runID, results, index); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Storage) attachBuckets(ctx context.Context, runID string, results []models.FitResult, index map[int]int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT subject_id, duration, occurrences, probability, normalized
		FROM buckets WHERE run_id = ? ORDER BY subject_id, duration`, runID)
	if err != nil {
		return fmt.Errorf("failed to load buckets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var subject int
		var b models.DurationBucket
		if err := rows.Scan(&subject, &b.Duration, &b.Occurrences, &b.Probability, &b.Normalized); err != nil {
			return fmt.Errorf("failed to scan bucket: %w", err)
		}
		if i, ok := index[subject]; ok {
			results[i].Buckets = append(results[i].Buckets, b)
		}
	}
	return rows.Err()
}

func (s *Storage) attachCells(ctx context.Context, runID string, results []models.FitResult, index map[int]int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT subject_id, trials, observed, expected
		FROM cells WHERE run_id = ? ORDER BY subject_id, trials`, runID)
	if err != nil {
		return fmt.Errorf("failed to load cells: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var subject int
		var c models.FrequencyCell
		if err := rows.Scan(&subject, &c.Trials, &c.Observed, &c.Expected); err != nil {
			return fmt.Errorf("failed to scan cell: %w", err)
		}
		if i, ok := index[subject]; ok {
			results[i].Cells = append(results[i].Cells, c)
		}
	}
	return rows.Err()
}

const runColumns = `id, input_path, started_at, completed_at, subjects, skipped, invalid_records,
	testable, not_rejected_001, not_rejected_01, not_rejected_05, rejected`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var started, completed int64
	sm := &run.Summary
	if err := row.Scan(&run.ID, &run.InputPath, &started, &completed,
		&sm.Subjects, &sm.Skipped, &sm.InvalidRecords, &sm.Testable,
		&sm.NotRejected001, &sm.NotRejected01, &sm.NotRejected05, &sm.Rejected); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, started).UTC()
	run.CompletedAt = time.Unix(0, completed).UTC()
	return &run, nil
}
