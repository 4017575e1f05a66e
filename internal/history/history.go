// Package history persists harness invocations to SQLite so pass/fail
// trends per configuration survive across runs.
package history

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/abimat/abimat/internal/report"
)

//go:embed schema.sql
var schemaSQL string

// Store records run summaries and per-key conclusions.
// Uses SQLite with WAL mode; a single writer connection avoids
// SQLITE_BUSY under concurrent use.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the history database at path, applying pragmas
// and schema. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Run is one recorded harness invocation.
type Run struct {
	ID         string `db:"id"`
	CreatedAt  string `db:"created_at"`
	Target     string `db:"target"`
	NumTests   int    `db:"num_tests"`
	NumPassed  int    `db:"num_passed"`
	NumBusted  int    `db:"num_busted"`
	NumFailed  int    `db:"num_failed"`
	NumSkipped int    `db:"num_skipped"`
}

// KeyResult is one key's conclusion in one recorded run.
type KeyResult struct {
	RunID      string `db:"run_id"`
	TestKey    string `db:"test_key"`
	Conclusion string `db:"conclusion"`
}

// RecordRun writes the full report under a fresh UUIDv7 run id and
// returns it. The run row and its per-key rows commit atomically.
func (s *Store) RecordRun(ctx context.Context, target string, full *report.FullReport) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}
	runID := id.String()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, target, num_tests, num_passed, num_busted, num_failed, num_skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, target,
		full.Summary.NumTests, full.Summary.NumPassed, full.Summary.NumBusted,
		full.Summary.NumFailed, full.Summary.NumSkipped,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, test := range full.Tests {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_results (run_id, test_key, conclusion) VALUES (?, ?, ?)`,
			runID, test.Key.String(), string(test.Conclusion),
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert result for %s: %w", test.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit history: %w", err)
	}
	return runID, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, created_at, target, num_tests, num_passed, num_busted, num_failed, num_skipped
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return runs, nil
}

// KeyHistory returns the recorded conclusions for one run key, newest
// first.
func (s *Store) KeyHistory(ctx context.Context, testKey string, limit int) ([]KeyResult, error) {
	var results []KeyResult
	err := s.db.SelectContext(ctx, &results,
		`SELECT r.run_id, r.test_key, r.conclusion
		 FROM run_results r JOIN runs ON runs.id = r.run_id
		 WHERE r.test_key = ?
		 ORDER BY runs.created_at DESC, runs.id DESC LIMIT ?`, testKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query key history: %w", err)
	}
	return results, nil
}
