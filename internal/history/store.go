// Package history persists execution-attempt records to SQLite for offline
// analysis. The store is observability-only: the engine degrades gracefully
// when writes fail.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calder/foreman/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Store manages the SQLite execution-history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if necessary) the history database at dbPath.
// ":memory:" is supported for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout must come first so later pragmas wait on locks instead of
	// failing during concurrent initialization of the same file.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a statement with exponential backoff on
// "database is locked" errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return lastErr
}

// RecordExecution appends one attempt record.
func (s *Store) RecordExecution(ctx context.Context, rec models.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions
			(task_id, task_type, model_id, attempt, success, duration_ms,
			 validation_score, validation_pass, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.TaskType, rec.ModelID, rec.Attempt,
		boolToInt(rec.Success), rec.Duration.Milliseconds(),
		rec.ValidationScore, boolToInt(rec.ValidationPass), rec.Error,
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// RecentFailures returns the most recent failed attempts, newest first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, task_type, model_id, attempt, success, duration_ms,
		       validation_score, validation_pass, error_message, created_at
		FROM executions
		WHERE success = 0
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []models.ExecutionRecord
	for rows.Next() {
		var rec models.ExecutionRecord
		var success, pass int
		var durationMS int64
		var createdAt time.Time
		if err := rows.Scan(&rec.TaskID, &rec.TaskType, &rec.ModelID, &rec.Attempt,
			&success, &durationMS, &rec.ValidationScore, &pass, &rec.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		rec.Timestamp = createdAt
		rec.Success = success != 0
		rec.ValidationPass = pass != 0
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AttemptCount returns the total number of recorded attempts.
func (s *Store) AttemptCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
