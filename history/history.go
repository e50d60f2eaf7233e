// Package history persists a supplemental, non-authoritative record of
// terminal job states (C8) for listing and troubleshooting. It is never
// consulted to reconstruct the live queue on restart: the in-memory
// spooler remains the sole source of truth for active jobs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo

	"cleverprint/agent/job"
)

// Logger is the narrow logging interface history depends on.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nullLogger struct{}

func (nullLogger) Error(string, ...interface{}) {}
func (nullLogger) Warn(string, ...interface{})  {}
func (nullLogger) Info(string, ...interface{})  {}
func (nullLogger) Debug(string, ...interface{}) {}

// Store is a SQLite-backed audit log of terminal job states. It
// implements spooler.HistoryStore.
type Store struct {
	db     *sql.DB
	logger Logger
}

// Open creates or opens the history database at path ("" for in-memory,
// used by tests) and ensures its schema exists.
func Open(path string, logger Logger) (*Store, error) {
	if logger == nil {
		logger = nullLogger{}
	}
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	store := &Store{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS job_history (
		id TEXT PRIMARY KEY,
		server_job_id TEXT,
		created_at DATETIME NOT NULL,
		recorded_at DATETIME NOT NULL,
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		printer_name TEXT,
		copies INTEGER NOT NULL DEFAULT 1,
		options_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_job_history_recorded_at ON job_history(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_job_history_status ON job_history(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating history schema: %w", err)
	}
	return nil
}

// Record upserts a terminal job snapshot keyed by job ID. Failures are logged and
// swallowed: history is a supplemental audit sink, never a hard
// dependency of the spooler's dispatch path.
func (s *Store) Record(j *job.Job) {
	optionsJSON, err := json.Marshal(j.Options)
	if err != nil {
		s.logger.Warn("failed to encode job options for history", "jobId", j.ID, "error", err)
		optionsJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO job_history (
			id, server_job_id, created_at, recorded_at, priority, status,
			retry_count, last_error, printer_name, copies, options_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			recorded_at = excluded.recorded_at,
			status = excluded.status,
			retry_count = excluded.retry_count,
			last_error = excluded.last_error
	`,
		j.ID, j.ServerJobID, j.CreatedAt, time.Now(), string(j.Priority), string(j.Status),
		j.RetryCount, j.LastError, j.Options.PrinterName, j.Options.Copies, string(optionsJSON),
	)
	if err != nil {
		s.logger.Warn("failed to record job history", "jobId", j.ID, "error", err)
	}
}

// Record describes one row in the history log, returned by List.
type Record struct {
	ID          string    `json:"id"`
	ServerJobID string    `json:"serverJobId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	RecordedAt  time.Time `json:"recordedAt"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	RetryCount  int       `json:"retryCount"`
	LastError   string    `json:"lastError,omitempty"`
	PrinterName string    `json:"printerName,omitempty"`
	Copies      int       `json:"copies"`
}

// List returns up to limit history rows ordered by most recently recorded
// first, skipping the first offset rows. limit<=0 means no limit;
// offset<=0 means no skip.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Record, error) {
	query := `
		SELECT id, server_job_id, created_at, recorded_at, priority, status,
		       retry_count, last_error, printer_name, copies
		FROM job_history
		ORDER BY recorded_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	} else if offset > 0 {
		// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
		query += " LIMIT -1 OFFSET ?"
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing job history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var serverJobID, lastError, printerName sql.NullString
		if err := rows.Scan(
			&r.ID, &serverJobID, &r.CreatedAt, &r.RecordedAt, &r.Priority, &r.Status,
			&r.RetryCount, &lastError, &printerName, &r.Copies,
		); err != nil {
			return nil, fmt.Errorf("scanning job history row: %w", err)
		}
		r.ServerJobID = serverJobID.String
		r.LastError = lastError.String
		r.PrinterName = printerName.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune removes history rows recorded before olderThan. Returns the number
// of rows deleted.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM job_history WHERE recorded_at < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("pruning job history: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
