// Package progress tracks per-document ingestion state in an embedded
// SQLite database, one file per document type. Claims are single-statement
// compare-and-swap updates, so concurrent workers racing on the same
// document ID resolve to exactly one owner, and a crashed worker's claim
// becomes reclaimable after a stale threshold.
package progress

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Run statuses.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunFailed      = "failed"
	RunInterrupted = "interrupted"
)

// Record is one row of document progress.
type Record struct {
	DocumentID string
	Status     string
	Attempts   int
	Error      string
	DurationMS int64
	UpdatedAt  time.Time
}

// Stats aggregates record counts by status.
type Stats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Total returns the number of tracked documents.
func (s Stats) Total() int {
	return s.Pending + s.Processing + s.Completed + s.Failed
}

// Store is a progress database for one document type.
type Store struct {
	db          *sql.DB
	staleClaim  time.Duration
	maxAttempts int
}

// Option configures a Store.
type Option func(*Store)

// WithStaleClaim sets how long a processing claim survives before another
// worker may take it over. Default 10 minutes.
func WithStaleClaim(d time.Duration) Option {
	return func(s *Store) { s.staleClaim = d }
}

// WithMaxAttempts sets the retry budget for failed documents. Default 3.
func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS document_progress (
    document_id TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    attempts    INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    duration_ms INTEGER,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_progress_status ON document_progress(status);

CREATE TABLE IF NOT EXISTS ingestion_runs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TEXT NOT NULL,
    ended_at   TEXT,
    args       TEXT,
    status     TEXT NOT NULL
);
`

// Open opens (or creates) the progress database at path.
func Open(path string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating progress directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening progress database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging progress database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating progress schema: %w", err)
	}

	s := &Store{db: db, staleClaim: 10 * time.Minute, maxAttempts: 3}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// now is the row timestamp format: UTC RFC 3339 so lexicographic compare
// works inside SQL.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Claim attempts to take ownership of a document. It succeeds when the
// record is absent, pending, failed with attempts remaining, or processing
// past the stale threshold. Both paths are single statements, so of any
// number of concurrent claimers exactly one wins.
func (s *Store) Claim(ctx context.Context, docID string) (bool, error) {
	ts := now()
	staleBefore := time.Now().UTC().Add(-s.staleClaim).Format(time.RFC3339)

	// Absent row: INSERT wins the race outright; a loser hits the primary
	// key and falls through to the CAS update.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO document_progress (document_id, status, attempts, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(document_id) DO NOTHING`,
		docID, StatusProcessing, ts)
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", docID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return true, nil
	}

	res, err = s.db.ExecContext(ctx, `
		UPDATE document_progress
		SET status = ?, attempts = attempts + 1, error = NULL, updated_at = ?
		WHERE document_id = ?
		  AND (status = ?
		       OR (status = ? AND attempts < ?)
		       OR (status = ? AND updated_at < ?))`,
		StatusProcessing, ts, docID,
		StatusPending,
		StatusFailed, s.maxAttempts,
		StatusProcessing, staleBefore)
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", docID, err)
	}
	return n > 0, nil
}

// Complete marks a claimed document done.
func (s *Store) Complete(ctx context.Context, docID string, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_progress
		SET status = ?, error = NULL, duration_ms = ?, updated_at = ?
		WHERE document_id = ?`,
		StatusCompleted, duration.Milliseconds(), now(), docID)
	if err != nil {
		return fmt.Errorf("completing %s: %w", docID, err)
	}
	return nil
}

// Fail records a document failure with its error message.
func (s *Store) Fail(ctx context.Context, docID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_progress
		SET status = ?, error = ?, updated_at = ?
		WHERE document_id = ?`,
		StatusFailed, message, now(), docID)
	if err != nil {
		return fmt.Errorf("failing %s: %w", docID, err)
	}
	return nil
}

// MarkPending re-enqueues a document regardless of its current status,
// clearing any recorded error.
func (s *Store) MarkPending(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_progress (document_id, status, attempts, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(document_id) DO UPDATE SET status = excluded.status,
		    error = NULL, updated_at = excluded.updated_at`,
		docID, StatusPending, now())
	if err != nil {
		return fmt.Errorf("marking %s pending: %w", docID, err)
	}
	return nil
}

// Get returns the record for a document, or ErrNoRecord-shaped sql.ErrNoRows
// via the bool when absent.
func (s *Store) Get(ctx context.Context, docID string) (*Record, bool, error) {
	var (
		r        Record
		errMsg   sql.NullString
		duration sql.NullInt64
		updated  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, status, attempts, error, duration_ms, updated_at
		FROM document_progress WHERE document_id = ?`, docID).
		Scan(&r.DocumentID, &r.Status, &r.Attempts, &errMsg, &duration, &updated)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", docID, err)
	}
	r.Error = errMsg.String
	r.DurationMS = duration.Int64
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &r, true, nil
}

// IsCompleted reports whether a document has already been ingested.
func (s *Store) IsCompleted(ctx context.Context, docID string) (bool, error) {
	r, ok, err := s.Get(ctx, docID)
	if err != nil || !ok {
		return false, err
	}
	return r.Status == StatusCompleted, nil
}

// Stats returns record counts by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM document_progress GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// Iterate returns the IDs of every document in the given status, oldest
// first.
func (s *Store) Iterate(ctx context.Context, status string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id FROM document_progress
		WHERE status = ? ORDER BY updated_at`, status)
	if err != nil {
		return nil, fmt.Errorf("iterating %s: %w", status, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Failures returns up to limit failed records, most recent first.
func (s *Store) Failures(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, status, attempts, error, duration_ms, updated_at
		FROM document_progress WHERE status = ?
		ORDER BY updated_at DESC LIMIT ?`, StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("reading failures: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			errMsg   sql.NullString
			duration sql.NullInt64
			updated  string
		)
		if err := rows.Scan(&r.DocumentID, &r.Status, &r.Attempts, &errMsg, &duration, &updated); err != nil {
			return nil, err
		}
		r.Error = errMsg.String
		r.DurationMS = duration.Int64
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResetStale re-enqueues every processing record older than the stale
// threshold. Called once at pipeline startup so a crashed run's claims do
// not linger for the whole threshold during resumption.
func (s *Store) ResetStale(ctx context.Context) (int, error) {
	staleBefore := time.Now().UTC().Add(-s.staleClaim).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE document_progress SET status = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		StatusPending, now(), StatusProcessing, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("resetting stale claims: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// StartRun records the start of an ingestion run and returns its row ID.
func (s *Store) StartRun(ctx context.Context, args string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (started_at, args, status) VALUES (?, ?, ?)`,
		now(), args, RunRunning)
	if err != nil {
		return 0, fmt.Errorf("recording run start: %w", err)
	}
	return res.LastInsertId()
}

// EndRun closes an ingestion-run row with its final status.
func (s *Store) EndRun(ctx context.Context, runID int64, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_runs SET ended_at = ?, status = ? WHERE id = ?`,
		now(), status, runID)
	if err != nil {
		return fmt.Errorf("recording run end: %w", err)
	}
	return nil
}
