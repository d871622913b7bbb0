// Package journal keeps a local log of every request the device sent, so
// device-side outcomes can be correlated with the backend's request log.
// A journaled request with no matching backend entry proves the failure
// happened at the connection layer, before the backend ever saw it.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"modemprobe/packages/modemhttp"
)

const schema = `
CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);
`

// Entry is one journaled request.
type Entry struct {
	RequestID  string
	Method     string
	URL        string
	StatusCode int
	Outcome    string
	DurationMs int64
	CreatedAt  time.Time
}

// Journal is a request log backed by a local SQLite file.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record implements modemhttp.Recorder.
func (j *Journal) Record(ctx context.Context, rec modemhttp.Record) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO requests (request_id, method, url, status_code, outcome, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Method, rec.URL, rec.StatusCode,
		rec.Outcome.String(), rec.Duration.Milliseconds(), time.Now().UTC())
	return err
}

// List returns the most recent entries, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT request_id, method, url, status_code, outcome, duration_ms, created_at
		 FROM requests ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RequestID, &e.Method, &e.URL, &e.StatusCode, &e.Outcome, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Find looks an entry up by its request id, for matching against a backend
// log line.
func (j *Journal) Find(ctx context.Context, requestID string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT request_id, method, url, status_code, outcome, duration_ms, created_at
		 FROM requests WHERE request_id = ?`, requestID)

	var e Entry
	if err := row.Scan(&e.RequestID, &e.Method, &e.URL, &e.StatusCode, &e.Outcome, &e.DurationMs, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Purge deletes entries older than the cutoff and returns how many went.
func (j *Journal) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM requests WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
