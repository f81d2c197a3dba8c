// Package audit maintains a best-effort SQLite log of completed requests
// for operational visibility. A failure here is logged and otherwise
// invisible to the request path: it never affects an HTTP response.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	at TEXT NOT NULL,
	method TEXT NOT NULL,
	bucket TEXT NOT NULL,
	object_path TEXT NOT NULL,
	key_hash TEXT NOT NULL,
	access_key TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
`

// Record is one logged request.
type Record struct {
	ID         string
	At         time.Time
	Method     string
	Bucket     string
	ObjectPath string
	KeyHash    string
	AccessKey  string
	StatusCode int
	DurationMS int64
}

// Log is a handle to the audit database. Safe for concurrent use.
type Log struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Ping verifies the database connection is reachable.
func (l *Log) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Record inserts rec synchronously. Use RecordAsync from the request path
// so a slow or failing write never adds latency to the response.
func (l *Log) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, at, method, bucket, object_path, key_hash, access_key, status_code, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.At.UTC().Format(time.RFC3339Nano), rec.Method, rec.Bucket, rec.ObjectPath,
		rec.KeyHash, rec.AccessKey, rec.StatusCode, rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// RecordAsync fires off the insert in its own goroutine. Errors are logged
// and dropped; the caller never waits on this and a failure here never
// changes what was already sent to the client.
func (l *Log) RecordAsync(rec Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Record(ctx, rec); err != nil {
			log.Printf("audit: best-effort write failed: %v", err)
		}
	}()
}
