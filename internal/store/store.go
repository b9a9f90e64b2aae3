// Package store persists cleaned documents keyed by canonical URL over
// modernc.org/sqlite, a pure-Go embedded engine standing in for the
// teacher's networked PostgreSQL target since this crawler is
// explicitly single-process (see internal/database/postgres.go for the
// connection-pool shape this mirrors).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	// DefaultMaxOpenConns is capped at 1: SQLite serializes writers
	// anyway, and the scheduler is single-writer by design (§5).
	DefaultMaxOpenConns    = 1
	DefaultMaxIdleConns    = 1
	DefaultConnMaxLifetime = 0 // unbounded
	DefaultPingTimeout     = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	url     TEXT PRIMARY KEY,
	content BLOB NOT NULL
);`

// Store wraps the document table: exists/upsert/iterate/count over
// (canonical_url, cleaned_html) rows.
type Store struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at dsn (a file path, or
// "file::memory:?cache=shared" for tests), verifies connectivity, and
// ensures the documents table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether a row with the given canonical URL is present.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE url = ?)`, url)
	return exists, err
}

// Upsert writes content under url, replacing any existing row. The
// write is durable on return.
func (s *Store) Upsert(ctx context.Context, url, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (url, content) VALUES (?, ?)
		ON CONFLICT(url) DO UPDATE SET content = excluded.content
	`, url, content)
	return err
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM documents`)
	return n, err
}

// Document is one stored row.
type Document struct {
	URL     string `db:"url"`
	Content string `db:"content"`
}

// IterAll streams every stored document through fn. Iteration stops
// early if fn returns an error, which IterAll then returns.
func (s *Store) IterAll(ctx context.Context, fn func(Document) error) error {
	rows, err := s.db.QueryxContext(ctx, `SELECT url, content FROM documents`)
	if err != nil {
		return fmt.Errorf("store: iter_all query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d Document
		if err := rows.StructScan(&d); err != nil {
			return fmt.Errorf("store: iter_all scan: %w", err)
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return rows.Err()
}
