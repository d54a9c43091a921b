// Package store is folio's relational store on SQLite (modernc.org/sqlite).
// It implements the resume, subscription and billing repositories.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const maxRetries = 3

// Store wraps a SQLite handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

type options struct {
	busyTimeoutMS int
	mkdirAll      bool
	now           func() time.Time
}

// Option customises Open.
type Option func(*options)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeoutMS = ms } }

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Open opens the database at path, applies pragmas and runs migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{busyTimeoutMS: 10_000, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if o.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	s := &Store{db: db, now: o.now}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens a migrated in-memory store for tests and registers
// cleanup on t.
func OpenMemory(t testing.TB, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", opts...)
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isBusy reports whether err indicates an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// runTx executes fn in a transaction, retrying on SQLITE_BUSY with
// 100/200 ms backoff.
func (s *Store) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for i := range maxRetries {
		if err = s.txOnce(ctx, fn); err == nil || !isBusy(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("store: context cancelled during retry: %w", ctx.Err())
		case <-t.C:
		}
	}
	return err
}

func (s *Store) txOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
