// Package store is the sole writer of CodeFRAME's persistent state
// (spec §4.1): Project, Issue, Task, Agent, ContextItem, ContextCheckpoint,
// Blocker, LintResult, ReviewReport and DiscoveryAnswer all live in one
// SQLite database, with single-writer semantics enforced by a store-wide
// lock around the write path, matching the teacher's
// internal/memory.SQLiteMemoryDB.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/001_add_review_iteration.sql
var migration001 string

// Store is the single writer for all CodeFRAME persistent state. Reads may
// proceed concurrently; writes are serialized through mu, mirroring the
// teacher's SQLiteMemoryDB.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or attaches to) the SQLite database at path, running
// migrations forward-only and idempotently (spec §4.1).
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer semantics; SQLite serializes anyway

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return s, nil
}

// OpenInMemory opens a throwaway in-memory store, used by tests and by
// components exercising the Store in isolation.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate in-memory store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version < 2 {
		if _, err := s.db.Exec(migration001); err != nil {
			return fmt.Errorf("failed to run migration 001: %w", err)
		}
	}

	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTx runs fn inside one serializable transaction, holding the
// store-wide write lock across it (spec §4.1 single-writer semantics;
// spec §5 "no critical section spans a suspension point" — callers must
// not perform LLM/subprocess I/O inside fn).
func (s *Store) withTx(fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
