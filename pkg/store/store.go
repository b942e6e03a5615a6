// Copyright 2025 The Scriptorium Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists archive entities in an embedded SQLite database.
//
// SQLite services one write transaction at a time, so a process-wide latch
// (the db-lock) wraps every commit and rollback; readers never take it.
// Operations classified as transient (lock contention, connection trouble)
// are retried with squared backoff plus jitter so parallel ingest workers
// don't collide on the same schedule.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a GUID lookup misses.
var ErrNotFound = errors.New("not found")

// DefaultRetries is the retry budget for transient database errors.
const DefaultRetries = 10

// Store wraps the SQLite connection pool and the process-wide write latch.
type Store struct {
	db      *sql.DB
	retries int

	// dbLock serializes commits and rollbacks. SQLite cannot service
	// concurrent write transactions; without the latch, parallel ingest
	// workers trip spurious "database is locked" errors.
	dbLock sync.Mutex
}

const createScansSQL = `
CREATE TABLE IF NOT EXISTS scans (
    guid VARCHAR(22) PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    tags VARCHAR(255) NOT NULL DEFAULT '',
    comment TEXT NOT NULL DEFAULT '',
    stem VARCHAR(255) NOT NULL,
    album VARCHAR(255) NOT NULL,
    album_index INTEGER NOT NULL,
    title VARCHAR(255) NOT NULL DEFAULT '',
    path VARCHAR(255) NOT NULL DEFAULT '',
    url VARCHAR(255) NOT NULL DEFAULT '',
    thumb_url VARCHAR(255) NOT NULL DEFAULT '',
    scanned_at TIMESTAMP NOT NULL,
    media_archive VARCHAR(255) NOT NULL DEFAULT '',
    media_collection VARCHAR(255) NOT NULL DEFAULT '',
    media_box VARCHAR(255) NOT NULL DEFAULT '',
    media_folder VARCHAR(255) NOT NULL DEFAULT '',
    media_type VARCHAR(255) NOT NULL DEFAULT '',
    media_created_at TIMESTAMP NOT NULL
)`

const createScansIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_scans_album ON scans(album, album_index)`

const createDocumentsSQL = `
CREATE TABLE IF NOT EXISTS documents (
    guid VARCHAR(22) PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    tags VARCHAR(255) NOT NULL DEFAULT '',
    comment TEXT NOT NULL DEFAULT '',
    scan_guid VARCHAR(22) NOT NULL REFERENCES scans(guid),
    batch_name VARCHAR(255) NOT NULL DEFAULT '00',
    json_path VARCHAR(255) NOT NULL DEFAULT '',
    json_url VARCHAR(255) NOT NULL DEFAULT '',
    text_path VARCHAR(255) NOT NULL DEFAULT '',
    text_url VARCHAR(255) NOT NULL DEFAULT ''
)`

const createDocumentsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_documents_scan ON documents(scan_guid)`

const createDocumentsCreatedAtIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at)`

const createCorpusesSQL = `
CREATE TABLE IF NOT EXISTS corpuses (
    guid VARCHAR(22) PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    tags VARCHAR(255) NOT NULL DEFAULT '',
    comment TEXT NOT NULL DEFAULT '',
    checksum VARCHAR(8) NOT NULL,
    document_count INTEGER NOT NULL DEFAULT 0
)`

const createCorpusDocumentsSQL = `
CREATE TABLE IF NOT EXISTS corpus_documents (
    corpus_guid VARCHAR(22) NOT NULL REFERENCES corpuses(guid),
    document_guid VARCHAR(22) NOT NULL REFERENCES documents(guid),
    PRIMARY KEY (corpus_guid, document_guid)
)`

const createSearchesSQL = `
CREATE TABLE IF NOT EXISTS searches (
    guid VARCHAR(22) PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    tags VARCHAR(255) NOT NULL DEFAULT '',
    comment TEXT NOT NULL DEFAULT '',
    search_str TEXT NOT NULL,
    corpus_guid VARCHAR(22) NOT NULL REFERENCES corpuses(guid),
    status VARCHAR(7) NOT NULL DEFAULT 'PENDING'
)`

const createSearchDocumentsSQL = `
CREATE TABLE IF NOT EXISTS search_documents (
    search_guid VARCHAR(22) NOT NULL REFERENCES searches(guid),
    document_guid VARCHAR(22) NOT NULL REFERENCES documents(guid),
    PRIMARY KEY (search_guid, document_guid)
)`

const createMegadocsSQL = `
CREATE TABLE IF NOT EXISTS megadocs (
    guid VARCHAR(22) PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    tags VARCHAR(255) NOT NULL DEFAULT '',
    comment TEXT NOT NULL DEFAULT '',
    search_guid VARCHAR(22) NOT NULL REFERENCES searches(guid),
    filetype VARCHAR(8) NOT NULL DEFAULT '.txt',
    filename VARCHAR(255) NOT NULL DEFAULT '',
    path VARCHAR(255) NOT NULL DEFAULT '',
    url VARCHAR(255) NOT NULL DEFAULT '',
    status VARCHAR(7) NOT NULL DEFAULT 'PENDING',
    progress REAL NOT NULL DEFAULT 0.0,
    filesize INTEGER NOT NULL DEFAULT 0
)`

const createMegadocsIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_megadocs_search_filetype
    ON megadocs(search_guid, filetype)`

var schemaStatements = []string{
	createScansSQL,
	createScansIndexSQL,
	createDocumentsSQL,
	createDocumentsIndexSQL,
	createDocumentsCreatedAtIndexSQL,
	createCorpusesSQL,
	createCorpusDocumentsSQL,
	createSearchesSQL,
	createSearchDocumentsSQL,
	createMegadocsSQL,
	createMegadocsIndexSQL,
}

// Open opens (or creates) the SQLite database at path and ensures the schema
// exists. The pool is capped at a single connection; write serialization is
// handled by the db-lock, not by SQLite's own busy handler.
func Open(path string, retries int) (*Store, error) {
	if retries <= 0 {
		retries = DefaultRetries
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_loc=UTC&_fk=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, retries: retries}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Init deletes any existing database file at path and opens a fresh store.
func Init(path string, retries int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove old database file: %w", err)
	}
	slog.Info("Creating new database file", "path", path)
	return Open(path, retries)
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Execute each statement separately for SQLite compatibility.
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Session is a unit of work. Helpers either participate in a caller-supplied
// session (commit deferred to the caller, so writes can batch) or open,
// commit, and close their own.
type Session struct {
	store *Store
	tx    *sql.Tx
	done  bool
}

// Begin opens a new session.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Session{store: s, tx: tx}, nil
}

// Commit commits the session under the db-lock.
func (sess *Session) Commit() error {
	if sess.done {
		return nil
	}
	sess.store.dbLock.Lock()
	defer sess.store.dbLock.Unlock()
	sess.done = true
	if err := sess.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls the session back under the db-lock. Safe to call after
// Commit.
func (sess *Session) Rollback() error {
	if sess.done {
		return nil
	}
	sess.store.dbLock.Lock()
	defer sess.store.dbLock.Unlock()
	sess.done = true
	if err := sess.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// withSession runs fn inside sess when one is supplied; otherwise it opens a
// local session, commits on success, and rolls back on error, retrying
// transient failures. Callers that pass their own session own the retry and
// commit discipline.
func (s *Store) withSession(ctx context.Context, sess *Session, fn func(*Session) error) error {
	if sess != nil {
		return fn(sess)
	}
	return s.WithRetry(ctx, func() error {
		own, err := s.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(own); err != nil {
			if rbErr := own.Rollback(); rbErr != nil {
				slog.Warn("Rollback failed", "error", rbErr)
			}
			return err
		}
		return own.Commit()
	})
}

// RunSession opens a session, runs fn, and commits, rolling back on error.
// The whole unit retries on transient failure, so fn must be safe to rerun.
func (s *Store) RunSession(ctx context.Context, fn func(*Session) error) error {
	return s.withSession(ctx, nil, fn)
}

// IsTransient reports whether err is worth retrying: lock contention,
// timeouts, and I/O hiccups. Everything else propagates immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrProtocol:
			return true
		}
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// WithRetry runs fn, retrying transient errors up to the configured budget.
// Backoff is attempt squared plus up to one second of jitter so peers back
// off on different schedules. Exhaustion returns the last cause.
func (s *Store) WithRetry(ctx context.Context, fn func() error) error {
	var last error
	for attempt := 1; attempt <= s.retries+1; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		last = err
		if attempt > s.retries {
			break
		}
		sleep := time.Duration(float64(attempt*attempt)+rand.Float64()) * time.Second
		slog.Warn("Transient database error, retrying",
			"error", err, "sleep", sleep, "attempt", attempt, "retries", s.retries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return fmt.Errorf("database operation failed after %d attempts: %w", s.retries+1, last)
}
