// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package store keeps the history of finished explorations in a local SQLite
// database under the XDG state directory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"datatwin/cli/internal/artifact"
	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/xdg"
)

// FileName is the history database file inside the state directory.
const FileName = "runs.db"

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// migration is one schema step, applied once in version order.
type migration struct {
	version     int
	description string
	up          string
}

var migrations = []migration{
	{
		version:     1,
		description: "create runs table",
		up: `
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				started_at TIMESTAMP NOT NULL,
				finished_at TIMESTAMP,
				phase TEXT NOT NULL,
				termination_reason TEXT NOT NULL DEFAULT '',
				tables TEXT NOT NULL DEFAULT '',
				queries_used INTEGER NOT NULL DEFAULT 0,
				max_queries INTEGER NOT NULL DEFAULT 0,
				summaries INTEGER NOT NULL DEFAULT 0,
				artifact TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
		`,
	},
}

// Run is one line of the history listing.
type Run struct {
	ID                string
	StartedAt         time.Time
	FinishedAt        time.Time
	Phase             string
	TerminationReason string
	Tables            string
	QueriesUsed       int
	MaxQueries        int
	Summaries         int
}

// Store is the run history.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (and migrates) the history database in the state directory.
func Open(logger *zap.Logger) (*Store, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Storage, "resolve state directory", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, dterrors.Wrap(dterrors.Storage, "create state directory", err)
	}
	return OpenPath(filepath.Join(dir, FileName), logger)
}

// OpenPath opens the history database at path. ":memory:" is accepted.
func OpenPath(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Storage, "open run history", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, dterrors.Wrap(dterrors.Storage, "open run history", err)
	}
	s := &Store{db: db, logger: logging.OrNop(logger)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return dterrors.Wrap(dterrors.Storage, "create migrations table", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return dterrors.Wrap(dterrors.Storage, fmt.Sprintf("check migration %d", m.version), err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return dterrors.Wrap(dterrors.Storage, fmt.Sprintf("begin migration %d", m.version), err)
		}
		if _, err := tx.Exec(m.up); err != nil {
			_ = tx.Rollback()
			return dterrors.Wrap(dterrors.Storage, fmt.Sprintf("apply migration %d", m.version), err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, description) VALUES (?, ?)", m.version, m.description); err != nil {
			_ = tx.Rollback()
			return dterrors.Wrap(dterrors.Storage, fmt.Sprintf("record migration %d", m.version), err)
		}
		if err := tx.Commit(); err != nil {
			return dterrors.Wrap(dterrors.Storage, fmt.Sprintf("commit migration %d", m.version), err)
		}
		s.logger.Debug("run history migrated", zap.Int("version", m.version), zap.String("description", m.description))
	}
	return nil
}

// Save inserts or replaces the aggregate of a run.
func (s *Store) Save(ctx context.Context, a *artifact.Aggregate) error {
	if a.RunID == "" {
		return dterrors.New(dterrors.Storage, "run has no ID")
	}
	doc, err := a.JSON()
	if err != nil {
		return err
	}

	meta := a.SessionMetadata
	var finished any
	if !meta.FinishedAt.IsZero() {
		finished = meta.FinishedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, started_at, finished_at, phase, termination_reason, tables, queries_used, max_queries, summaries, artifact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, meta.StartedAt.UTC(), finished, a.Phase, a.TerminationReason,
		strings.Join(meta.Tables, ","), meta.QueriesUsed, meta.MaxQueries, len(a.Summaries), string(doc))
	if err != nil {
		return dterrors.Wrap(dterrors.Storage, "save run "+a.RunID, err)
	}
	s.logger.Info("run saved", zap.String("run_id", a.RunID), zap.String("phase", a.Phase))
	return nil
}

// List returns the most recent runs first. limit <= 0 returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, started_at, finished_at, phase, termination_reason, tables, queries_used, max_queries, summaries
		FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Storage, "list runs", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Phase, &r.TerminationReason,
			&r.Tables, &r.QueriesUsed, &r.MaxQueries, &r.Summaries); err != nil {
			return nil, dterrors.Wrap(dterrors.Storage, "read run", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dterrors.Wrap(dterrors.Storage, "list runs", err)
	}
	return runs, nil
}

// Get loads the full aggregate of a run. An unknown ID wraps ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*artifact.Aggregate, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT artifact FROM runs WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dterrors.Wrap(dterrors.Storage, "run "+id, ErrNotFound)
	}
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Storage, "load run "+id, err)
	}
	return artifact.Decode([]byte(doc))
}
