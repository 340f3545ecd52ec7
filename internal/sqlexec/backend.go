// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// backend runs a statement, hands each normalized row to fn and returns the
// result's column names.
type backend interface {
	query(ctx context.Context, timeout time.Duration, stmt string, args []any, fn func(row []any)) ([]string, error)
	ping(ctx context.Context) error
	close() error
}

// pgxBackend runs every statement in a read-only transaction on a pgx pool.
type pgxBackend struct {
	pool *pgxpool.Pool
}

func (b *pgxBackend) query(ctx context.Context, timeout time.Duration, stmt string, args []any, fn func(row []any)) ([]string, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	if timeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
			return nil, err
		}
	}

	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v, false)
		}
		fn(vals)
	}
	return cols, rows.Err()
}

func (b *pgxBackend) ping(ctx context.Context) error { return b.pool.Ping(ctx) }

func (b *pgxBackend) close() error {
	b.pool.Close()
	return nil
}

// sqlBackend serves Snowflake, MySQL and SQLite through database/sql. Read-only
// enforcement relies on Sanitize since not every driver supports read-only
// transactions.
type sqlBackend struct {
	db *sql.DB
}

func (b *sqlBackend) query(ctx context.Context, _ time.Duration, stmt string, args []any, fn func(row []any)) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v, true)
		}
		fn(vals)
	}
	return cols, rows.Err()
}

func (b *sqlBackend) ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *sqlBackend) close() error { return b.db.Close() }
