// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec runs exploration queries, row-count probes and schema
// introspection against PostgreSQL (pgx pool), Snowflake, MySQL and SQLite
// (database/sql).
//
// Key features include:
//   - A guard that only lets single read-only statements through
//   - Read-only transactions and server-side statement timeouts on PostgreSQL
//   - Bounded result sampling (full result up to 100 rows, else the first 50)
//   - JSON-friendly value normalization (UUIDs, byte arrays, timestamps, numerics)
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"

	"datatwin/cli/internal/dsn"
	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/model"
	"datatwin/cli/internal/schema"
)

// DB is an open connection to one explorable database. It implements the
// engine's executor, the scale prober and the schema provider.
type DB struct {
	dialect   Dialect
	backend   backend
	inspector *Inspector
	logger    *zap.Logger
}

// Open connects to the database a DSN points to and verifies the connection.
func Open(ctx context.Context, rawDSN string, logger *zap.Logger) (*DB, error) {
	normalized, err := dsn.Parse(rawDSN)
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Configuration, "invalid database DSN", err)
	}
	info, err := dsn.ParseInfo(normalized)
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Configuration, "invalid database DSN", err)
	}
	typ, driverDSN, err := dsn.DriverDSN(normalized)
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Configuration, "invalid database DSN", err)
	}

	var b backend
	switch typ {
	case dsn.DBTypePostgreSQL:
		pool, err := pgxpool.New(ctx, driverDSN)
		if err != nil {
			return nil, dterrors.Wrap(dterrors.Configuration, "create connection pool", err)
		}
		b = &pgxBackend{pool: pool}
	case dsn.DBTypeSnowflake, dsn.DBTypeMySQL, dsn.DBTypeSQLite:
		db, err := sql.Open(driverName(typ), driverDSN)
		if err != nil {
			return nil, dterrors.Wrap(dterrors.Configuration, "open "+string(typ)+" connection", err)
		}
		if typ == dsn.DBTypeSQLite {
			db.SetMaxOpenConns(1)
		}
		b = &sqlBackend{db: db}
	default:
		return nil, dterrors.New(dterrors.Configuration, "unsupported database type "+string(typ))
	}

	schemaName := info.Schema
	if typ == dsn.DBTypeSQLite || typ == dsn.DBTypeMySQL {
		schemaName = ""
	}
	d := newDB(DialectFor(typ, schemaName), b, logger)
	if err := d.Ping(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	d.logger.Info("database connected",
		zap.String("type", string(typ)),
		zap.String("dsn", logging.Mask(normalized)))
	return d, nil
}

// OpenSQL wraps an existing database/sql handle. t selects the dialect.
func OpenSQL(db *sql.DB, t dsn.DBType, schemaName string, logger *zap.Logger) *DB {
	return newDB(DialectFor(t, schemaName), &sqlBackend{db: db}, logger)
}

func newDB(d Dialect, b backend, logger *zap.Logger) *DB {
	db := &DB{dialect: d, backend: b, logger: logging.OrNop(logger)}
	db.inspector = NewInspector(db, db.logger)
	return db
}

func driverName(t dsn.DBType) string {
	switch t {
	case dsn.DBTypeSnowflake:
		return "snowflake"
	case dsn.DBTypeMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// Type returns the database engine.
func (db *DB) Type() dsn.DBType { return db.dialect.Type }

// Dialect returns the SQL dialect in use.
func (db *DB) Dialect() Dialect { return db.dialect }

// Ping verifies the connection.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.backend.ping(ctx); err != nil {
		return dterrors.Wrap(dterrors.Configuration, "cannot reach database", err)
	}
	return nil
}

// Close releases the connection.
func (db *DB) Close() error { return db.backend.close() }

// Execute sanitizes and runs one read-only statement under timeout. Large
// results are sampled.
func (db *DB) Execute(ctx context.Context, stmt string, timeout time.Duration) (*model.ResultSet, error) {
	clean, err := Sanitize(stmt)
	if err != nil {
		return nil, err
	}
	if clean != stmt {
		db.logger.Debug("sql sanitized", zap.String("original", stmt), zap.String("sanitized", clean))
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	c := &collector{}
	cols, err := db.backend.query(ctx, timeout, clean, nil, c.add)
	if err != nil {
		db.logger.Debug("query failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return nil, classify(ctx, "query failed", err)
	}
	c.columns = cols
	rs := c.result()
	db.logger.Debug("query executed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("rows", rs.TotalRows),
		zap.Int("columns", len(rs.Columns)))
	return rs, nil
}

// Count returns the number of rows in table.
func (db *DB) Count(ctx context.Context, table string, timeout time.Duration) (int64, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var first any
	seen := false
	_, err := db.backend.query(ctx, timeout, db.dialect.CountQuery(table), nil, func(row []any) {
		if !seen && len(row) > 0 {
			first, seen = row[0], true
		}
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, dterrors.Wrap(dterrors.Probe, "count "+table+" timed out", err)
		}
		return 0, dterrors.Wrap(dterrors.Probe, "count "+table, err)
	}
	if !seen {
		return 0, dterrors.New(dterrors.Probe, "count "+table+" returned no rows")
	}
	n, err := toInt64(first)
	if err != nil {
		return 0, dterrors.Wrap(dterrors.Probe, "count "+table, err)
	}
	return n, nil
}

// Introspect returns the database schema, cached after the first call.
func (db *DB) Introspect(ctx context.Context) (*schema.Schema, error) {
	return db.inspector.Introspect(ctx)
}

// Inspector returns the schema inspector.
func (db *DB) Inspector() *Inspector { return db.inspector }

// queryAll runs an internal metadata query and returns every row.
func (db *DB) queryAll(ctx context.Context, stmt string, args []any) ([]string, [][]any, error) {
	var rows [][]any
	cols, err := db.backend.query(ctx, 0, stmt, args, func(row []any) {
		rows = append(rows, row)
	})
	return cols, rows, err
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// classify maps a query error to execution_timeout when the deadline passed.
func classify(ctx context.Context, msg string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "canceling statement due to statement timeout") {
		return dterrors.Wrap(dterrors.ExecutionTimeout, "query timed out", err)
	}
	return dterrors.Wrap(dterrors.Execution, msg, err)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	}
	return 0, fmt.Errorf("unexpected count value %v (%T)", v, v)
}
