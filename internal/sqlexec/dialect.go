// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"fmt"
	"strings"

	"datatwin/cli/internal/dsn"
)

// Dialect holds the per-engine SQL text the executor and inspector need.
type Dialect struct {
	Type dsn.DBType
	// Schema scopes introspection. Empty means the engine's current schema.
	Schema string

	quoteOpen, quoteClose string
}

// DialectFor returns the dialect of a database type.
func DialectFor(t dsn.DBType, schemaName string) Dialect {
	d := Dialect{Type: t, Schema: schemaName, quoteOpen: `"`, quoteClose: `"`}
	if t == dsn.DBTypeMySQL {
		d.quoteOpen, d.quoteClose = "`", "`"
	}
	if t == dsn.DBTypePostgreSQL && d.Schema == "" {
		d.Schema = "public"
	}
	return d
}

// Quote quotes an identifier. Dotted names are quoted per part.
func (d Dialect) Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		p = strings.ReplaceAll(p, d.quoteClose, d.quoteClose+d.quoteClose)
		parts[i] = d.quoteOpen + p + d.quoteClose
	}
	return strings.Join(parts, ".")
}

// CountQuery returns the row-count probe for a table.
func (d Dialect) CountQuery(table string) string {
	return "SELECT COUNT(*) FROM " + d.Quote(table)
}

// bind returns the n-th (1-based) positional placeholder.
func (d Dialect) bind(n int) string {
	if d.Type == dsn.DBTypePostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// schemaPredicate scopes an information_schema query to the target schema.
func (d Dialect) schemaPredicate(column string) (string, []any) {
	switch d.Type {
	case dsn.DBTypeMySQL:
		return column + " = DATABASE()", nil
	case dsn.DBTypeSnowflake:
		if d.Schema == "" {
			return column + " = CURRENT_SCHEMA()", nil
		}
		return column + " = " + d.bind(1), []any{strings.ToUpper(d.Schema)}
	default:
		return column + " = " + d.bind(1), []any{d.Schema}
	}
}

// tablesQuery lists tables and views with their kind.
func (d Dialect) tablesQuery() (string, []any) {
	if d.Type == dsn.DBTypeSQLite {
		return `SELECT name, type FROM sqlite_master
			WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
			ORDER BY name`, nil
	}
	pred, args := d.schemaPredicate("table_schema")
	return `SELECT table_name, table_type FROM information_schema.tables
		WHERE ` + pred + `
		ORDER BY table_name`, args
}

// columnsQuery lists every column of the schema in ordinal order. SQLite uses
// per-table pragmas instead.
func (d Dialect) columnsQuery() (string, []any) {
	pred, args := d.schemaPredicate("table_schema")
	return `SELECT table_name, column_name, data_type, is_nullable FROM information_schema.columns
		WHERE ` + pred + `
		ORDER BY table_name, ordinal_position`, args
}

// foreignKeysQuery lists declared foreign keys as (table, column, ref table, ref column).
// ok is false when the engine exposes no usable foreign key metadata.
func (d Dialect) foreignKeysQuery() (query string, args []any, ok bool) {
	switch d.Type {
	case dsn.DBTypePostgreSQL:
		pred, args := d.schemaPredicate("tc.table_schema")
		return `SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
			  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY' AND ` + pred + `
			ORDER BY kcu.table_name, kcu.column_name`, args, true
	case dsn.DBTypeMySQL:
		pred, args := d.schemaPredicate("table_schema")
		return `SELECT table_name, column_name, referenced_table_name, referenced_column_name
			FROM information_schema.key_column_usage
			WHERE referenced_table_name IS NOT NULL AND ` + pred + `
			ORDER BY table_name, column_name`, args, true
	}
	return "", nil, false
}

// checkConstraintsQuery lists column check clauses. Only Postgres names
// column checks predictably (<column>_check).
func (d Dialect) checkConstraintsQuery() (query string, args []any, ok bool) {
	if d.Type != dsn.DBTypePostgreSQL {
		return "", nil, false
	}
	pred, args := d.schemaPredicate("cc.constraint_schema")
	return `SELECT c.table_name, c.column_name, cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.columns c
		  ON cc.constraint_name = c.table_name || '_' || c.column_name || '_check'
		 AND cc.constraint_schema = c.table_schema
		WHERE ` + pred, args, true
}

// pragmaColumns returns the SQLite column pragma for a table.
func (d Dialect) pragmaColumns(table string) string {
	return "PRAGMA table_info(" + d.Quote(table) + ")"
}

// pragmaForeignKeys returns the SQLite foreign key pragma for a table.
func (d Dialect) pragmaForeignKeys(table string) string {
	return "PRAGMA foreign_key_list(" + d.Quote(table) + ")"
}
