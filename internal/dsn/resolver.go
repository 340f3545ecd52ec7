// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn detects, validates and normalizes database connection strings for
// every engine datatwin can explore. Each engine is identified by its URL scheme
// (postgres://, snowflake://, mysql://, sqlite://) and handled by its own Resolver.
package dsn

import (
	"strings"
)

const supportedSchemes = "use postgres://, snowflake://, mysql:// or sqlite://"

// DetectDBType detects the database type from a DSN string
func DetectDBType(dsn string) DBType {
	lower := strings.ToLower(strings.TrimSpace(dsn))

	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DBTypePostgreSQL
	case strings.HasPrefix(lower, "snowflake://"):
		return DBTypeSnowflake
	case strings.HasPrefix(lower, "mysql://"):
		return DBTypeMySQL
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "sqlite3://"):
		return DBTypeSQLite
	}

	return DBTypeUnknown
}

// resolverFor returns the resolver for a DSN, or a ParseError for unknown schemes.
func resolverFor(dsn string) (Resolver, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}

	switch DetectDBType(dsn) {
	case DBTypePostgreSQL:
		return NewPostgreSQLResolver(), nil
	case DBTypeSnowflake:
		return NewSnowflakeResolver(), nil
	case DBTypeMySQL:
		return NewMySQLResolver(), nil
	case DBTypeSQLite:
		return NewSQLiteResolver(), nil
	}
	return nil, NewParseError(dsn, "unknown database type", supportedSchemes)
}

// Parse parses a DSN string and returns normalized connection string
// This is the main entry point for DSN parsing
func Parse(dsn string) (string, error) {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return "", err
	}

	info, err := resolver.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return "", err
	}

	return resolver.Normalize(info)
}

// Validate validates a DSN string without normalizing it
func Validate(dsn string) error {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return err
	}
	return resolver.Validate(strings.TrimSpace(dsn))
}

// ParseInfo parses a DSN string and returns detailed DSN info
// Useful for inspecting connection details
func ParseInfo(dsn string) (*DSNInfo, error) {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return nil, err
	}
	return resolver.Parse(strings.TrimSpace(dsn))
}

// DriverDSN converts a normalized DSN into the form its database/sql or pgx
// driver expects, stripping the datatwin scheme where the driver does not use one.
func DriverDSN(normalized string) (DBType, string, error) {
	t := DetectDBType(normalized)
	trimmed := strings.TrimSpace(normalized)
	switch t {
	case DBTypePostgreSQL:
		return t, trimmed, nil
	case DBTypeSnowflake, DBTypeMySQL, DBTypeSQLite:
		idx := strings.Index(trimmed, "://")
		return t, trimmed[idx+3:], nil
	}
	return t, "", NewParseError(normalized, "unknown database type", supportedSchemes)
}
