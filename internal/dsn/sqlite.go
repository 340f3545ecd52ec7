// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"net/url"
	"sort"
	"strings"
)

// SQLiteResolver handles sqlite://path/to/file.db DSNs. The path may be
// relative, absolute (sqlite:///var/data/app.db) or :memory:.
type SQLiteResolver struct{}

// NewSQLiteResolver creates a new SQLite resolver
func NewSQLiteResolver() *SQLiteResolver {
	return &SQLiteResolver{}
}

// Parse parses a SQLite DSN string and returns DSN info
func (r *SQLiteResolver) Parse(dsn string) (*DSNInfo, error) {
	lower := strings.ToLower(dsn)
	if !strings.HasPrefix(lower, "sqlite://") && !strings.HasPrefix(lower, "sqlite3://") {
		return nil, NewParseError(dsn, "missing or invalid scheme", "use sqlite://path/to/database.db")
	}
	rest := stripScheme(dsn)

	info := &DSNInfo{
		Type:     DBTypeSQLite,
		Schema:   "main",
		Params:   make(map[string]string),
		Original: dsn,
	}

	path, query, _ := strings.Cut(rest, "?")
	info.Database = strings.TrimSpace(path)
	if query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return nil, NewParseError(dsn, "invalid query parameters", "")
		}
		for k, v := range values {
			if len(v) > 0 {
				info.Params[k] = v[0]
			}
		}
	}

	if info.Database == "" {
		return nil, NewParseError(dsn, "missing database path", "use sqlite://path/to/database.db or sqlite://:memory:")
	}
	return info, nil
}

// Normalize converts DSN info to a properly formatted connection string
func (r *SQLiteResolver) Normalize(info *DSNInfo) (string, error) {
	if info == nil {
		return "", NewParseError("", "nil DSN info", "")
	}
	var b strings.Builder
	b.WriteString("sqlite://")
	b.WriteString(info.Database)
	if len(info.Params) > 0 {
		keys := make([]string, 0, len(info.Params))
		for k := range info.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("?")
		for i, k := range keys {
			if i > 0 {
				b.WriteString("&")
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteString("=")
			b.WriteString(url.QueryEscape(info.Params[k]))
		}
	}
	return b.String(), nil
}

// Validate checks if the DSN is valid for SQLite
func (r *SQLiteResolver) Validate(dsn string) error {
	_, err := r.Parse(dsn)
	return err
}
