// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"datatwin/cli/internal/dsn"
	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/schema"
)

var (
	inListRegex   = regexp.MustCompile(`(?i)IN\s*\(\s*([^)]+)\)`)
	anyArrayRegex = regexp.MustCompile(`(?i)=\s*ANY\s*\(\s*\(?\s*ARRAY\s*\[([^\]]+)\]`)
)

// Inspector discovers tables, columns and relationships and caches the result.
type Inspector struct {
	db     *DB
	logger *zap.Logger

	// cached is the last introspected schema
	cached *schema.Schema
	// mu protects cached
	mu sync.RWMutex
}

// NewInspector creates an Inspector over db.
func NewInspector(db *DB, logger *zap.Logger) *Inspector {
	return &Inspector{db: db, logger: logging.OrNop(logger)}
}

// Introspect returns the cached schema or discovers it.
func (si *Inspector) Introspect(ctx context.Context) (*schema.Schema, error) {
	si.mu.RLock()
	if si.cached != nil {
		s := si.cached
		si.mu.RUnlock()
		return s, nil
	}
	si.mu.RUnlock()

	s, err := si.discover(ctx)
	if err != nil {
		return nil, err
	}

	si.mu.Lock()
	si.cached = s
	si.mu.Unlock()
	return s, nil
}

// ClearCache forgets the cached schema so the next Introspect queries again.
func (si *Inspector) ClearCache() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.cached = nil
}

func (si *Inspector) discover(ctx context.Context) (*schema.Schema, error) {
	d := si.db.dialect

	q, args := d.tablesQuery()
	_, rows, err := si.db.queryAll(ctx, q, args)
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Configuration, "list tables", err)
	}

	tables := make([]schema.Table, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		name := asString(r[0])
		index[name] = len(tables)
		tables = append(tables, schema.Table{Name: name, Kind: tableKind(asString(r[1])), Columns: []schema.Column{}})
	}

	if d.Type == dsn.DBTypeSQLite {
		si.loadSQLiteColumns(ctx, tables)
	} else if err := si.loadColumns(ctx, tables, index); err != nil {
		si.logger.Warn("column discovery failed", zap.Error(err))
	}
	si.loadCheckConstraints(ctx, tables, index)

	rels, err := si.loadForeignKeys(ctx, tables)
	if err != nil {
		si.logger.Warn("foreign key discovery failed, inferring relationships", zap.Error(err))
		rels = nil
	}
	if len(rels) == 0 {
		rels = nil
	}

	si.logger.Info("schema introspected",
		zap.String("type", string(d.Type)),
		zap.Int("tables", len(tables)),
		zap.Int("declared_relationships", len(rels)))
	return schema.New(tables, rels), nil
}

// loadColumns fills columns from information_schema in one query.
func (si *Inspector) loadColumns(ctx context.Context, tables []schema.Table, index map[string]int) error {
	q, args := si.db.dialect.columnsQuery()
	_, rows, err := si.db.queryAll(ctx, q, args)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if len(r) < 4 {
			continue
		}
		i, ok := index[asString(r[0])]
		if !ok {
			continue
		}
		tables[i].Columns = append(tables[i].Columns, schema.Column{
			Name:     asString(r[1]),
			Type:     strings.ToLower(asString(r[2])),
			Nullable: strings.EqualFold(asString(r[3]), "YES"),
		})
	}
	return nil
}

// loadSQLiteColumns runs the table_info pragma per table. A failing table keeps
// no columns.
func (si *Inspector) loadSQLiteColumns(ctx context.Context, tables []schema.Table) {
	for i := range tables {
		cols, rows, err := si.db.queryAll(ctx, si.db.dialect.pragmaColumns(tables[i].Name), nil)
		if err != nil {
			si.logger.Warn("column discovery failed", zap.String("table", tables[i].Name), zap.Error(err))
			continue
		}
		pos := columnPositions(cols)
		for _, r := range rows {
			notNull, _ := toInt64(r[pos["notnull"]])
			tables[i].Columns = append(tables[i].Columns, schema.Column{
				Name:     asString(r[pos["name"]]),
				Type:     strings.ToLower(asString(r[pos["type"]])),
				Nullable: notNull == 0,
			})
		}
	}
}

// loadCheckConstraints attaches allowed values extracted from check clauses
// such as "status IN ('queued','done')". Failures are non-fatal.
func (si *Inspector) loadCheckConstraints(ctx context.Context, tables []schema.Table, index map[string]int) {
	q, args, ok := si.db.dialect.checkConstraintsQuery()
	if !ok {
		return
	}
	_, rows, err := si.db.queryAll(ctx, q, args)
	if err != nil {
		si.logger.Debug("check constraint discovery failed", zap.Error(err))
		return
	}
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		i, ok := index[asString(r[0])]
		if !ok {
			continue
		}
		values := extractEnumValues(asString(r[2]))
		if len(values) == 0 {
			continue
		}
		for j := range tables[i].Columns {
			if tables[i].Columns[j].Name == asString(r[1]) {
				tables[i].Columns[j].AllowedValues = values
			}
		}
	}
}

// loadForeignKeys returns declared foreign keys between discovered tables.
func (si *Inspector) loadForeignKeys(ctx context.Context, tables []schema.Table) ([]schema.Relationship, error) {
	known := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		known[t.Name] = struct{}{}
	}
	keep := func(r schema.Relationship) bool {
		_, from := known[r.FromTable]
		_, to := known[r.ToTable]
		return from && to
	}

	if si.db.dialect.Type == dsn.DBTypeSQLite {
		var rels []schema.Relationship
		for _, t := range tables {
			cols, rows, err := si.db.queryAll(ctx, si.db.dialect.pragmaForeignKeys(t.Name), nil)
			if err != nil {
				return nil, fmt.Errorf("foreign keys of %s: %w", t.Name, err)
			}
			pos := columnPositions(cols)
			for _, r := range rows {
				rel := schema.Relationship{
					FromTable:  t.Name,
					FromColumn: asString(r[pos["from"]]),
					ToTable:    asString(r[pos["table"]]),
					ToColumn:   asString(r[pos["to"]]),
				}
				if rel.ToColumn == "" {
					rel.ToColumn = "id"
				}
				if keep(rel) {
					rels = append(rels, rel)
				}
			}
		}
		return rels, nil
	}

	q, args, ok := si.db.dialect.foreignKeysQuery()
	if !ok {
		return nil, nil
	}
	_, rows, err := si.db.queryAll(ctx, q, args)
	if err != nil {
		return nil, err
	}
	var rels []schema.Relationship
	for _, r := range rows {
		if len(r) < 4 {
			continue
		}
		rel := schema.Relationship{
			FromTable:  asString(r[0]),
			FromColumn: asString(r[1]),
			ToTable:    asString(r[2]),
			ToColumn:   asString(r[3]),
		}
		if keep(rel) {
			rels = append(rels, rel)
		}
	}
	return rels, nil
}

func tableKind(raw string) schema.TableKind {
	if strings.Contains(strings.ToLower(raw), "view") {
		return schema.KindView
	}
	return schema.KindTable
}

func columnPositions(cols []string) map[string]int {
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[strings.ToLower(c)] = i
	}
	return pos
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return fmt.Sprint(v)
}

// extractEnumValues extracts enum values from a check constraint clause.
// It supports patterns like:
//   - "status IN ('queued','running','done','failed')"
//   - "status = ANY (ARRAY['queued'::text, 'running'::text, ...])"
func extractEnumValues(checkClause string) []string {
	if match := inListRegex.FindStringSubmatch(checkClause); len(match) > 1 {
		return parseEnumValueList(match[1])
	}
	if match := anyArrayRegex.FindStringSubmatch(checkClause); len(match) > 1 {
		return parseEnumValueList(match[1])
	}
	return nil
}

// parseEnumValueList parses a comma-separated list of enum values, dropping
// quotes and type casts.
func parseEnumValueList(valueList string) []string {
	var result []string
	for _, val := range strings.Split(valueList, ",") {
		val = strings.TrimSpace(val)
		if idx := strings.Index(val, "::"); idx >= 0 {
			val = val[:idx]
		}
		val = strings.Trim(strings.TrimSpace(val), "'\"")
		if val != "" {
			result = append(result, val)
		}
	}
	return result
}
