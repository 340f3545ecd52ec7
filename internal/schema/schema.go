// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package schema holds the introspected database structure and the filtered view
// of it that an exploration runs against.
//
// A Schema is immutable once introspected. A View is the subset of tables the
// user selected, each optionally annotated with free-text notes, plus the
// relationships whose both ends are selected.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	dterrors "datatwin/cli/internal/errors"
)

// TableKind distinguishes base tables from views.
type TableKind string

const (
	KindTable TableKind = "table"
	KindView  TableKind = "view"
)

// Column describes a single column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	// AllowedValues lists the values a check constraint restricts the column to.
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// Table is one table or view with its ordered columns.
type Table struct {
	Name    string    `json:"name"`
	Kind    TableKind `json:"kind"`
	Columns []Column  `json:"columns"`
}

// Relationship links a column to the table it most likely references.
type Relationship struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	// Inferred is true when the link was derived from naming rather than a declared foreign key.
	Inferred bool `json:"inferred"`
}

func (r Relationship) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
}

// Schema is the full introspected structure of a database.
type Schema struct {
	tables        map[string]Table
	relationships []Relationship
}

// Provider introspects a live database.
type Provider interface {
	Introspect(ctx context.Context) (*Schema, error)
}

// New builds a Schema. When rels is nil, relationships are inferred from column names.
func New(tables []Table, rels []Relationship) *Schema {
	s := &Schema{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		cols := make([]Column, len(t.Columns))
		copy(cols, t.Columns)
		t.Columns = cols
		if t.Kind == "" {
			t.Kind = KindTable
		}
		s.tables[t.Name] = t
	}
	if rels == nil {
		rels = InferRelationships(tables)
	}
	s.relationships = append([]Relationship(nil), rels...)
	return s
}

// TableNames returns every table name in lexicographic order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Len returns the number of tables.
func (s *Schema) Len() int { return len(s.tables) }

// Relationships returns a copy of all relationships.
func (s *Schema) Relationships() []Relationship {
	return append([]Relationship(nil), s.relationships...)
}

// MarshalJSON renders the schema with tables in name order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	tables := make([]Table, 0, len(s.tables))
	for _, n := range s.TableNames() {
		tables = append(tables, s.tables[n])
	}
	return json.Marshal(struct {
		Tables        []Table        `json:"tables"`
		Relationships []Relationship `json:"relationships"`
	}{tables, s.relationships})
}

// UnmarshalJSON restores a schema saved with MarshalJSON.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw struct {
		Tables        []Table        `json:"tables"`
		Relationships []Relationship `json:"relationships"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rels := raw.Relationships
	if rels == nil {
		rels = []Relationship{}
	}
	*s = *New(raw.Tables, rels)
	return nil
}

// TableView is a selected table with the user's notes.
type TableView struct {
	Table
	Notes string `json:"notes,omitempty"`
}

// View is the filtered, annotated subset of a Schema the engine explores.
type View struct {
	Tables        []TableView    `json:"tables"`
	Relationships []Relationship `json:"relationships"`
}

// Filter selects tables in the given order and attaches notes. Unknown tables,
// an empty selection, and notes for unselected tables are configuration errors.
func (s *Schema) Filter(selected []string, notes map[string]string) (*View, error) {
	if len(selected) == 0 {
		return nil, dterrors.New(dterrors.Configuration, "no tables selected")
	}

	v := &View{Relationships: []Relationship{}}
	seen := make(map[string]struct{}, len(selected))
	var unknown []string
	for _, raw := range selected {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		t, ok := s.tables[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		seen[name] = struct{}{}
		v.Tables = append(v.Tables, TableView{Table: t, Notes: strings.TrimSpace(notes[name])})
	}
	if len(unknown) > 0 {
		return nil, dterrors.New(dterrors.Configuration, "unknown tables: "+strings.Join(unknown, ", "))
	}
	if len(v.Tables) == 0 {
		return nil, dterrors.New(dterrors.Configuration, "no tables selected")
	}
	for name := range notes {
		if _, ok := seen[name]; !ok {
			return nil, dterrors.New(dterrors.Configuration, "note given for unselected table "+name)
		}
	}

	for _, r := range s.relationships {
		_, from := seen[r.FromTable]
		_, to := seen[r.ToTable]
		if from && to {
			v.Relationships = append(v.Relationships, r)
		}
	}
	return v, nil
}

// TableNames returns the selected table names in selection order.
func (v *View) TableNames() []string {
	names := make([]string, len(v.Tables))
	for i, t := range v.Tables {
		names[i] = t.Name
	}
	return names
}

// JSON renders the view for inclusion in prompts. Output is deterministic.
func (v *View) JSON() string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// InferRelationships links <name>_id columns to a table called <name> or <name>s
// that has an id column. Self references are skipped.
func InferRelationships(tables []Table) []Relationship {
	byName := make(map[string]Table, len(tables))
	for _, t := range tables {
		byName[strings.ToLower(t.Name)] = t
	}

	rels := []Relationship{}
	for _, t := range tables {
		for _, c := range t.Columns {
			lower := strings.ToLower(c.Name)
			if !strings.HasSuffix(lower, "_id") || lower == "_id" {
				continue
			}
			base := strings.TrimSuffix(lower, "_id")
			for _, candidate := range []string{base, base + "s", base + "es"} {
				target, ok := byName[candidate]
				if !ok || target.Name == t.Name {
					continue
				}
				toCol := "id"
				if hasColumn(target, c.Name) {
					toCol = c.Name
				} else if !hasColumn(target, "id") {
					continue
				}
				rels = append(rels, Relationship{
					FromTable:  t.Name,
					FromColumn: c.Name,
					ToTable:    target.Name,
					ToColumn:   toCol,
					Inferred:   true,
				})
				break
			}
		}
	}
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].FromTable != rels[j].FromTable {
			return rels[i].FromTable < rels[j].FromTable
		}
		return rels[i].FromColumn < rels[j].FromColumn
	})
	return rels
}

func hasColumn(t Table, name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}
