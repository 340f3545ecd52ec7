// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/llm"
	"datatwin/cli/internal/model"
	"datatwin/cli/internal/scale"
	"datatwin/cli/internal/schema"
)

func testView(t *testing.T) *schema.View {
	t.Helper()
	s := schema.New([]schema.Table{
		{Name: "customers", Kind: schema.KindTable, Columns: []schema.Column{{Name: "id", Type: "integer"}, {Name: "email", Type: "text"}}},
		{Name: "orders", Kind: schema.KindTable, Columns: []schema.Column{{Name: "id", Type: "integer"}, {Name: "customer_id", Type: "integer"}}},
	}, nil)
	v, err := s.Filter([]string{"customers", "orders"}, map[string]string{"orders": "one row per checkout"})
	require.NoError(t, err)
	return v
}

func testBuilder(t *testing.T, window int) *Builder {
	t.Helper()
	ts, err := DefaultTemplates()
	require.NoError(t, err)
	return NewBuilder(ts, window)
}

func record(seq int) model.QueryRecord {
	rs := model.NewResultSet([]string{"total_count"}, [][]any{{int64(seq * 10)}})
	return model.QueryRecord{
		Seq:       seq,
		SQL:       fmt.Sprintf("SELECT COUNT(*) AS total_count FROM orders WHERE marker = %d", seq),
		Rationale: fmt.Sprintf("rationale-%d", seq),
		Outcome:   model.Succeeded(rs),
		Analysis:  fmt.Sprintf("- marker %d has %d orders", seq, seq*10),
	}
}

func records(from, to int) []model.QueryRecord {
	out := make([]model.QueryRecord, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, record(i))
	}
	return out
}

func TestExploreBeforeFirstSummaryShowsEarliestRecords(t *testing.T) {
	b := testBuilder(t, 2)
	p, err := b.Explore(ExploreInput{
		View:   testView(t),
		Window: records(1, 3),
		Budget: model.Budget{Max: 7, Used: 3},
	})
	require.NoError(t, err)

	assert.Contains(t, p, "QUERY BUDGET: 3 of 7 queries used, 4 remaining")
	assert.Contains(t, p, "EARLIEST FINDINGS")
	assert.Contains(t, p, "rationale-1")
	assert.Contains(t, p, "rationale-2")
	assert.NotContains(t, p, "rationale-3")
	assert.NotContains(t, p, "PREVIOUS DISCOVERY SUMMARIES")
	assert.Contains(t, p, "one row per checkout")
}

func TestExploreAfterSummaryShowsLatestSummariesAndWindowTail(t *testing.T) {
	b := testBuilder(t, 2)
	summaries := []model.SummaryBatch{
		{FirstSeq: 1, LastSeq: 3, Content: "summary-one"},
		{FirstSeq: 4, LastSeq: 6, Content: "summary-two"},
		{FirstSeq: 7, LastSeq: 9, Content: "summary-three"},
	}
	p, err := b.Explore(ExploreInput{
		View:      testView(t),
		Summaries: summaries,
		Window:    records(10, 12),
		Budget:    model.Budget{Max: 20, Used: 12},
	})
	require.NoError(t, err)

	assert.NotContains(t, p, "summary-one")
	assert.Contains(t, p, "[Queries 4-6]\nsummary-two")
	assert.Contains(t, p, "[Queries 7-9]\nsummary-three")
	assert.Contains(t, p, "RECENT FINDINGS SINCE THE LAST SUMMARY")
	assert.NotContains(t, p, "rationale-10")
	assert.Contains(t, p, "rationale-11")
	assert.Contains(t, p, "rationale-12")
}

func TestExplorePromptStaysBounded(t *testing.T) {
	b := testBuilder(t, DefaultWindowSize)
	view := testView(t)

	small, err := b.Explore(ExploreInput{
		View:      view,
		Summaries: []model.SummaryBatch{{FirstSeq: 1, LastSeq: 3, Content: "s"}, {FirstSeq: 4, LastSeq: 6, Content: "s"}},
		Window:    records(7, 11),
		Budget:    model.Budget{Max: 10_000, Used: 11},
	})
	require.NoError(t, err)

	summaries := make([]model.SummaryBatch, 0, 3000)
	for i := 0; i < 3000; i++ {
		summaries = append(summaries, model.SummaryBatch{FirstSeq: i*3 + 1, LastSeq: i*3 + 3, Content: "s"})
	}
	large, err := b.Explore(ExploreInput{
		View:      view,
		Summaries: summaries,
		Window:    records(9001, 10_000),
		Budget:    model.Budget{Max: 10_000, Used: 9_999},
	})
	require.NoError(t, err)

	// Only digit widths differ between the two prompts.
	assert.Less(t, len(large), len(small)+400)
}

func TestExploreIncludesScale(t *testing.T) {
	b := testBuilder(t, 5)
	a := &scale.Assessment{
		TableCounts:   map[string]int64{"orders": 250_000, "customers": 0},
		Warnings:      map[string]string{"customers": "permission denied"},
		TotalRows:     250_000,
		Category:      scale.Medium,
		StrategyHint:  scale.StrategyHint(scale.Medium),
		LargestTable:  "orders",
		SmallestTable: "orders",
	}
	p, err := b.Explore(ExploreInput{View: testView(t), Scale: a, Budget: model.Budget{Max: 7}})
	require.NoError(t, err)

	assert.Contains(t, p, "Total rows: 250000 (medium)")
	assert.Contains(t, p, "- customers: unknown (permission denied)")
	assert.Contains(t, p, "- orders: 250000 rows")
	assert.NotContains(t, p, "FINDINGS")
}

func TestExploreShowsFailedRecords(t *testing.T) {
	b := testBuilder(t, 5)
	failed := model.QueryRecord{
		Seq:       1,
		SQL:       "SELECT nope FROM orders",
		Rationale: "probe",
		Outcome:   model.Failed(dterrors.New(dterrors.Execution, "column nope does not exist")),
	}
	p, err := b.Explore(ExploreInput{View: testView(t), Window: []model.QueryRecord{failed}, Budget: model.Budget{Max: 7, Used: 1}})
	require.NoError(t, err)
	assert.Contains(t, p, "FAILED (execution_error)")
	assert.Contains(t, p, "column nope does not exist")
}

func TestAnalyzeRowPreview(t *testing.T) {
	b := testBuilder(t, 5)

	rows := make([][]any, 0, 12)
	for i := 1; i <= 12; i++ {
		rows = append(rows, []any{fmt.Sprintf("row-%02d", i), nil})
	}

	tests := []struct {
		name     string
		rows     [][]any
		contains []string
		excludes []string
	}{
		{
			name:     "ten rows shown whole",
			rows:     rows[:10],
			contains: []string{"row-01", "row-10", "NULL"},
			excludes: []string{"First 5 of"},
		},
		{
			name:     "larger results show five",
			rows:     rows,
			contains: []string{"First 5 of 12 rows. Columns: name, note", "row-05"},
			excludes: []string{"row-06", "row-12"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := model.NewResultSet([]string{"name", "note"}, tt.rows)
			p, err := b.Analyze("SELECT name, note FROM things", "", rs)
			require.NoError(t, err)
			assert.Contains(t, p, "PURPOSE: "+NoReasoning)
			for _, s := range tt.contains {
				assert.Contains(t, p, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, p, s)
			}
		})
	}
}

func TestSummarizeAnchorsAndTruncation(t *testing.T) {
	b := testBuilder(t, 5)
	batch := records(4, 6)
	batch[0].SQL = "SELECT " + strings.Repeat("x", 300)

	p, err := b.Summarize(batch)
	require.NoError(t, err)

	assert.Contains(t, p, "queries 4-6")
	assert.Contains(t, p, "Query #4: total_count = 40")
	assert.Contains(t, p, "Query #6: total_count = 60")
	assert.NotContains(t, p, strings.Repeat("x", 150))

	_, err = b.Summarize(nil)
	assert.Error(t, err)
}

func TestFactualAnchorsSkipFailures(t *testing.T) {
	batch := []model.QueryRecord{
		{Seq: 1, Outcome: model.Failed(dterrors.New(dterrors.Execution, "boom"))},
		{Seq: 2, Outcome: model.Succeeded(model.NewResultSet([]string{"status", "unique_users", "pct_null"}, [][]any{{"active", 42, 0.5}}))},
		{Seq: 3, Outcome: model.Succeeded(model.NewResultSet([]string{"total"}, nil))},
	}
	assert.Equal(t, []string{"Query #2: unique_users = 42", "Query #2: pct_null = 0.5"}, FactualAnchors(batch))
}

func TestReportPrompt(t *testing.T) {
	b := testBuilder(t, 5)
	tail := records(6, 7)
	tail[1].Findings = []string{"orders spike on mondays"}

	p, err := b.Report(ReportInput{
		View:         testView(t),
		TotalQueries: 7,
		Summaries:    []model.SummaryBatch{{FirstSeq: 1, LastSeq: 3, Content: "early summary"}},
		Tail:         tail,
	})
	require.NoError(t, err)

	assert.Contains(t, p, "exploration of 2 tables")
	assert.Contains(t, p, "7 queries were attempted and compressed into 1 summaries")
	assert.Contains(t, p, "- orders (2 columns): one row per checkout")
	assert.Contains(t, p, "early summary")
	assert.Contains(t, p, "  - orders spike on mondays")
	for _, section := range []string{"## Data Structure Overview", "## Key Discoveries", "## Data Quality Insights", "## Recommendations"} {
		assert.Contains(t, p, section)
	}
}

func TestParseExploreResponse(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		sql       string
		rationale string
		wantErr   bool
	}{
		{
			name:      "plain",
			text:      "SQL: SELECT COUNT(*) FROM orders\nREASONING: size of the fact table",
			sql:       "SELECT COUNT(*) FROM orders",
			rationale: "size of the fact table",
		},
		{
			name:      "fenced with preamble",
			text:      "Here is my next step.\nSQL:\n```sql\nSELECT status, COUNT(*)\nFROM orders\nGROUP BY status\n```\nREASONING: status mix",
			sql:       "SELECT status, COUNT(*)\nFROM orders\nGROUP BY status",
			rationale: "status mix",
		},
		{
			name:      "missing reasoning",
			text:      "SQL: SELECT 1",
			sql:       "SELECT 1",
			rationale: NoReasoning,
		},
		{
			name:      "uppercase first fence line is kept",
			text:      "SQL: ```SELECT\n1```",
			sql:       "SELECT\n1",
			rationale: NoReasoning,
		},
		{name: "no marker", text: "I would look at orders next.", wantErr: true},
		{name: "empty statement", text: "SQL:\nREASONING: nothing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, rationale, err := ParseExploreResponse(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dterrors.Is(err, dterrors.PromptParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.rationale, rationale)
		})
	}
}

func TestTemplatesRequiredFields(t *testing.T) {
	ts, err := DefaultTemplates()
	require.NoError(t, err)
	assert.Equal(t, []string{"analyze", "explore", "report", "summarize"}, ts.Kinds())

	_, err = ts.Render(llm.KindExplore, map[string]any{"budget_line": "x"})
	require.Error(t, err)
	assert.True(t, dterrors.Is(err, dterrors.Template))

	_, err = ts.Render(llm.Kind("nope"), nil)
	assert.Error(t, err)
}

func TestLoadTemplateSetOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	override := "version: 2\ntemplates:\n  report:\n    version: 2\n    required: [total_queries]\n    text: \"custom report after {{.total_queries}} queries\"\n"
	require.NoError(t, os.WriteFile(path, []byte(override), 0o600))

	ts, err := LoadTemplateSet(path)
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Version)

	out, err := ts.Render(llm.KindReport, map[string]any{"total_queries": "9"})
	require.NoError(t, err)
	assert.Equal(t, "custom report after 9 queries\n", out)

	_, err = ts.Render(llm.KindExplore, map[string]any{"budget_line": "b", "schema": "{}"})
	assert.NoError(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("templates:\n  explore:\n    text: \"{{.broken\"\n"), 0o600))
	_, err = LoadTemplateSet(bad)
	assert.True(t, dterrors.Is(err, dterrors.Template))
}
