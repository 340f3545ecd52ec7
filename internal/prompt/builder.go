// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package prompt assembles the prompts sent to the language model and parses the
// structured part of its answers.
//
// Builders are pure: the same inputs always produce the same prompt, and no
// method performs I/O. Explore prompt size is bounded by two summaries plus a
// fixed window of raw findings, however long the exploration runs.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"datatwin/cli/internal/llm"
	"datatwin/cli/internal/model"
	"datatwin/cli/internal/scale"
	"datatwin/cli/internal/schema"
)

const (
	// DefaultWindowSize is how many raw findings an explore prompt shows.
	DefaultWindowSize = 5
	// SummariesInPrompt is how many of the most recent summaries an explore prompt shows.
	SummariesInPrompt = 2

	analyzeFullRows    = 10
	analyzePreviewRows = 5
	sqlPreviewLen      = 100
	analysisPreviewLen = 600
	cellPreviewLen     = 80
)

// Builder renders prompts from exploration state.
type Builder struct {
	templates *TemplateSet
	window    int
}

// NewBuilder creates a Builder. window is the raw findings window size W.
func NewBuilder(templates *TemplateSet, window int) *Builder {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &Builder{templates: templates, window: window}
}

// WindowSize returns W.
func (b *Builder) WindowSize() int { return b.window }

// ExploreInput is the state an explore prompt depends on.
type ExploreInput struct {
	View      *schema.View
	Scale     *scale.Assessment
	Summaries []model.SummaryBatch
	// Window holds the records since the last successful summarization.
	Window []model.QueryRecord
	Budget model.Budget
}

// Explore builds the prompt asking for the next query. Before any summary
// exists it shows the first W window records; afterwards the last W.
func (b *Builder) Explore(in ExploreInput) (string, error) {
	recent := in.Summaries
	if len(recent) > SummariesInPrompt {
		recent = recent[len(recent)-SummariesInPrompt:]
	}

	var shown []model.QueryRecord
	title := ""
	if len(in.Summaries) == 0 {
		shown = firstN(in.Window, b.window)
		title = "EARLIEST FINDINGS"
	} else {
		shown = lastN(in.Window, b.window)
		title = "RECENT FINDINGS SINCE THE LAST SUMMARY"
	}

	data := map[string]any{
		"budget_line":    BudgetLine(in.Budget),
		"schema":         viewJSON(in.View),
		"scale":          scaleBlock(in.Scale),
		"summaries":      summariesBlock(recent),
		"findings_title": title,
		"findings":       findingsBlock(shown),
	}
	return b.templates.Render(llm.KindExplore, data)
}

// Analyze builds the prompt interpreting one successful query result. Results
// of up to 10 rows are shown whole; larger ones show the first 5 rows.
func (b *Builder) Analyze(sql, rationale string, rs *model.ResultSet) (string, error) {
	data := map[string]any{
		"sql":            sql,
		"rationale":      orDefault(rationale, NoReasoning),
		"result_summary": rs.Summary(),
		"result_data":    resultData(rs),
	}
	return b.templates.Render(llm.KindAnalyze, data)
}

// Summarize builds the prompt compressing a contiguous batch of records.
func (b *Builder) Summarize(batch []model.QueryRecord) (string, error) {
	if len(batch) == 0 {
		return "", fmt.Errorf("empty batch")
	}
	var q strings.Builder
	for _, rec := range batch {
		fmt.Fprintf(&q, "Query #%d: %s\n", rec.Seq, truncate(oneLine(rec.SQL), sqlPreviewLen))
		fmt.Fprintf(&q, "  Result: %s\n", rec.Outcome.Summary)
		if rec.Analysis != "" {
			fmt.Fprintf(&q, "  Analysis: %s\n", truncate(oneLine(rec.Analysis), analysisPreviewLen))
		}
	}
	data := map[string]any{
		"range":   fmt.Sprintf("%d-%d", batch[0].Seq, batch[len(batch)-1].Seq),
		"anchors": strings.Join(FactualAnchors(batch), "\n"),
		"queries": strings.TrimRight(q.String(), "\n"),
	}
	return b.templates.Render(llm.KindSummarize, data)
}

// ReportInput is the state the final report prompt depends on.
type ReportInput struct {
	View         *schema.View
	Scale        *scale.Assessment
	TotalQueries int
	Summaries    []model.SummaryBatch
	// Tail holds the most recent records, newest last.
	Tail []model.QueryRecord
}

// Report builds the final report prompt from every summary plus the tail.
func (b *Builder) Report(in ReportInput) (string, error) {
	tableCount := 0
	var tables strings.Builder
	if in.View != nil {
		tableCount = len(in.View.Tables)
		for _, t := range in.View.Tables {
			fmt.Fprintf(&tables, "- %s (%d columns)", t.Name, len(t.Columns))
			if t.Notes != "" {
				fmt.Fprintf(&tables, ": %s", t.Notes)
			}
			tables.WriteString("\n")
		}
	}

	var tail strings.Builder
	for _, rec := range in.Tail {
		fmt.Fprintf(&tail, "#%d %s -> %s\n", rec.Seq, truncate(oneLine(rec.SQL), sqlPreviewLen), rec.Outcome.Summary)
		for _, f := range rec.Findings {
			fmt.Fprintf(&tail, "  - %s\n", f)
		}
	}

	data := map[string]any{
		"table_count":   fmt.Sprint(tableCount),
		"total_queries": fmt.Sprint(in.TotalQueries),
		"summary_count": fmt.Sprint(len(in.Summaries)),
		"scale":         scaleBlock(in.Scale),
		"tables":        strings.TrimRight(tables.String(), "\n"),
		"summaries":     summariesBlock(in.Summaries),
		"tail":          strings.TrimRight(tail.String(), "\n"),
	}
	return b.templates.Render(llm.KindReport, data)
}

// BudgetLine states how much of the query budget is left.
func BudgetLine(b model.Budget) string {
	return fmt.Sprintf("QUERY BUDGET: %d of %d queries used, %d remaining. You are writing query %d of %d.",
		b.Used, b.Max, b.Remaining(), b.Used+1, b.Max)
}

// FactualAnchors lists first-row values of count/total/unique/percentage columns
// so summaries quote exact numbers.
func FactualAnchors(batch []model.QueryRecord) []string {
	anchors := []string{}
	for _, rec := range batch {
		rs := rec.Outcome.Result
		if !rec.Succeeded() || rs == nil || len(rs.Rows) == 0 {
			continue
		}
		row := rs.Rows[0]
		for i, col := range rs.Columns {
			if i >= len(row) || !isAnchorColumn(col) {
				continue
			}
			anchors = append(anchors, fmt.Sprintf("Query #%d: %s = %v", rec.Seq, col, formatCell(row[i])))
		}
	}
	return anchors
}

func isAnchorColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range []string{"count", "total", "unique", "percentage", "pct"} {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func viewJSON(v *schema.View) string {
	if v == nil {
		return ""
	}
	return v.JSON()
}

func scaleBlock(a *scale.Assessment) string {
	if a == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Total rows: %d (%s)\n", a.TotalRows, a.Category)
	fmt.Fprintf(&b, "Strategy: %s\n", a.StrategyHint)
	names := make([]string, 0, len(a.TableCounts))
	for n := range a.TableCounts {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if w, failed := a.Warnings[n]; failed {
			fmt.Fprintf(&b, "- %s: unknown (%s)\n", n, truncate(w, 120))
			continue
		}
		fmt.Fprintf(&b, "- %s: %d rows\n", n, a.TableCounts[n])
	}
	if a.LargestTable != "" {
		fmt.Fprintf(&b, "Largest table: %s (%d rows). Smallest table: %s (%d rows).",
			a.LargestTable, a.TableCounts[a.LargestTable], a.SmallestTable, a.TableCounts[a.SmallestTable])
	}
	return strings.TrimRight(b.String(), "\n")
}

func summariesBlock(batches []model.SummaryBatch) string {
	var b strings.Builder
	for i, s := range batches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Queries %s]\n%s", s.Range(), strings.TrimSpace(s.Content))
	}
	return b.String()
}

func findingsBlock(records []model.QueryRecord) string {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Query #%d: %s\n", rec.Seq, oneLine(rec.SQL))
		fmt.Fprintf(&b, "  Reasoning: %s\n", truncate(oneLine(rec.Rationale), analysisPreviewLen))
		if rec.Succeeded() {
			fmt.Fprintf(&b, "  Result: %s\n", rec.Outcome.Summary)
		} else {
			fmt.Fprintf(&b, "  Result: FAILED (%s): %s\n", rec.Outcome.ErrorKind, truncate(oneLine(rec.Outcome.Error), 200))
		}
		switch {
		case rec.Analysis != "":
			fmt.Fprintf(&b, "  Analysis: %s\n", truncate(oneLine(rec.Analysis), analysisPreviewLen))
		case rec.AnalysisError != "":
			b.WriteString("  Analysis: unavailable\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func resultData(rs *model.ResultSet) string {
	if rs == nil || len(rs.Columns) == 0 {
		return "(no columns returned)"
	}
	rows := rs.Rows
	note := ""
	if rs.TotalRows > analyzeFullRows {
		if len(rows) > analyzePreviewRows {
			rows = rows[:analyzePreviewRows]
		}
		note = fmt.Sprintf("First %d of %d rows. Columns: %s", len(rows), rs.TotalRows, strings.Join(rs.Columns, ", "))
	}

	var b strings.Builder
	if note != "" {
		b.WriteString(note)
		b.WriteString("\n")
	}
	b.WriteString(strings.Join(rs.Columns, " | "))
	for _, row := range rows {
		b.WriteString("\n")
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = truncate(formatCell(v), cellPreviewLen)
		}
		b.WriteString(strings.Join(cells, " | "))
	}
	return b.String()
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

func firstN(records []model.QueryRecord, n int) []model.QueryRecord {
	if len(records) <= n {
		return records
	}
	return records[:n]
}

func lastN(records []model.QueryRecord, n int) []model.QueryRecord {
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
