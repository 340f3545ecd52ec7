// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package model defines the records an exploration accumulates: query results,
// query records, summary batches, the budget, the final report and the error log.
// Values are treated as immutable once appended to exploration state.
package model

import (
	"fmt"
	"strings"
	"time"

	dterrors "datatwin/cli/internal/errors"
)

const (
	// FullResultLimit is the largest result kept in full.
	FullResultLimit = 100
	// TruncatedSampleSize is how many rows are kept when a result exceeds FullResultLimit.
	TruncatedSampleSize = 50
)

// ResultSet is a bounded sample of a query result.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	// TotalRows is the number of rows the query actually returned.
	TotalRows int  `json:"total_rows"`
	Truncated bool `json:"truncated"`
}

// NewResultSet applies the sampling rule: results of up to FullResultLimit rows
// are kept whole, larger ones keep the first TruncatedSampleSize rows.
func NewResultSet(columns []string, rows [][]any) *ResultSet {
	rs := &ResultSet{Columns: columns, TotalRows: len(rows)}
	if rs.Columns == nil {
		rs.Columns = []string{}
	}
	if len(rows) > FullResultLimit {
		rs.Rows = rows[:TruncatedSampleSize]
		rs.Truncated = true
	} else {
		rs.Rows = rows
	}
	if rs.Rows == nil {
		rs.Rows = [][]any{}
	}
	return rs
}

// Summary describes the result shape in one line.
func (r *ResultSet) Summary() string {
	if r == nil {
		return "no result"
	}
	s := fmt.Sprintf("%d rows x %d columns", r.TotalRows, len(r.Columns))
	if len(r.Columns) > 0 {
		s += " (" + strings.Join(r.Columns, ", ") + ")"
	}
	if r.Truncated {
		s += fmt.Sprintf(", first %d rows kept", len(r.Rows))
	}
	return s
}

// OutcomeStatus is the result of executing a query.
type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "succeeded"
	StatusFailed    OutcomeStatus = "failed"
)

// Outcome is either a successful result sample or a failure with its kind.
type Outcome struct {
	Status      OutcomeStatus `json:"status"`
	RowCount    int           `json:"row_count"`
	ColumnCount int           `json:"column_count"`
	Summary     string        `json:"result_summary"`
	Result      *ResultSet    `json:"result,omitempty"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Succeeded builds a successful outcome from a result set.
func Succeeded(rs *ResultSet) Outcome {
	if rs == nil {
		rs = NewResultSet(nil, nil)
	}
	return Outcome{
		Status:      StatusSucceeded,
		RowCount:    rs.TotalRows,
		ColumnCount: len(rs.Columns),
		Summary:     rs.Summary(),
		Result:      rs,
	}
}

// Failed builds a failed outcome. The error kind defaults to execution_error.
func Failed(err error) Outcome {
	kind := dterrors.KindOf(err)
	if kind == "" {
		kind = dterrors.Execution
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{
		Status:    StatusFailed,
		Summary:   "failed: " + msg,
		ErrorKind: string(kind),
		Error:     msg,
	}
}

// QueryRecord is one attempted exploration step. Seq is 1-based and gapless.
type QueryRecord struct {
	Seq       int     `json:"seq"`
	SQL       string  `json:"sql"`
	Rationale string  `json:"rationale"`
	Outcome   Outcome `json:"outcome"`
	Analysis  string  `json:"analysis,omitempty"`
	// AnalysisError is set when the query succeeded but its interpretation failed.
	AnalysisError string    `json:"analysis_error,omitempty"`
	Findings      []string  `json:"findings"`
	Timestamp     time.Time `json:"timestamp"`
}

// Succeeded reports whether the query executed successfully.
func (q QueryRecord) Succeeded() bool { return q.Outcome.Status == StatusSucceeded }

// SummaryBatch is the compressed form of a contiguous range of query records.
type SummaryBatch struct {
	FirstSeq    int       `json:"first_seq"`
	LastSeq     int       `json:"last_seq"`
	GeneratedAt time.Time `json:"generated_at"`
	Content     string    `json:"content"`
	QueryCount  int       `json:"query_count"`
}

// Range renders the covered sequence range, e.g. "4-6".
func (b SummaryBatch) Range() string {
	return fmt.Sprintf("%d-%d", b.FirstSeq, b.LastSeq)
}

// Budget tracks query attempts against the configured maximum.
type Budget struct {
	Max  int `json:"max_queries"`
	Used int `json:"queries_used"`
}

// Remaining returns how many attempts are left.
func (b Budget) Remaining() int {
	if r := b.Max - b.Used; r > 0 {
		return r
	}
	return 0
}

// Exhausted reports whether no attempts are left.
func (b Budget) Exhausted() bool { return b.Used >= b.Max }

// Report is the final synthesized report.
type Report struct {
	Content      string    `json:"content"`
	GeneratedAt  time.Time `json:"generated_at"`
	TableCount   int       `json:"table_count"`
	TotalQueries int       `json:"total_queries"`
	SummaryCount int       `json:"summary_count"`
}

// ErrorEntry is one line of the exploration error log.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"`
	Kind      string    `json:"kind"`
	Seq       int       `json:"seq,omitempty"`
	Message   string    `json:"message"`
}

// PromptRecord is one language model call: what was asked and what came back.
// Seq is the query being attempted for explore and analyze calls, and the
// number of queries used so far for summarize and report calls.
type PromptRecord struct {
	Seq       int       `json:"seq"`
	Kind      string    `json:"kind"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractFindings returns the bullet lines ("- " or "* ") of an analysis text.
func ExtractFindings(analysis string) []string {
	findings := []string{}
	for _, line := range strings.Split(analysis, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(trimmed, prefix) {
				if f := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)); f != "" {
					findings = append(findings, f)
				}
				break
			}
		}
	}
	return findings
}
