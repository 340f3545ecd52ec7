// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dterrors "datatwin/cli/internal/errors"
)

func rows(n int) [][]any {
	out := make([][]any, n)
	for i := range out {
		out[i] = []any{i}
	}
	return out
}

func TestNewResultSetSampling(t *testing.T) {
	tests := []struct {
		name          string
		n             int
		wantKept      int
		wantTruncated bool
	}{
		{name: "empty", n: 0, wantKept: 0},
		{name: "at limit", n: FullResultLimit, wantKept: FullResultLimit},
		{name: "over limit", n: FullResultLimit + 1, wantKept: TruncatedSampleSize, wantTruncated: true},
		{name: "large", n: 5000, wantKept: TruncatedSampleSize, wantTruncated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewResultSet([]string{"n"}, rows(tt.n))
			assert.Len(t, rs.Rows, tt.wantKept)
			assert.Equal(t, tt.n, rs.TotalRows)
			assert.Equal(t, tt.wantTruncated, rs.Truncated)
		})
	}
}

func TestOutcomes(t *testing.T) {
	ok := Succeeded(NewResultSet([]string{"a", "b"}, rows(3)))
	assert.Equal(t, StatusSucceeded, ok.Status)
	assert.Equal(t, 3, ok.RowCount)
	assert.Equal(t, 2, ok.ColumnCount)
	assert.Equal(t, "3 rows x 2 columns (a, b)", ok.Summary)

	timeout := Failed(fmt.Errorf("seq 4: %w", dterrors.New(dterrors.ExecutionTimeout, "exceeded 60s")))
	assert.Equal(t, StatusFailed, timeout.Status)
	assert.Equal(t, string(dterrors.ExecutionTimeout), timeout.ErrorKind)

	plain := Failed(fmt.Errorf("syntax error at or near \"SELEC\""))
	assert.Equal(t, string(dterrors.Execution), plain.ErrorKind)
}

func TestBudget(t *testing.T) {
	b := Budget{Max: 3}
	assert.Equal(t, 3, b.Remaining())
	assert.False(t, b.Exhausted())

	b.Used = 3
	assert.Equal(t, 0, b.Remaining())
	assert.True(t, b.Exhausted())
}

func TestExtractFindings(t *testing.T) {
	analysis := "Overview\n- 42% of orders have no shipping date\n  * customers.email is unique\nnot a bullet\n-\n• prices are stored in cents"

	assert.Equal(t, []string{
		"42% of orders have no shipping date",
		"customers.email is unique",
		"prices are stored in cents",
	}, ExtractFindings(analysis))
	assert.Empty(t, ExtractFindings(""))
}

func TestSummaryBatchRange(t *testing.T) {
	assert.Equal(t, "4-6", SummaryBatch{FirstSeq: 4, LastSeq: 6}.Range())
}
