// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package scale estimates how much data the selected tables hold and turns the
// total into a query strategy hint for the language model.
package scale

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/logging"
)

// Category is a coarse size class.
type Category string

const (
	Small  Category = "small"
	Medium Category = "medium"
	Large  Category = "large"
)

const (
	// SmallMaxRows is the inclusive upper bound of the small category.
	SmallMaxRows int64 = 100_000
	// MediumMaxRows is the inclusive upper bound of the medium category.
	MediumMaxRows int64 = 10_000_000
)

// Rank orders categories: small < medium < large.
func (c Category) Rank() int {
	switch c {
	case Small:
		return 0
	case Medium:
		return 1
	case Large:
		return 2
	}
	return -1
}

// Categorize maps a total row count to its category. Boundaries belong to the lower band.
func Categorize(total int64) Category {
	switch {
	case total <= SmallMaxRows:
		return Small
	case total <= MediumMaxRows:
		return Medium
	default:
		return Large
	}
}

// StrategyHint returns the guidance given to the model for a category.
func StrategyHint(c Category) string {
	switch c {
	case Small:
		return "Small dataset: full-table scans and joins across all rows are fine."
	case Medium:
		return "Medium dataset: prefer aggregates and filtered queries; use LIMIT when listing rows."
	default:
		return "Large dataset: always aggregate or sample (LIMIT, TABLESAMPLE); avoid unfiltered joins and full scans."
	}
}

// Prober counts rows in a single table.
type Prober interface {
	Count(ctx context.Context, table string, timeout time.Duration) (int64, error)
}

// Assessment is the outcome of probing every selected table.
type Assessment struct {
	TableCounts   map[string]int64  `json:"table_counts"`
	Warnings      map[string]string `json:"warnings,omitempty"`
	TotalRows     int64             `json:"total_rows"`
	Category      Category          `json:"category"`
	StrategyHint  string            `json:"strategy_hint"`
	LargestTable  string            `json:"largest_table,omitempty"`
	SmallestTable string            `json:"smallest_table,omitempty"`
	AssessedAt    time.Time         `json:"assessed_at"`
}

// Assessor runs one count probe per table, sequentially.
type Assessor struct {
	prober  Prober
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewAssessor creates an Assessor. timeout bounds each probe.
func NewAssessor(prober Prober, timeout time.Duration, logger *zap.Logger) *Assessor {
	return &Assessor{prober: prober, timeout: timeout, logger: logging.OrNop(logger), now: time.Now}
}

// Assess probes every table. A failed probe records a zero count and a warning;
// only when all probes fail does it return an assessment error.
func (a *Assessor) Assess(ctx context.Context, tables []string) (*Assessment, error) {
	if len(tables) == 0 {
		return nil, dterrors.New(dterrors.Configuration, "scale assessment needs at least one table")
	}

	res := &Assessment{
		TableCounts: make(map[string]int64, len(tables)),
		Warnings:    map[string]string{},
	}
	var succeeded []string
	for _, table := range tables {
		n, err := a.prober.Count(ctx, table, a.timeout)
		if err == nil && n < 0 {
			err = fmt.Errorf("negative row count %d", n)
		}
		if err != nil {
			res.TableCounts[table] = 0
			res.Warnings[table] = err.Error()
			a.logger.Warn("row count probe failed", zap.String("table", table), zap.Error(err))
			continue
		}
		res.TableCounts[table] = n
		res.TotalRows += n
		succeeded = append(succeeded, table)
	}

	if len(succeeded) == 0 {
		return nil, dterrors.New(dterrors.Assessment, fmt.Sprintf("all %d row count probes failed", len(tables)))
	}

	res.Category = Categorize(res.TotalRows)
	res.StrategyHint = StrategyHint(res.Category)
	res.LargestTable, res.SmallestTable = extremes(succeeded, res.TableCounts)
	res.AssessedAt = a.now().UTC()

	a.logger.Info("scale assessed",
		zap.Int64("total_rows", res.TotalRows),
		zap.String("category", string(res.Category)),
		zap.Int("failed_probes", len(res.Warnings)))
	return res, nil
}

// extremes picks the largest and smallest tables; ties go to the lexicographically first name.
func extremes(tables []string, counts map[string]int64) (largest, smallest string) {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)
	for _, t := range sorted {
		if largest == "" || counts[t] > counts[largest] {
			largest = t
		}
		if smallest == "" || counts[t] < counts[smallest] {
			smallest = t
		}
	}
	return largest, smallest
}
