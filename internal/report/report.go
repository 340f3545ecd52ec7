// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package report synthesizes the final exploration report.
package report

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/llm"
	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/model"
	"datatwin/cli/internal/prompt"
	"datatwin/cli/internal/scale"
	"datatwin/cli/internal/schema"
)

// DefaultTail is how many of the most recent records the report prompt includes.
const DefaultTail = 15

// Generator produces the final report with one model call.
type Generator struct {
	builder *prompt.Builder
	client  llm.Client
	tail    int
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Generator. tail bounds the raw findings passed to the model.
func New(builder *prompt.Builder, client llm.Client, tail int, logger *zap.Logger) *Generator {
	if tail <= 0 {
		tail = DefaultTail
	}
	return &Generator{builder: builder, client: client, tail: tail, logger: logging.OrNop(logger), now: time.Now}
}

// Input is everything a report is composed from.
type Input struct {
	View         *schema.View
	Scale        *scale.Assessment
	TotalQueries int
	Summaries    []model.SummaryBatch
	// Findings are the records not covered by a summary, oldest first.
	Findings []model.QueryRecord
}

// Generate composes the report prompt from all summaries plus the most recent
// findings and asks the model for the prose sections.
func (g *Generator) Generate(ctx context.Context, in Input) (*model.Report, error) {
	tail := in.Findings
	if len(tail) > g.tail {
		tail = tail[len(tail)-g.tail:]
	}

	p, err := g.builder.Report(prompt.ReportInput{
		View:         in.View,
		Scale:        in.Scale,
		TotalQueries: in.TotalQueries,
		Summaries:    in.Summaries,
		Tail:         tail,
	})
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Report, "build report prompt", err)
	}

	text, err := g.client.Generate(ctx, p, llm.KindReport)
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Report, "generate report", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, dterrors.New(dterrors.Report, "model returned an empty report")
	}

	tables := 0
	if in.View != nil {
		tables = len(in.View.Tables)
	}
	g.logger.Info("report generated",
		zap.Int("tables", tables),
		zap.Int("total_queries", in.TotalQueries),
		zap.Int("summaries", len(in.Summaries)),
		zap.Int("tail", len(tail)))

	return &model.Report{
		Content:      text,
		GeneratedAt:  g.now().UTC(),
		TableCount:   tables,
		TotalQueries: in.TotalQueries,
		SummaryCount: len(in.Summaries),
	}, nil
}
