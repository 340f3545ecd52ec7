// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package summarize compresses a contiguous batch of query records into one
// SummaryBatch with a single language model call.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/llm"
	"datatwin/cli/internal/logging"
	"datatwin/cli/internal/model"
	"datatwin/cli/internal/prompt"
)

// Summarizer builds summary batches.
type Summarizer struct {
	builder *prompt.Builder
	client  llm.Client
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Summarizer.
func New(builder *prompt.Builder, client llm.Client, logger *zap.Logger) *Summarizer {
	return &Summarizer{builder: builder, client: client, logger: logging.OrNop(logger), now: time.Now}
}

// Summarize compresses batch. The batch must be non-empty with gapless sequence
// numbers. Range and count come from the batch; the content is whatever the
// model wrote.
func (s *Summarizer) Summarize(ctx context.Context, batch []model.QueryRecord) (model.SummaryBatch, error) {
	if err := checkContiguous(batch); err != nil {
		return model.SummaryBatch{}, err
	}
	first, last := batch[0].Seq, batch[len(batch)-1].Seq

	p, err := s.builder.Summarize(batch)
	if err != nil {
		return model.SummaryBatch{}, dterrors.Wrap(dterrors.Summarization, "build summary prompt", err)
	}

	text, err := s.client.Generate(ctx, p, llm.KindSummarize)
	if err != nil {
		return model.SummaryBatch{}, dterrors.Wrap(dterrors.Summarization, fmt.Sprintf("summarize queries %d-%d", first, last), err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.SummaryBatch{}, dterrors.New(dterrors.Summarization, fmt.Sprintf("empty summary for queries %d-%d", first, last))
	}

	s.logger.Debug("summary generated",
		zap.Int("first_seq", first),
		zap.Int("last_seq", last),
		zap.Int("chars", len(text)))

	return model.SummaryBatch{
		FirstSeq:    first,
		LastSeq:     last,
		GeneratedAt: s.now().UTC(),
		Content:     text,
		QueryCount:  len(batch),
	}, nil
}

func checkContiguous(batch []model.QueryRecord) error {
	if len(batch) == 0 {
		return dterrors.New(dterrors.Summarization, "cannot summarize an empty batch")
	}
	for i := 1; i < len(batch); i++ {
		if batch[i].Seq != batch[i-1].Seq+1 {
			return dterrors.New(dterrors.Summarization,
				fmt.Sprintf("batch is not contiguous: query %d follows query %d", batch[i].Seq, batch[i-1].Seq))
		}
	}
	return nil
}
