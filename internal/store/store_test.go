// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datatwin/cli/internal/artifact"
	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/model"
)

func aggregate(id string, started time.Time, phase string) *artifact.Aggregate {
	return &artifact.Aggregate{
		RunID: id,
		SessionMetadata: artifact.SessionMetadata{
			StartedAt:   started,
			FinishedAt:  started.Add(time.Minute),
			Tables:      []string{"orders", "customers"},
			MaxQueries:  7,
			QueriesUsed: 7,
		},
		QueryHistory:         []model.QueryRecord{{Seq: 1, SQL: "SELECT 1", Findings: []string{}}},
		Summaries:            []model.SummaryBatch{{FirstSeq: 1, LastSeq: 3, Content: "s"}},
		SummaryTriggerPoints: []int{3},
		Errors:               []model.ErrorEntry{},
		Phase:                phase,
		TerminationReason:    "budget_exhausted",
	}
}

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(filepath.Join(t.TempDir(), FileName), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveListGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, aggregate("old", base, "done")))
	require.NoError(t, s.Save(ctx, aggregate("new", base.Add(time.Hour), "failed")))

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "failed", runs[0].Phase)
	assert.Equal(t, "orders,customers", runs[0].Tables)
	assert.Equal(t, 1, runs[0].Summaries)
	assert.True(t, runs[1].StartedAt.Equal(base))

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	got, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "old", got.RunID)
	assert.Equal(t, []int{3}, got.SummaryTriggerPoints)
	assert.Equal(t, "SELECT 1", got.QueryHistory[0].SQL)
}

func TestSaveReplaces(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Save(ctx, aggregate("r1", now, "reporting")))
	require.NoError(t, s.Save(ctx, aggregate("r1", now, "done")))

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "done", runs[0].Phase)
}

func TestGetUnknown(t *testing.T) {
	s := openTest(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, dterrors.Is(err, dterrors.Storage))
}

func TestSaveWithoutID(t *testing.T) {
	s := openTest(t)
	err := s.Save(context.Background(), &artifact.Aggregate{})
	assert.True(t, dterrors.Is(err, dterrors.Storage))
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()

	s, err := OpenPath(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, aggregate("kept", time.Now().UTC(), "done")))
	require.NoError(t, s.Close())

	s, err = OpenPath(path, nil)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kept", runs[0].ID)
}
