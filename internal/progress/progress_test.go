// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package progress

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datatwin/cli/internal/engine"
)

func feed(t *Tracker, events ...engine.Event) {
	for _, ev := range events {
		t.Apply(ev)
	}
}

func TestTrackerQueryAndSummaryLines(t *testing.T) {
	tr := NewTracker()
	feed(tr,
		engine.Event{Type: engine.EventScaleAssessed, Category: "small", TotalRows: 1200},
		engine.Event{Type: engine.EventPhaseChanged, Phase: engine.PhaseExploring},
		engine.Event{Type: engine.EventQueryStarted, Seq: 1, Max: 3},
		engine.Event{Type: engine.EventQueryFinished, Seq: 1, Max: 3, Succeeded: true, Summary: "4 rows x 2 columns"},
		engine.Event{Type: engine.EventQueryStarted, Seq: 2, Max: 3},
		engine.Event{Type: engine.EventQueryFinished, Seq: 2, Max: 3, Summary: "failed: timeout"},
		engine.Event{Type: engine.EventQueryStarted, Seq: 3, Max: 3},
		engine.Event{Type: engine.EventQueryFinished, Seq: 3, Max: 3, Succeeded: true},
		engine.Event{Type: engine.EventPhaseChanged, Phase: engine.PhaseSummarizing},
		engine.Event{Type: engine.EventSummaryCreated, FirstSeq: 1, LastSeq: 3},
		engine.Event{Type: engine.EventPhaseChanged, Phase: engine.PhaseReporting},
		engine.Event{Type: engine.EventReportReady},
	)

	lines := tr.Snapshot()
	require.Len(t, lines, 5)
	assert.Equal(t, Line{Key: "q1", Label: "query 1/3", Detail: "4 rows x 2 columns", State: Done}, lines[0])
	assert.Equal(t, Failed, lines[1].State)
	assert.Equal(t, "summarized queries 1-3", lines[3].Label)
	assert.Equal(t, Done, lines[3].State)
	assert.Equal(t, Line{Key: "report", Label: "report ready", State: Done}, lines[4])

	ok, failed := tr.Counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, tr.SummaryCount())
	assert.Equal(t, "small dataset, 1200 rows", tr.ScaleLine())
}

func TestTrackerKeepsOneLinePerSummaryAttempt(t *testing.T) {
	tr := NewTracker()
	feed(tr,
		engine.Event{Type: engine.EventPhaseChanged, Phase: engine.PhaseSummarizing},
		engine.Event{Type: engine.EventSummaryFailed, Message: "llm_error: rate limited"},
		engine.Event{Type: engine.EventPhaseChanged, Phase: engine.PhaseSummarizing},
		engine.Event{Type: engine.EventSummaryCreated, FirstSeq: 1, LastSeq: 6},
	)

	lines := tr.Snapshot()
	require.Len(t, lines, 2)
	assert.Equal(t, Failed, lines[0].State)
	assert.Equal(t, "llm_error: rate limited", lines[0].Detail)
	assert.Equal(t, "summarized queries 1-6", lines[1].Label)

	tr.Reset()
	assert.Empty(t, tr.Snapshot())
}

func TestTrackerScaleFailure(t *testing.T) {
	tr := NewTracker()
	tr.Apply(engine.Event{Type: engine.EventScaleAssessed, Message: "assessment_error: all probes failed"})
	assert.Equal(t, "scale unknown: assessment_error: all probes failed", tr.ScaleLine())
}

func TestTrackerConcurrentUse(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			tr.Apply(engine.Event{Type: engine.EventQueryStarted, Seq: i, Max: 200})
			tr.Apply(engine.Event{Type: engine.EventQueryFinished, Seq: i, Max: 200, Succeeded: true})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = tr.Snapshot()
		}
	}()
	wg.Wait()

	ok, _ := tr.Counts()
	assert.Equal(t, 200, ok)
}

func TestFormatLine(t *testing.T) {
	running := FormatLine(Line{Label: "query 2/7", State: Running}, "⠋", 80)
	assert.Equal(t, "⠋ query 2/7", running)

	long := FormatLine(Line{Label: "query 1/7", Detail: strings.Repeat("x", 200), State: Done}, "⠋", 40)
	assert.Contains(t, long, "query 1/7")
	assert.Contains(t, long, "…")
	assert.NotContains(t, long, strings.Repeat("x", 40))
}

func TestRenderStatePadding(t *testing.T) {
	rs := NewRenderState()
	assert.Equal(t, []string{"abcd", "ab  "}, rs.PadLines([]string{"abcd", "ab"}))
	assert.Equal(t, []string{"a   "}, rs.PadLines([]string{"a"}))

	assert.True(t, rs.Changed("x"))
	assert.False(t, rs.Changed("x"))
	rs.Reset()
	assert.True(t, rs.Changed("x"))
}
