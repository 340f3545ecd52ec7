// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package progress tracks engine events and renders them as a live,
// docker-compose-like list of query and summary lines.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"datatwin/cli/internal/engine"
)

// LineState is the display state of one progress line.
type LineState int

const (
	Running LineState = iota
	Done
	Failed
)

// Line is one entry of the progress list.
type Line struct {
	Key    string
	Label  string
	Detail string
	State  LineState
}

// Tracker accumulates engine events. It is safe for use by the engine's
// goroutine and a render goroutine at the same time.
type Tracker struct {
	// Lines in the order they were started
	Lines []Line
	// Phase is the last phase the engine entered
	Phase engine.Phase
	// Max is the query budget
	Max int
	// Succeeded and Failed count finished queries
	Succeeded int
	Failed    int
	// Summaries counts created summaries
	Summaries int
	// Scale is a one-line description of the scale assessment
	Scale string

	index       map[string]int
	summaryKey  string
	summaryRuns int
	// mu protects concurrent access to all fields
	mu sync.Mutex
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{index: make(map[string]int)}
}

// Reset clears all progress.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Lines = nil
	t.Phase = ""
	t.Max = 0
	t.Succeeded, t.Failed, t.Summaries = 0, 0, 0
	t.Scale = ""
	t.index = make(map[string]int)
	t.summaryKey, t.summaryRuns = "", 0
}

// Apply folds one engine event into the tracker.
func (t *Tracker) Apply(ev engine.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case engine.EventPhaseChanged:
		t.Phase = ev.Phase
		if ev.Phase == engine.PhaseSummarizing {
			t.summaryRuns++
			t.summaryKey = fmt.Sprintf("s%d", t.summaryRuns)
			t.start(t.summaryKey, "summarizing findings", "")
		}
		if ev.Phase == engine.PhaseReporting {
			t.start("report", "writing report", "")
		}
	case engine.EventScaleAssessed:
		if ev.Category == "" {
			t.Scale = "scale unknown: " + ev.Message
		} else {
			t.Scale = fmt.Sprintf("%s dataset, %d rows", ev.Category, ev.TotalRows)
		}
	case engine.EventQueryStarted:
		t.Max = ev.Max
		t.start(queryKey(ev.Seq), fmt.Sprintf("query %d/%d", ev.Seq, ev.Max), "")
	case engine.EventQueryFinished:
		t.Max = ev.Max
		state := Done
		if ev.Succeeded {
			t.Succeeded++
		} else {
			state = Failed
			t.Failed++
		}
		t.finish(queryKey(ev.Seq), state, ev.Summary)
	case engine.EventSummaryCreated:
		t.Summaries++
		t.relabel(t.summaryKey, fmt.Sprintf("summarized queries %d-%d", ev.FirstSeq, ev.LastSeq))
		t.finish(t.summaryKey, Done, "")
	case engine.EventSummaryFailed:
		t.finish(t.summaryKey, Failed, ev.Message)
	case engine.EventReportReady:
		t.relabel("report", "report ready")
		t.finish("report", Done, "")
	}
}

// start adds a running line, or restarts an existing one with the same key.
func (t *Tracker) start(key, label, detail string) {
	if i, ok := t.index[key]; ok {
		t.Lines[i] = Line{Key: key, Label: label, Detail: detail, State: Running}
		return
	}
	t.index[key] = len(t.Lines)
	t.Lines = append(t.Lines, Line{Key: key, Label: label, Detail: detail, State: Running})
}

func (t *Tracker) finish(key string, state LineState, detail string) {
	i, ok := t.index[key]
	if !ok {
		return
	}
	t.Lines[i].State = state
	if detail != "" {
		t.Lines[i].Detail = detail
	}
}

func (t *Tracker) relabel(key, label string) {
	if i, ok := t.index[key]; ok {
		t.Lines[i].Label = label
	}
}

// Snapshot returns a copy of the current lines.
func (t *Tracker) Snapshot() []Line {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Line(nil), t.Lines...)
}

// Counts returns succeeded and failed query counts.
func (t *Tracker) Counts() (succeeded, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Succeeded, t.Failed
}

// SummaryCount returns how many summaries were created.
func (t *Tracker) SummaryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Summaries
}

// ScaleLine returns the scale description, empty before assessment.
func (t *Tracker) ScaleLine() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Scale
}

func queryKey(seq int) string { return fmt.Sprintf("q%d", seq) }

// RenderState holds the UI rendering state for the progress display.
type RenderState struct {
	// FrameIdx is the current animation frame index for spinners
	FrameIdx int
	// MaxLineLen tracks the maximum line length to prevent flickering
	MaxLineLen int
	// LastRendered caches the last rendered content to avoid unnecessary updates
	LastRendered string
	// mu protects concurrent access to rendering state
	mu sync.Mutex
}

// NewRenderState creates a new RenderState.
func NewRenderState() *RenderState { return &RenderState{} }

// IncrementFrame advances the animation frame index.
func (rs *RenderState) IncrementFrame() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.FrameIdx++
}

// GetFrameIdx returns the current frame index.
func (rs *RenderState) GetFrameIdx() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.FrameIdx
}

// Changed records content and reports whether it differs from the last render.
func (rs *RenderState) Changed(content string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if content == rs.LastRendered {
		return false
	}
	rs.LastRendered = content
	return true
}

// Reset clears the rendering state for a new session.
func (rs *RenderState) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.MaxLineLen = 0
	rs.LastRendered = ""
}

// PadLines pads every line to the widest line seen so far so shrinking
// content does not leave stale characters behind.
func (rs *RenderState) PadLines(lines []string) []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, l := range lines {
		if n := utf8.RuneCountInString(l); n > rs.MaxLineLen {
			rs.MaxLineLen = n
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if pad := rs.MaxLineLen - utf8.RuneCountInString(l); pad > 0 {
			l += strings.Repeat(" ", pad)
		}
		out[i] = l
	}
	return out
}
