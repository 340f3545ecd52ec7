// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

// EventType enumerates engine progress events.
type EventType string

const (
	// EventPhaseChanged is sent on every state machine transition.
	EventPhaseChanged EventType = "phase_changed"
	// EventScaleAssessed carries the scale category, or a message when assessment failed.
	EventScaleAssessed EventType = "scale_assessed"
	// EventQueryStarted is sent before the explore prompt for a query is built.
	EventQueryStarted EventType = "query_started"
	// EventQueryFinished is sent once a query record has been appended.
	EventQueryFinished EventType = "query_finished"
	// EventSummaryCreated is sent after a summary batch is appended.
	EventSummaryCreated EventType = "summary_created"
	// EventSummaryFailed is sent when a summarization attempt failed.
	EventSummaryFailed EventType = "summary_failed"
	// EventReportReady is sent when the final report exists.
	EventReportReady EventType = "report_ready"
)

// Event is a generic container for engine UI events.
// Only a subset of fields is set depending on Type.
type Event struct {
	Type EventType `json:"type"`

	Phase   Phase  `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`

	// Query events
	Seq       int    `json:"seq,omitempty"` // 1-based
	Max       int    `json:"max,omitempty"`
	SQL       string `json:"sql,omitempty"`
	Rationale string `json:"rationale,omitempty"`
	Succeeded bool   `json:"succeeded,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Findings  int    `json:"findings,omitempty"`

	// Summary events
	FirstSeq int `json:"first_seq,omitempty"`
	LastSeq  int `json:"last_seq,omitempty"`

	// Scale events
	Category  string `json:"category,omitempty"`
	TotalRows int64  `json:"total_rows,omitempty"`
}

// Observer receives events synchronously from the engine's goroutine.
type Observer func(Event)
