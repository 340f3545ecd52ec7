// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package workflow gates the user-facing steps of an exploration: discover the
// schema, review and select tables, explore, report. The engine only ever sees
// the finalized view produced by the select step.
package workflow

import (
	"fmt"

	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/schema"
)

// Phase is a step of the user workflow.
type Phase string

const (
	PhaseDiscover Phase = "discover"
	PhaseSelect   Phase = "select"
	PhaseExplore  Phase = "explore"
	PhaseReport   Phase = "report"
)

// Session walks the workflow phases in order.
type Session struct {
	phase  Phase
	schema *schema.Schema
	view   *schema.View
}

// NewSession starts in PhaseDiscover.
func NewSession() *Session { return &Session{phase: PhaseDiscover} }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Schema returns the discovered schema, nil before discovery.
func (s *Session) Schema() *schema.Schema { return s.schema }

// View returns the selected view, nil before selection.
func (s *Session) View() *schema.View { return s.view }

// Discovered records the introspected schema and moves to PhaseSelect.
func (s *Session) Discovered(sc *schema.Schema) error {
	if err := s.expect("discover", PhaseDiscover); err != nil {
		return err
	}
	if sc == nil || sc.Len() == 0 {
		return dterrors.New(dterrors.Configuration, "database has no tables to explore")
	}
	s.schema = sc
	s.phase = PhaseSelect
	return nil
}

// Select filters the schema to the chosen tables with their notes. It may be
// called again to revise the selection until exploration starts.
func (s *Session) Select(tables []string, notes map[string]string) (*schema.View, error) {
	if err := s.expect("select tables", PhaseSelect); err != nil {
		return nil, err
	}
	v, err := s.schema.Filter(tables, notes)
	if err != nil {
		return nil, err
	}
	s.view = v
	return v, nil
}

// BeginExplore freezes the selection and returns the view for the engine.
func (s *Session) BeginExplore() (*schema.View, error) {
	if err := s.expect("start exploring", PhaseSelect); err != nil {
		return nil, err
	}
	if s.view == nil {
		return nil, dterrors.New(dterrors.Configuration, "no tables selected")
	}
	s.phase = PhaseExplore
	return s.view, nil
}

// Explored moves to PhaseReport once the engine finished.
func (s *Session) Explored() error {
	if err := s.expect("report", PhaseExplore); err != nil {
		return err
	}
	s.phase = PhaseReport
	return nil
}

func (s *Session) expect(action string, want Phase) error {
	if s.phase != want {
		return dterrors.New(dterrors.Configuration, fmt.Sprintf("cannot %s during %s phase", action, s.phase))
	}
	return nil
}
