// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure the exploration engine or its collaborators produce carries one of
// the kinds below, so callers can decide whether a failure is fatal, degrades a
// single record, or only needs logging.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Configuration indicates invalid engine configuration detected before any query runs.
	Configuration Kind = "configuration_error"
	// Assessment indicates every row-count probe failed.
	Assessment Kind = "assessment_error"
	// Probe indicates a single row-count probe failed.
	Probe Kind = "probe_error"
	// Execution indicates the database rejected or failed a query.
	Execution Kind = "execution_error"
	// ExecutionTimeout indicates a query exceeded its per-call timeout.
	ExecutionTimeout Kind = "execution_timeout"
	// LLM indicates the language model call failed.
	LLM Kind = "llm_error"
	// PromptParse indicates the model response could not be parsed.
	PromptParse Kind = "prompt_parse_error"
	// Summarization indicates a summary batch could not be produced.
	Summarization Kind = "summarization_error"
	// Report indicates the final report could not be produced.
	Report Kind = "report_error"
	// Template indicates a prompt template is missing or could not be rendered.
	Template Kind = "template_error"
	// Storage indicates the run history store failed.
	Storage Kind = "storage_error"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the outermost *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether any *E in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *E
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
