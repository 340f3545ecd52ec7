// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package prompt

import (
	"strings"

	dterrors "datatwin/cli/internal/errors"
)

// NoReasoning is recorded when the model gives no REASONING section.
const NoReasoning = "No reasoning provided"

const (
	sqlMarker       = "SQL:"
	reasoningMarker = "REASONING:"
)

// ParseExploreResponse extracts the proposed statement and its rationale from an
// explore answer of the form "SQL: ... REASONING: ...".
func ParseExploreResponse(text string) (sql, rationale string, err error) {
	idx := strings.Index(text, sqlMarker)
	if idx < 0 {
		return "", "", dterrors.New(dterrors.PromptParse, "response has no SQL: section")
	}
	rest := text[idx+len(sqlMarker):]

	rationale = NoReasoning
	if r := strings.Index(rest, reasoningMarker); r >= 0 {
		if reason := strings.TrimSpace(rest[r+len(reasoningMarker):]); reason != "" {
			rationale = reason
		}
		rest = rest[:r]
	}

	sql = stripFences(strings.TrimSpace(rest))
	if sql == "" {
		return "", "", dterrors.New(dterrors.PromptParse, "response has an empty SQL: section")
	}
	return sql, rationale, nil
}

// stripFences removes a surrounding Markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		tag := strings.TrimSpace(s[:nl])
		if tag == strings.ToLower(tag) && !strings.ContainsAny(tag, " \t") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
