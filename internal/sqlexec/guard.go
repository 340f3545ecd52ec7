// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"regexp"
	"strings"

	dterrors "datatwin/cli/internal/errors"
)

var (
	fenceOpenRegex  = regexp.MustCompile("^```[a-zA-Z]*\\s*")
	fenceCloseRegex = regexp.MustCompile("\\s*```$")
	leadingComment  = regexp.MustCompile(`^\s*(--[^\n]*\n|/\*(?s:.*?)\*/)`)
	firstWordRegex  = regexp.MustCompile(`^\s*([A-Za-z]+)`)
)

// readOnlyKeywords are the statement kinds model-generated SQL may start with.
var readOnlyKeywords = map[string]struct{}{
	"SELECT":   {},
	"WITH":     {},
	"SHOW":     {},
	"DESCRIBE": {},
	"DESC":     {},
	"EXPLAIN":  {},
	"VALUES":   {},
}

// Sanitize cleans model-generated SQL and rejects anything that is not a single
// read-only statement. It strips Markdown fences and trailing semicolons.
func Sanitize(sql string) (string, error) {
	s := strings.TrimSpace(sql)
	s = fenceOpenRegex.ReplaceAllString(s, "")
	s = fenceCloseRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	if s == "" {
		return "", dterrors.New(dterrors.Execution, "empty SQL statement")
	}

	if hasStatementSeparator(s) {
		return "", dterrors.New(dterrors.Execution, "only a single SQL statement is allowed")
	}

	body := s
	for {
		loc := leadingComment.FindStringIndex(body)
		if loc == nil {
			break
		}
		body = body[loc[1]:]
	}
	m := firstWordRegex.FindStringSubmatch(body)
	if m == nil {
		return "", dterrors.New(dterrors.Execution, "SQL statement has no keyword")
	}
	keyword := strings.ToUpper(m[1])
	if _, ok := readOnlyKeywords[keyword]; !ok {
		return "", dterrors.New(dterrors.Execution, "only read-only statements are allowed, got "+keyword)
	}
	return s, nil
}

// hasStatementSeparator reports whether s contains a semicolon outside string
// literals, quoted identifiers and comments.
func hasStatementSeparator(s string) bool {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				// Doubled quote escapes itself.
				if i+1 < len(s) && s[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return false
			}
			i += nl
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return false
			}
			i += end + 3
		case c == ';':
			return true
		}
	}
	return false
}
