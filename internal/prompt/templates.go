// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/llm"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Template is one versioned, parameterized prompt.
type Template struct {
	Version  int      `yaml:"version"`
	Required []string `yaml:"required"`
	Text     string   `yaml:"text"`

	compiled *template.Template
}

// TemplateSet holds one template per prompt kind.
type TemplateSet struct {
	Version   int                  `yaml:"version"`
	Templates map[string]*Template `yaml:"templates"`
}

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() (*TemplateSet, error) {
	return parseTemplateSet(defaultTemplatesYAML, "built-in templates")
}

// LoadTemplateSet returns the built-in templates overlaid with the templates in
// path. An empty path returns the defaults.
func LoadTemplateSet(path string) (*TemplateSet, error) {
	set, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dterrors.Wrap(dterrors.Template, "read prompt templates "+path, err)
	}
	override, err := parseTemplateSet(data, path)
	if err != nil {
		return nil, err
	}
	for kind, t := range override.Templates {
		set.Templates[kind] = t
	}
	if override.Version > set.Version {
		set.Version = override.Version
	}
	return set, nil
}

func parseTemplateSet(data []byte, source string) (*TemplateSet, error) {
	var set TemplateSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, dterrors.Wrap(dterrors.Template, "parse "+source, err)
	}
	if set.Templates == nil {
		set.Templates = map[string]*Template{}
	}
	for kind, t := range set.Templates {
		if t == nil || strings.TrimSpace(t.Text) == "" {
			return nil, dterrors.New(dterrors.Template, fmt.Sprintf("%s: template %q has no text", source, kind))
		}
		compiled, err := template.New(kind).Parse(t.Text)
		if err != nil {
			return nil, dterrors.Wrap(dterrors.Template, fmt.Sprintf("%s: compile template %q", source, kind), err)
		}
		t.compiled = compiled
	}
	return &set, nil
}

// Kinds lists the prompt kinds present in the set.
func (s *TemplateSet) Kinds() []string {
	kinds := make([]string, 0, len(s.Templates))
	for k := range s.Templates {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Render fills the template for kind. Every required field must be present and non-empty.
func (s *TemplateSet) Render(kind llm.Kind, data map[string]any) (string, error) {
	t, ok := s.Templates[string(kind)]
	if !ok {
		return "", dterrors.New(dterrors.Template, "no template for prompt kind "+string(kind))
	}
	for _, field := range t.Required {
		v, ok := data[field]
		if !ok || v == nil || fmt.Sprint(v) == "" {
			return "", dterrors.New(dterrors.Template, fmt.Sprintf("template %q requires field %q", kind, field))
		}
	}
	var buf bytes.Buffer
	if err := t.compiled.Execute(&buf, data); err != nil {
		return "", dterrors.Wrap(dterrors.Template, "render template "+string(kind), err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}
