// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dterrors "datatwin/cli/internal/errors"
	"datatwin/cli/internal/schema"
)

func shop() *schema.Schema {
	return schema.New([]schema.Table{
		{Name: "orders", Columns: []schema.Column{{Name: "id"}, {Name: "customer_id"}}},
		{Name: "customers", Columns: []schema.Column{{Name: "id"}}},
	}, nil)
}

func TestSessionHappyPath(t *testing.T) {
	s := NewSession()
	assert.Equal(t, PhaseDiscover, s.Phase())

	require.NoError(t, s.Discovered(shop()))
	assert.Equal(t, PhaseSelect, s.Phase())

	_, err := s.Select([]string{"orders"}, nil)
	require.NoError(t, err)
	v, err := s.Select([]string{"orders", "customers"}, map[string]string{"orders": "checkouts"})
	require.NoError(t, err)
	assert.Len(t, v.Relationships, 1)

	got, err := s.BeginExplore()
	require.NoError(t, err)
	assert.Same(t, v, got)
	assert.Equal(t, PhaseExplore, s.Phase())

	require.NoError(t, s.Explored())
	assert.Equal(t, PhaseReport, s.Phase())
}

func TestSessionOutOfOrder(t *testing.T) {
	tests := []struct {
		name string
		run  func(s *Session) error
	}{
		{name: "select before discover", run: func(s *Session) error {
			_, err := s.Select([]string{"orders"}, nil)
			return err
		}},
		{name: "explore before select", run: func(s *Session) error {
			require.NoError(t, s.Discovered(shop()))
			_, err := s.BeginExplore()
			return err
		}},
		{name: "report before explore", run: func(s *Session) error {
			return s.Explored()
		}},
		{name: "reselect while exploring", run: func(s *Session) error {
			require.NoError(t, s.Discovered(shop()))
			_, err := s.Select([]string{"orders"}, nil)
			require.NoError(t, err)
			_, err = s.BeginExplore()
			require.NoError(t, err)
			_, err = s.Select([]string{"customers"}, nil)
			return err
		}},
		{name: "empty schema", run: func(s *Session) error {
			return s.Discovered(schema.New(nil, nil))
		}},
		{name: "unknown table", run: func(s *Session) error {
			require.NoError(t, s.Discovered(shop()))
			_, err := s.Select([]string{"invoices"}, nil)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(NewSession())
			require.Error(t, err)
			assert.True(t, dterrors.Is(err, dterrors.Configuration))
		})
	}
}
