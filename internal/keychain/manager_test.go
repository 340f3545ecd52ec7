// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManagerWithRing(keyring.NewArrayKeyring(nil))
}

func TestDBDSNRoundTrip(t *testing.T) {
	m := newTestManager()

	_, err := m.LoadDBDSN()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SaveDBDSN("postgresql://u:p@localhost:5432/db"))
	got, err := m.LoadDBDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgresql://u:p@localhost:5432/db", got)

	require.NoError(t, m.ClearDB())
	_, err = m.LoadDBDSN()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLLMKeysArePerProvider(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.SaveLLMAPIKey("OpenAI", "sk-one"))
	require.NoError(t, m.SaveLLMAPIKey("gemini", "AIza-two"))

	got, err := m.LoadLLMAPIKey("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-one", got)

	got, err = m.LoadLLMAPIKey("gemini")
	require.NoError(t, err)
	assert.Equal(t, "AIza-two", got)

	_, err = m.LoadLLMAPIKey("anthropic")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearAll(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.SaveDBDSN("sqlite://app.db"))
	require.NoError(t, m.SaveLLMAPIKey("anthropic", "key"))

	require.NoError(t, m.ClearAll())

	_, err := m.LoadDBDSN()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.LoadLLMAPIKey("anthropic")
	assert.ErrorIs(t, err, ErrNotFound)
}
