// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for datatwin.
// This module manages all interactions with the OS keychain/credential store,
// providing a unified interface for storing and retrieving the database DSN and
// language model API keys.
//
// The package supports macOS Keychain, Windows Credential Manager and the Linux
// Secret Service, with pass as a fallback on macOS and Linux.
package keychain

import (
	"errors"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// Global keychain manager instance
var (
	globalManager *Manager
	globalError   error
	mu            sync.Mutex
)

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "datatwin"

// Keys used for storing secrets in the OS keychain.
const (
	KeyDBDSN = "db_dsn"
	// keyLLMPrefix is suffixed with the provider name, e.g. llm_api_key_openai.
	keyLLMPrefix = "llm_api_key_"
)

// ErrNotFound is returned when a secret has never been stored.
var ErrNotFound = errors.New("secret not found in keychain")

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager() (*Manager, error) {
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return &Manager{ring: ring}, nil
}

// NewManagerWithRing wraps an already opened keyring, e.g. keyring.NewArrayKeyring in tests.
func NewManagerWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// GetManager returns the global keychain manager instance.
// If not initialized, it will be created on first call.
// If initialization fails, it will retry on subsequent calls.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}

	globalManager, globalError = NewManager()
	if globalError != nil {
		return nil, globalError
	}

	return globalManager, nil
}

// openRing opens the OS keyring using native platform backends only.
func openRing() (keyring.Keyring, error) {
	var allowedBackends []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		// pass requires the 'pass' utility: brew install pass
		allowedBackends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowedBackends = []keyring.BackendType{keyring.WinCredBackend}
	case "linux":
		allowedBackends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, errors.New("secure storage not supported on this OS; use DATATWIN_DSN and DATATWIN_LLM_API_KEY instead")
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowedBackends,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. Install 'pass': brew install pass gnupg && gpg --generate-key && pass init <gpg-key-id>")
		}
		return nil, err
	}
	return ring, nil
}

func (m *Manager) set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (m *Manager) get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, err := m.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if len(it.Data) == 0 {
		return "", ErrNotFound
	}
	return string(it.Data), nil
}

func (m *Manager) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.ring.Remove(key)
}

// SaveDBDSN stores the database DSN in the keychain.
func (m *Manager) SaveDBDSN(dsn string) error { return m.set(KeyDBDSN, dsn) }

// LoadDBDSN retrieves the database DSN from the keychain.
func (m *Manager) LoadDBDSN() (string, error) { return m.get(KeyDBDSN) }

// ClearDB removes DB-related secrets from the keychain.
func (m *Manager) ClearDB() error {
	m.remove(KeyDBDSN)
	return nil
}

// LLMKey returns the keychain key under which a provider's API key is stored.
func LLMKey(provider string) string {
	return keyLLMPrefix + strings.ToLower(strings.TrimSpace(provider))
}

// SaveLLMAPIKey stores the API key for a language model provider.
func (m *Manager) SaveLLMAPIKey(provider, apiKey string) error {
	return m.set(LLMKey(provider), apiKey)
}

// LoadLLMAPIKey retrieves the API key for a language model provider.
func (m *Manager) LoadLLMAPIKey(provider string) (string, error) {
	return m.get(LLMKey(provider))
}

// ClearLLM removes stored API keys for every provider.
func (m *Manager) ClearLLM() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, err := m.ring.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if strings.HasPrefix(k, keyLLMPrefix) {
			_ = m.ring.Remove(k)
		}
	}
	return nil
}

// ClearAll removes all secrets from the keychain.
func (m *Manager) ClearAll() error {
	_ = m.ClearDB()
	return m.ClearLLM()
}
