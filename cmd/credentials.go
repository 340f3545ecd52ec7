// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"os"
	"strings"

	"datatwin/cli/internal/keychain"
	"datatwin/cli/internal/llm"
)

// errNoDSN means neither the environment nor the keychain holds a DSN.
var errNoDSN = errors.New("no database connection configured; run 'datatwin connect' or set DATATWIN_DSN")

// secretStore is the part of the keychain manager the resolvers read.
type secretStore interface {
	LoadDBDSN() (string, error)
	LoadLLMAPIKey(provider string) (string, error)
}

// openSecrets returns the OS keychain, or nil when it is unavailable.
func openSecrets() secretStore {
	km, err := keychain.GetManager()
	if err != nil {
		logger.Debug("keychain unavailable")
		return nil
	}
	return km
}

// resolveDSN finds the database DSN: DATATWIN_DSN, then DATABASE_URL, then
// the keychain. source describes where it came from.
func resolveDSN(getenv func(string) string, store secretStore) (dsn, source string, err error) {
	for _, name := range []string{"DATATWIN_DSN", "DATABASE_URL"} {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v, name + " environment variable", nil
		}
	}
	if store == nil {
		return "", "", errNoDSN
	}
	v, err := store.LoadDBDSN()
	if err != nil || strings.TrimSpace(v) == "" {
		return "", "", errNoDSN
	}
	return strings.TrimSpace(v), "OS keychain", nil
}

// providerEnvVar names the provider's conventional API key variable.
func providerEnvVar(provider string) string {
	switch provider {
	case llm.ProviderOpenAI, llm.ProviderOpenAICompatible:
		return "OPENAI_API_KEY"
	case llm.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case llm.ProviderGemini:
		return "GEMINI_API_KEY"
	}
	return ""
}

// resolveAPIKey finds the API key of a provider: DATATWIN_LLM_API_KEY, then the
// provider's own variable, then the keychain. An empty result is not an error;
// llm.New reports the missing key.
func resolveAPIKey(provider string, getenv func(string) string, store secretStore) string {
	if v := strings.TrimSpace(getenv("DATATWIN_LLM_API_KEY")); v != "" {
		return v
	}
	if name := providerEnvVar(provider); name != "" {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v
		}
	}
	if store == nil {
		return ""
	}
	v, err := store.LoadLLMAPIKey(provider)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func currentDSN() (string, string, error) {
	return resolveDSN(os.Getenv, openSecrets())
}
