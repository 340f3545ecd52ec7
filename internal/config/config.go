// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; the database DSN and LLM API keys
// go to the OS keychain or environment.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"datatwin/cli/internal/xdg"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel string        `json:"log_level"`
	LLM      LLMConfig     `json:"llm"`
	Explore  ExploreConfig `json:"explore"`
	// PromptsFile optionally points to a YAML file overriding the built-in prompt templates.
	PromptsFile string `json:"prompts_file,omitempty"`
}

// LLMConfig selects the language model backend.
type LLMConfig struct {
	// Provider is one of "openai", "anthropic", "gemini" or "openai-compatible".
	Provider       string `json:"provider"`
	Model          string `json:"model,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	MaxTokens      int    `json:"max_tokens"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	RetryAttempts  int    `json:"retry_attempts"`
}

// ExploreConfig holds exploration defaults; CLI flags override them per run.
type ExploreConfig struct {
	MaxQueries          int `json:"max_queries"`
	BatchSize           int `json:"batch_size"`
	WindowSize          int `json:"window_size"`
	ReportTail          int `json:"report_tail"`
	QueryTimeoutSeconds int `json:"query_timeout_seconds"`
	ProbeTimeoutSeconds int `json:"probe_timeout_seconds"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		LogLevel: "info",
		LLM: LLMConfig{
			Provider:       "anthropic",
			MaxTokens:      4000,
			TimeoutSeconds: 120,
			RetryAttempts:  3,
		},
		Explore: ExploreConfig{
			MaxQueries:          7,
			BatchSize:           3,
			WindowSize:          5,
			ReportTail:          15,
			QueryTimeoutSeconds: 60,
			ProbeTimeoutSeconds: 30,
		},
	}
}

// QueryTimeout returns the per-query execution timeout.
func (e ExploreConfig) QueryTimeout() time.Duration {
	return time.Duration(e.QueryTimeoutSeconds) * time.Second
}

// ProbeTimeout returns the per-table row-count probe timeout.
func (e ExploreConfig) ProbeTimeout() time.Duration {
	return time.Duration(e.ProbeTimeoutSeconds) * time.Second
}

// Timeout returns the per-call LLM timeout.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults.
// Environment variables override file values.
func Load() (Config, error) {
	p, err := path()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(p)
}

// LoadFrom reads configuration from an explicit path.
func LoadFrom(p string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&c)
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	fillZero(&c)
	applyEnv(&c)
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	return SaveTo(p, c)
}

// SaveTo writes configuration to an explicit path with 0600 permissions.
func SaveTo(p string, c Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// fillZero restores defaults for fields a partial config file left empty.
func fillZero(c *Config) {
	d := Default()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = d.LLM.TimeoutSeconds
	}
	if c.LLM.RetryAttempts <= 0 {
		c.LLM.RetryAttempts = d.LLM.RetryAttempts
	}
	if c.Explore.MaxQueries == 0 {
		c.Explore.MaxQueries = d.Explore.MaxQueries
	}
	if c.Explore.BatchSize == 0 {
		c.Explore.BatchSize = d.Explore.BatchSize
	}
	if c.Explore.WindowSize == 0 {
		c.Explore.WindowSize = d.Explore.WindowSize
	}
	if c.Explore.ReportTail == 0 {
		c.Explore.ReportTail = d.Explore.ReportTail
	}
	if c.Explore.QueryTimeoutSeconds <= 0 {
		c.Explore.QueryTimeoutSeconds = d.Explore.QueryTimeoutSeconds
	}
	if c.Explore.ProbeTimeoutSeconds <= 0 {
		c.Explore.ProbeTimeoutSeconds = d.Explore.ProbeTimeoutSeconds
	}
}

func applyEnv(c *Config) {
	if v := strings.TrimSpace(os.Getenv("DATATWIN_LLM_PROVIDER")); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("DATATWIN_LLM_MODEL")); v != "" {
		c.LLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("DATATWIN_LLM_BASE_URL")); v != "" {
		c.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATATWIN_PROMPTS_FILE")); v != "" {
		c.PromptsFile = v
	}
}
