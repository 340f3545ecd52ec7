// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"datatwin/cli/internal/config"
	"datatwin/cli/internal/keychain"
	"datatwin/cli/internal/llm"
)

var (
	loginProvider   string
	loginModel      string
	loginBaseURL    string
	loginSetDefault bool
)

// loginCmd stores a language model API key in the OS keychain.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Store the API key of a language model provider",
	Long: `The login command stores the API key of a language model provider (openai,
anthropic, gemini or openai-compatible) in the OS keychain. The key is read without
echo. With --default the provider, model and base URL also become the defaults in
the config file.

Keys can also be supplied through DATATWIN_LLM_API_KEY or the provider's own
variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY).`,

	RunE: func(cmd *cobra.Command, args []string) error {
		provider := strings.ToLower(strings.TrimSpace(loginProvider))
		if provider == "" {
			provider = cfg.LLM.Provider
		}
		if providerEnvVar(provider) == "" {
			return fmt.Errorf("unknown provider %q (use openai, anthropic, gemini or openai-compatible)", provider)
		}

		promptText := fmt.Sprintf("Enter %s API key: ", provider)
		fmt.Print(promptText)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read API key: %w", err)
		}
		apiKey := strings.TrimSpace(string(raw))
		if apiKey == "" {
			return errors.New("API key is required")
		}

		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("❌ Secure storage is not available on this system.")
			fmt.Printf("   Set DATATWIN_LLM_API_KEY or %s instead.\n", providerEnvVar(provider))
			return err
		}
		if err := km.SaveLLMAPIKey(provider, apiKey); err != nil {
			fmt.Println("❌ Failed to save the API key securely.")
			return err
		}
		logger.Info("llm api key saved", zap.String("provider", provider))

		if loginSetDefault || cmd.Flags().Changed("provider") {
			c := cfg
			c.LLM.Provider = provider
			if loginModel != "" {
				c.LLM.Model = loginModel
			} else if c.LLM.Model != "" && provider != cfg.LLM.Provider {
				c.LLM.Model = ""
			}
			if loginBaseURL != "" {
				c.LLM.BaseURL = loginBaseURL
			}
			if err := config.Save(c); err != nil {
				pterm.Warning.Println("API key saved, but the config file could not be updated: " + err.Error())
			} else {
				cfg = c
			}
		}

		model := cfg.LLM.Model
		if model == "" {
			model = llm.DefaultModel(provider)
		}
		fmt.Printf("✅ %s API key saved (model %s)\n", provider, model)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginProvider, "provider", "", "LLM provider: openai, anthropic, gemini or openai-compatible")
	loginCmd.Flags().StringVar(&loginModel, "model", "", "Default model for the provider")
	loginCmd.Flags().StringVar(&loginBaseURL, "base-url", "", "Base URL of an openai-compatible endpoint")
	loginCmd.Flags().BoolVar(&loginSetDefault, "default", false, "Make this provider the default in the config file")
}
