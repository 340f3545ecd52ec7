// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

// LLMErrorType represents the category of a language model provider error.
type LLMErrorType int

const (
	LLMErrorUnknown LLMErrorType = iota
	LLMErrorNetwork
	LLMErrorAuth
	LLMErrorRateLimit
	LLMErrorTimeout
	LLMErrorUnavailable
)

func (t LLMErrorType) String() string {
	switch t {
	case LLMErrorNetwork:
		return "network"
	case LLMErrorAuth:
		return "auth"
	case LLMErrorRateLimit:
		return "rate_limit"
	case LLMErrorTimeout:
		return "timeout"
	case LLMErrorUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Transient reports whether a retry may succeed.
func (t LLMErrorType) Transient() bool {
	switch t {
	case LLMErrorNetwork, LLMErrorRateLimit, LLMErrorTimeout, LLMErrorUnavailable:
		return true
	}
	return false
}

// ParseLLMError categorizes a provider error message.
func ParseLLMError(errMsg string) LLMErrorType {
	lower := strings.ToLower(errMsg)

	if strings.Contains(lower, "401") || strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "incorrect api key") || strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "api key not valid") {
		return LLMErrorAuth
	}
	if strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "quota") {
		return LLMErrorRateLimit
	}
	if strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") {
		return LLMErrorTimeout
	}
	if strings.Contains(lower, "503") || strings.Contains(lower, "502") || strings.Contains(lower, "529") ||
		strings.Contains(lower, "unavailable") || strings.Contains(lower, "overloaded") {
		return LLMErrorUnavailable
	}
	if strings.Contains(lower, "connection reset") || strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "eof") {
		return LLMErrorNetwork
	}

	return LLMErrorUnknown
}

// FormatLLMError formats a provider error in a user-friendly way.
func FormatLLMError(errMsg string) string {
	errType := ParseLLMError(errMsg)

	var builder strings.Builder

	builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Language model unavailable"))
	builder.WriteString("\n\n")

	switch errType {
	case LLMErrorNetwork:
		builder.WriteString("The connection to the model provider was interrupted.\n")
		builder.WriteString("Check your internet connection, proxy and firewall settings.\n")
	case LLMErrorAuth:
		builder.WriteString("The model provider rejected the API key.\n")
		builder.WriteString("The key may be missing, revoked or meant for another provider.\n")
	case LLMErrorRateLimit:
		builder.WriteString("The model provider is rate limiting requests.\n")
		builder.WriteString("Wait a moment, or lower --max-queries for this run.\n")
	case LLMErrorTimeout:
		builder.WriteString("The model provider did not answer in time.\n")
	case LLMErrorUnavailable:
		builder.WriteString("The model provider is temporarily unavailable or overloaded.\n")
	default:
		builder.WriteString("The model call failed.\n")
	}

	builder.WriteString("\n")
	if errType == LLMErrorAuth {
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Run 'datatwin login' to store a valid API key"))
	} else {
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Please try running 'datatwin explore' again"))
	}
	builder.WriteString("\n")

	if strings.TrimSpace(errMsg) != "" {
		builder.WriteString("\n")
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(errMsg)))
	}

	return builder.String()
}

// PresentLLMError displays a formatted provider error.
func PresentLLMError(errMsg string) {
	fmt.Println()
	fmt.Println(FormatLLMError(errMsg))
	fmt.Println()
}
