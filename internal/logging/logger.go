// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName is the structured log written inside the XDG state directory.
const LogFileName = "datatwin.log"

// NewLogger builds the process logger. Entries go to stateDir/datatwin.log so
// they never interleave with the terminal UI; verbose mode mirrors them to stderr
// and lowers the level to debug.
func NewLogger(level string, verbose bool, stateDir string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Sampling = nil

	lvl := zapcore.InfoLevel
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	outputs := []string{}
	if stateDir != "" {
		outputs = append(outputs, filepath.Join(stateDir, LogFileName))
	}
	if verbose || len(outputs) == 0 {
		outputs = append(outputs, "stderr")
	}
	config.OutputPaths = outputs
	config.ErrorOutputPaths = outputs

	return config.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
