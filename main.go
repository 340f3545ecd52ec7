// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the Datatwin CLI application.
package main

import (
	"datatwin/cli/cmd"
)

func main() {
	cmd.Execute()
}
