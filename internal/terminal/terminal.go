// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal provides utilities for terminal operations such as sizing
// and clearing previously printed text.
package terminal

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/term"
)

// DefaultWidth is used when stdout is not a terminal.
const DefaultWidth = 80

// Width returns the current terminal width.
func Width() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return DefaultWidth
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// LinesFor returns how many terminal rows text of textLength characters
// occupies at the given width.
func LinesFor(textLength, width int) int {
	if width <= 0 {
		width = DefaultWidth
	}
	lines := int(math.Ceil(float64(textLength) / float64(width)))
	if lines < 1 {
		return 1
	}
	return lines
}

// ClearPreviousLines clears text from the terminal that was previously printed,
// plus the line the cursor moved to when the user pressed Enter.
//
// Parameters:
//   - textLength: The total number of characters in the text to clear (prompt + user input)
func ClearPreviousLines(textLength int) {
	linesToClear := LinesFor(textLength, Width()) + 1

	for i := 0; i < linesToClear; i++ {
		fmt.Print("\r\x1b[2K")
		if i < linesToClear-1 {
			fmt.Print("\x1b[1A")
		}
	}
}
