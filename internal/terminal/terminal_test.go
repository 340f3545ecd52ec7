// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import "testing"

func TestLinesFor(t *testing.T) {
	tests := []struct {
		name   string
		length int
		width  int
		want   int
	}{
		{name: "empty", length: 0, width: 80, want: 1},
		{name: "fits", length: 79, width: 80, want: 1},
		{name: "exact", length: 80, width: 80, want: 1},
		{name: "wraps", length: 81, width: 80, want: 2},
		{name: "unknown width", length: 100, width: 0, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LinesFor(tt.length, tt.width); got != tt.want {
				t.Errorf("LinesFor(%d, %d) = %d, want %d", tt.length, tt.width, got, tt.want)
			}
		})
	}
}

func TestWidthHasFallback(t *testing.T) {
	if w := Width(); w <= 0 {
		t.Errorf("Width() = %d, want > 0", w)
	}
}
