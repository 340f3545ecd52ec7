// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package progress

import (
	"strings"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"datatwin/cli/internal/engine"
	"datatwin/cli/internal/terminal"
)

// Use braille spinner frames similar to docker CLI
var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Renderer draws a Tracker into a pterm area that redraws on a ticker.
type Renderer struct {
	tracker *Tracker
	render  *RenderState

	area   *pterm.AreaPrinter
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	width  int
	active bool
}

// NewRenderer creates a renderer over tracker.
func NewRenderer(tracker *Tracker) *Renderer {
	return &Renderer{tracker: tracker, render: NewRenderState(), width: terminal.Width()}
}

// Observer returns the engine observer that feeds the tracker and redraws.
func (r *Renderer) Observer() engine.Observer {
	return func(ev engine.Event) {
		r.tracker.Apply(ev)
		r.Update()
	}
}

// Start opens the area and begins animating. Calling Start twice is a no-op.
func (r *Renderer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return
	}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(false).Start()
	if err != nil {
		cursor.Show()
		return
	}
	r.area = area
	r.stop = make(chan struct{})
	r.active = true

	r.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer r.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				r.render.IncrementFrame()
				r.Update()
			case <-stop:
				return
			}
		}
	}(r.stop)
}

// Update redraws the area if its content changed.
func (r *Renderer) Update() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	text := r.Text()
	if !r.render.Changed(text) {
		return
	}
	r.area.Update(text)
}

// Stop draws the final frame and releases the terminal.
func (r *Renderer) Stop() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	close(r.stop)
	r.mu.Unlock()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.area.Update(r.Text())
	_ = r.area.Stop()
	r.area = nil
	r.active = false
	cursor.Show()
}

// Text renders the tracker's current lines.
func (r *Renderer) Text() string {
	spin := frames[r.render.GetFrameIdx()%len(frames)]
	snapshot := r.tracker.Snapshot()
	lines := make([]string, 0, len(snapshot)+1)
	if s := r.tracker.ScaleLine(); s != "" {
		lines = append(lines, pterm.Gray("  "+s))
	}
	for _, l := range snapshot {
		lines = append(lines, FormatLine(l, spin, r.width))
	}
	return strings.Join(r.render.PadLines(lines), "\n")
}

// FormatLine renders one progress line, truncating the detail to width.
func FormatLine(l Line, spin string, width int) string {
	var prefix string
	switch l.State {
	case Running:
		prefix = spin
	case Done:
		prefix = pterm.Green("✓")
	case Failed:
		prefix = pterm.Red("✗")
	}
	line := prefix + " " + l.Label
	if l.Detail == "" {
		return line
	}
	detail := strings.Join(strings.Fields(l.Detail), " ")
	if width > 0 {
		room := width - len([]rune(l.Label)) - 6
		if room < 10 {
			room = 10
		}
		if r := []rune(detail); len(r) > room {
			detail = string(r[:room-1]) + "…"
		}
	}
	return line + "  " + pterm.Gray(detail)
}
