// Copyright (c) 2025 Datatwin
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"datatwin/cli/internal/engine"
	"datatwin/cli/internal/progress"
	"datatwin/cli/internal/terminal"
)

// progressUI wires engine events to the live progress area. Outside a terminal
// it logs one line per finished query instead.
type progressUI struct {
	tracker  *progress.Tracker
	renderer *progress.Renderer
	live     bool
}

func newProgressUI() *progressUI {
	tracker := progress.NewTracker()
	return &progressUI{
		tracker:  tracker,
		renderer: progress.NewRenderer(tracker),
		live:     terminal.IsInteractive(),
	}
}

// observer returns the engine observer for this UI.
func (p *progressUI) observer() engine.Observer {
	if p.live {
		feed := p.renderer.Observer()
		return func(ev engine.Event) {
			logEvent(ev)
			feed(ev)
		}
	}
	return func(ev engine.Event) {
		logEvent(ev)
		p.tracker.Apply(ev)
		switch ev.Type {
		case engine.EventQueryFinished:
			status := "ok"
			if !ev.Succeeded {
				status = "failed"
			}
			pterm.Printfln("query %d/%d %s: %s", ev.Seq, ev.Max, status, ev.Summary)
		case engine.EventSummaryCreated:
			pterm.Printfln("summarized queries %d-%d", ev.FirstSeq, ev.LastSeq)
		case engine.EventSummaryFailed:
			pterm.Printfln("summary failed: %s", ev.Message)
		case engine.EventScaleAssessed:
			if line := p.tracker.ScaleLine(); line != "" {
				pterm.Println(line)
			}
		}
	}
}

func (p *progressUI) start() {
	sectionTitle("Exploring")
	if p.live {
		p.renderer.Start()
	}
}

func (p *progressUI) stop() {
	if p.live {
		p.renderer.Stop()
	}
}

func logEvent(ev engine.Event) {
	logger.Debug("engine event",
		zap.String("type", string(ev.Type)),
		zap.String("phase", string(ev.Phase)),
		zap.Int("seq", ev.Seq))
}

// watchInterrupts turns the first Ctrl+C into a graceful stop: the query in
// flight finishes, then the engine writes its report. A second Ctrl+C restores
// the cursor hidden by the progress area and exits with 130. The returned
// function stops watching.
func watchInterrupts(eng *engine.Engine) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go handleInterrupts(sigCh, done, eng, cursor.Show, os.Exit)

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func handleInterrupts(sigCh <-chan os.Signal, done <-chan struct{}, eng interface{ RequestStop() }, restore func(), exit func(int)) {
	interrupted := false
	for {
		select {
		case <-done:
			return
		case sig := <-sigCh:
			if interrupted {
				logger.Warn("second interrupt, exiting", zap.String("signal", sig.String()))
				restore()
				exit(130)
				return
			}
			interrupted = true
			eng.RequestStop()
			logger.Info("stop requested", zap.String("signal", sig.String()))
			pterm.Warning.Println("Stopping after the current query; the report is still written. Press Ctrl+C again to abort.")
		}
	}
}
