// Package ui renders live build progress. It consumes the per-port stage
// transitions the orchestrator exposes through its Observer hook, plus
// the run totals, and draws either a full-screen terminal dashboard
// (Dashboard) or plain line-by-line output (StdoutUI).
package ui

import (
	"fmt"

	"portforge/port"
)

// Progress is one snapshot of the run's totals.
type Progress struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Elapsed   string
}

// BuildUI is the surface both renderers implement. StageEvent and
// UpdateProgress are safe to call from any goroutine; implementations
// marshal onto their own drawing thread.
type BuildUI interface {
	Start() error
	Stop()
	StageEvent(ev port.StageCompletedEvent)
	UpdateProgress(p Progress)
}

// StdoutUI prints each stage transition as a plain line. The fallback
// when no terminal dashboard is wanted (scripts, logs, dumb terminals).
type StdoutUI struct{}

// NewStdoutUI creates the plain renderer.
func NewStdoutUI() *StdoutUI { return &StdoutUI{} }

func (*StdoutUI) Start() error { return nil }
func (*StdoutUI) Stop()        {}

func (*StdoutUI) StageEvent(ev port.StageCompletedEvent) {
	status := "ok"
	if ev.Failed {
		status = "FAILED"
	}
	fmt.Printf("  %-30s %-12s %s\n", ev.Port.Origin, ev.Stage.String(), status)
}

func (*StdoutUI) UpdateProgress(p Progress) {
	fmt.Printf("[%s] %d/%d done (%d failed, %d skipped)\n",
		p.Elapsed, p.Succeeded+p.Failed, p.Total, p.Failed, p.Skipped)
}
