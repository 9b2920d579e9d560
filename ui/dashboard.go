package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"portforge/port"
)

// Dashboard implements BuildUI using tview/tcell for a full-screen TUI:
// a one-line run header, a totals panel, and a scrolling pane of stage
// transitions.
type Dashboard struct {
	app          *tview.Application
	headerText   *tview.TextView
	progressText *tview.TextView
	eventsText   *tview.TextView
	layout       *tview.Flex

	mu            sync.Mutex
	eventLines    []string
	maxEventLines int
	stopped       bool
	onInterrupt   func()
}

// NewDashboard creates the terminal dashboard renderer.
func NewDashboard() *Dashboard {
	return &Dashboard{maxEventLines: 100}
}

// SetInterruptHandler sets a callback invoked when the user presses
// Ctrl+C or q inside the dashboard, so the caller can stop the build.
func (ui *Dashboard) SetInterruptHandler(handler func()) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.onInterrupt = handler
}

// Start initializes and runs the dashboard on its own goroutine.
func (ui *Dashboard) Start() error {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	ui.app = tview.NewApplication()

	ui.headerText = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.headerText.SetBorder(true).SetTitle(" portforge Build Status ").SetTitleAlign(tview.AlignLeft)
	ui.headerText.SetText("[yellow]Initializing build...[white]")

	ui.progressText = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.progressText.SetBorder(true).SetTitle(" Progress ").SetTitleAlign(tview.AlignLeft)
	ui.progressText.SetText("Waiting for build to start...")

	ui.eventsText = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			ui.app.Draw()
		})
	ui.eventsText.SetBorder(true).SetTitle(" Stage Events ").SetTitleAlign(tview.AlignLeft)
	ui.eventsText.SetText("No events yet...")

	ui.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.headerText, 3, 0, false).
		AddItem(ui.progressText, 6, 0, false).
		AddItem(ui.eventsText, 0, 1, false)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		interrupt := false
		switch event.Key() {
		case tcell.KeyCtrlC:
			interrupt = true
		case tcell.KeyRune:
			if event.Rune() == 'q' || event.Rune() == 'Q' {
				interrupt = true
			}
		}
		if !interrupt {
			return event
		}
		ui.app.Stop()
		ui.mu.Lock()
		handler := ui.onInterrupt
		ui.mu.Unlock()
		if handler != nil {
			go handler()
		}
		return nil
	})

	go func() {
		// Run returns when Stop is called; a draw error here means the
		// terminal is gone and there is nothing left to report to.
		ui.app.SetRoot(ui.layout, true).EnableMouse(true).Run()
	}()

	// Give the UI a moment to initialize
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Stop cleanly shuts down the dashboard.
func (ui *Dashboard) Stop() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopped {
		return
	}
	ui.stopped = true

	if ui.app != nil {
		ui.app.Stop()
	}

	// Give time for terminal restoration
	time.Sleep(100 * time.Millisecond)
}

// UpdateProgress redraws the header and totals panel.
func (ui *Dashboard) UpdateProgress(p Progress) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.app == nil || ui.stopped {
		return
	}

	done := p.Succeeded + p.Failed

	headerText := fmt.Sprintf("[yellow]Building:[white] %d/%d ports | [green]Elapsed:[white] %s",
		done, p.Total, p.Elapsed)

	progressText := fmt.Sprintf(
		"[green]✓ Success:[white] %3d\n"+
			"[red]✗ Failed:[white]  %3d\n"+
			"[yellow]⊙ Skipped:[white] %3d",
		p.Succeeded,
		p.Failed,
		p.Skipped,
	)

	ui.app.QueueUpdateDraw(func() {
		ui.headerText.SetText(headerText)
		ui.progressText.SetText(progressText)
	})
}

// StageEvent appends one stage transition to the events pane.
func (ui *Dashboard) StageEvent(ev port.StageCompletedEvent) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.app == nil || ui.stopped {
		return
	}

	timestamp := time.Now().Format("15:04:05")
	colour := "green"
	status := "done"
	if ev.Failed {
		colour = "red"
		status = "failed"
	}
	event := fmt.Sprintf("[%s] [cyan]%s[white] %s [%s]%s[white]",
		timestamp, ev.Port.Origin, ev.Stage.String(), colour, status)

	ui.eventLines = append(ui.eventLines, event)
	if len(ui.eventLines) > ui.maxEventLines {
		ui.eventLines = ui.eventLines[1:]
	}

	eventsText := ""
	for _, line := range ui.eventLines {
		eventsText += line + "\n"
	}

	ui.app.QueueUpdateDraw(func() {
		ui.eventsText.SetText(eventsText)
		ui.eventsText.ScrollToEnd()
	})
}
