package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"focusift/internal/event"
	"focusift/internal/ipc"
)

const watchInterval = 500 * time.Millisecond

// runWatch polls the daemon and redraws the countdown until the user quits.
func runWatch(socket string) error {
	app := tview.NewApplication()
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	view.SetBorder(true).SetTitle(" Focusift ")

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return ev
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			text := pollStatus(socket)
			app.QueueUpdateDraw(func() { view.SetText(text) })
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()
	defer close(done)

	return app.SetRoot(view, true).Run()
}

func pollStatus(socket string) string {
	resp, err := ipc.Call(socket, ipc.Command{Name: ipc.CmdGetStatus})
	if err != nil {
		return "[red]daemon unreachable[-]\n" + err.Error()
	}
	if !resp.Success {
		return "[red]" + tview.Escape(resp.Message) + "[-]"
	}
	var st ipc.StatusData
	if err := resp.DecodeData(&st); err != nil {
		return "[red]bad status payload[-]"
	}
	return "\n" + tview.Escape(renderStatus(st)) + "\n(q to quit)"
}

// renderStatus is the plain-text status shown by `timer status` and `timer watch`.
func renderStatus(st event.Status) string {
	var b strings.Builder
	if st.Running {
		fmt.Fprintf(&b, "Focusing: %s remaining of %s\n",
			clockFace(st.RemainingSeconds), clockFace(st.PlannedSeconds))
		fmt.Fprintf(&b, "Interruptions: %d\n", st.Interruptions)
	} else {
		b.WriteString("Idle\n")
	}
	if st.LastReason != event.ReasonNone {
		fmt.Fprintf(&b, "Last session ended: %s\n", describeReason(st.LastReason))
	}
	if s := st.LastSuggestion; s != nil {
		if top := s.Top(); top != "" {
			fmt.Fprintf(&b, "Suggested technique: %s (%s)\n", top, s.Bucket)
		} else {
			b.WriteString("No suggestion available\n")
		}
	}
	return b.String()
}

func describeReason(r event.StopReason) string {
	switch r {
	case event.ReasonCompleted:
		return "completed"
	case event.ReasonUser:
		return "stopped by you"
	case event.ReasonInterrupted:
		return "interrupted when the timer was hidden"
	case event.ReasonTooDistracted:
		return "too many distractions"
	}
	return string(r)
}

func clockFace(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
