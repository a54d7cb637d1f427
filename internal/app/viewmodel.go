// SPDX-License-Identifier: MIT

package app

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/tomtom215/aud/internal/xfer"
)

var (
	activeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	cursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	alertStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// DeviceRow is one line of a rendered device list: plain text plus its
// already-styled form, so a renderer can pick whichever it needs.
type DeviceRow struct {
	Name      string
	Selected  bool
	Connected bool
	Plain     string
	Styled    string
}

// ViewModel is the read-only snapshot handed to an external renderer.
// Rendering the actual widget tree (keybindings, layout, scrolling) is
// out of scope here; this only formats plain and lipgloss-styled
// strings, formatted the same way option labels are elsewhere in this
// codebase.
type ViewModel struct {
	Devices      []DeviceRow
	StreamState  string
	LoadedScript string
	Alert        string
	Messages     []string
}

// ViewModel renders the Core's current state. It takes no lock because
// Core is single-threaded by contract.
func (c *Core) ViewModel() ViewModel {
	rows := make([]DeviceRow, len(c.devices))
	for i, d := range c.devices {
		selected := i == c.cursor
		connected := c.state == StreamActive && d.ID == c.connected.ID
		plain := fmt.Sprintf("%2d. %s", i+1, d.Name)
		if connected {
			plain += " (connected)"
		}

		style := idleStyle
		if connected {
			style = activeStyle
		}
		styled := style.Render(plain)
		if selected {
			styled = cursorStyle.Render("> ") + styled
		} else {
			styled = "  " + styled
		}

		rows[i] = DeviceRow{
			Name:      d.Name,
			Selected:  selected,
			Connected: connected,
			Plain:     plain,
			Styled:    styled,
		}
	}

	peeked := c.messages.Peek()
	messages := make([]string, 0, len(peeked))
	for _, f := range peeked {
		messages = append(messages, formatFrame(f))
	}

	// Take-and-restore so building the snapshot leaves the alert pending.
	alert, ok := c.alert.Take()
	if ok {
		c.alert.Set(alert)
	}

	return ViewModel{
		Devices:      rows,
		StreamState:  c.state.String(),
		LoadedScript: c.loadedScriptName,
		Alert:        alert,
		Messages:     messages,
	}
}

func formatFrame(f xfer.CaptureFrame) string {
	switch {
	case f.Audio != nil:
		return fmt.Sprintf("audio: %d channels", len(f.Audio.Channels))
	case f.Midi != nil:
		return fmt.Sprintf("midi: % x", f.Midi.Bytes)
	default:
		return ""
	}
}

// AlertText renders the current alert (if any) styled for a terminal,
// without consuming it — unlike WaitForAlert/Take, viewing is
// side-effect free so a renderer can redraw repeatedly.
func (c *Core) AlertText() (string, bool) {
	if !c.alert.Peek() {
		return "", false
	}
	text, ok := c.alert.Take()
	if ok {
		// Peek-then-render-then-restore: the renderer wants to display
		// without destroying state other readers (WaitForAlert) still
		// need to observe exactly once.
		c.alert.Set(text)
	}
	return alertStyle.Render(text), ok
}
