// Package events provides the scrollable session event log panel.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/client"
	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/theme"
)

const maxEntries = 200

// Entry is a single event log line.
type Entry struct {
	Time    time.Time
	Kind    string // "stat", "chat", "beat", "rtry", "err"
	Message string
}

// Model holds event log state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset (from bottom)
}

// New creates an empty event log.
func New() Model {
	return Model{}
}

// Add appends a log entry and caps the buffer.
func (m *Model) Add(kind, message string) {
	m.append(Entry{Time: time.Now(), Kind: kind, Message: message})
}

// AddEvent appends a pushed session event.
func (m *Model) AddEvent(ev client.Event) {
	kind, msg := Describe(ev)
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	m.append(Entry{Time: at, Kind: kind, Message: msg})
}

// Load replaces the log with journal history. entries arrive newest first.
func (m *Model) Load(entries []client.Entry) {
	m.Entries = m.Entries[:0]
	for i := len(entries) - 1; i >= 0; i-- {
		kind, msg := Describe(entries[i].Event())
		m.Entries = append(m.Entries, Entry{Time: entries[i].CreatedAt, Kind: kind, Message: msg})
	}
	m.trim()
	m.Offset = 0
}

func (m *Model) append(e Entry) {
	m.Entries = append(m.Entries, e)
	m.trim()
	// Reset scroll to bottom on new entry.
	m.Offset = 0
}

func (m *Model) trim() {
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset += n
	max := len(m.Entries) - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// Describe returns the log kind and text for a session event.
func Describe(ev client.Event) (kind, message string) {
	switch ev.Type {
	case "chat":
		if ev.Heartbeat {
			return "beat", fmt.Sprintf("heartbeat: %s", ev.Message)
		}
		return "chat", ev.Message
	case "retry_scheduled":
		return "rtry", fmt.Sprintf("reconnect scheduled after attempt %d", ev.Attempt)
	case "status":
		msg := fmt.Sprintf("%s (attempt %d)", ev.Status, ev.Attempt)
		if ev.Cause != "" {
			msg += " cause=" + ev.Cause
		}
		if ev.Reason != "" {
			msg += ": " + ev.Reason
		}
		switch ev.Cause {
		case "error", "kick", "open_failed", "config_missing":
			return "err", msg
		}
		return "stat", msg
	}
	return "?", ev.Type
}

// panelStyle returns the shared border style for the log panel.
func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the event log panel.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visibleLines := height - 4
	if visibleLines < 3 {
		visibleLines = 3
	}

	title := theme.StyleHeader.Render(" EVENTS ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("pgup/pgdn:scroll  %d entries", len(m.Entries)))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No events recorded yet.")
		content := lipgloss.JoinVertical(lipgloss.Left, title, body, help)
		return panelStyle(innerW).Render(content)
	}

	// Build visible lines from bottom (minus offset).
	end := len(m.Entries) - m.Offset
	start := end - visibleLines
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}

	var lines []string
	for i := start; i < end; i++ {
		e := m.Entries[i]
		tsStr := theme.StyleDimmed.Render(e.Time.Local().Format("15:04:05"))
		kindStr := lipgloss.NewStyle().Foreground(kindToColor(e.Kind)).Width(4).Render(e.Kind)
		msgStr := e.Message
		if len(msgStr) > innerW-16 && innerW > 20 {
			msgStr = msgStr[:innerW-19] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", tsStr, kindStr, msgStr))
	}

	body := strings.Join(lines, "\n")
	scrollIndicator := ""
	if m.Offset > 0 {
		scrollIndicator = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, body, scrollIndicator, help)
	return panelStyle(innerW).Render(content)
}

func kindToColor(kind string) lipgloss.Color {
	switch kind {
	case "chat":
		return theme.ColorChat
	case "beat":
		return theme.ColorHeartbeat
	case "rtry":
		return theme.ColorRetry
	case "err":
		return theme.ColorErrored
	case "stat":
		return theme.ColorOnline
	default:
		return theme.ColorDimmed
	}
}
