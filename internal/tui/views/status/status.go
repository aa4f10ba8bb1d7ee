package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/client"
	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Snapshot  *client.Snapshot
	Width     int

	notice    string
	noticeErr bool
	noticeAt  time.Time
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// SetNotice shows an informational line under the bar.
func (m *Model) SetNotice(msg string) {
	m.notice, m.noticeErr, m.noticeAt = msg, false, time.Now()
}

// SetError shows an error line under the bar.
func (m *Model) SetError(err error) {
	m.notice, m.noticeErr, m.noticeAt = err.Error(), true, time.Now()
}

// Notice returns the current notice text and whether it is an error.
func (m Model) Notice() (string, bool) {
	return m.notice, m.noticeErr
}

// Badge renders the colored session status label.
func Badge(status client.Status) string {
	s := string(status)
	if s == "" {
		s = "unknown"
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.StatusColor(s)).
		Render(theme.StatusGlyph(s) + " " + strings.ToUpper(s))
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● API")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ API")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	parts := []string{connStr}

	if snap := m.Snapshot; snap != nil {
		parts = append(parts, Badge(snap.Status))
		if snap.Host != "" {
			target := fmt.Sprintf("%s@%s:%d", snap.Username, snap.Host, snap.Port)
			parts = append(parts, target)
		}
		parts = append(parts, fmt.Sprintf("attempts %d", snap.Attempts))
		if snap.RetryPending {
			parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorRetry).Render("retry pending"))
		}
		if !snap.Since.IsZero() {
			parts = append(parts, theme.StyleDimmed.Render("since "+snap.Since.Local().Format("15:04:05")))
		}
	} else {
		parts = append(parts, theme.StyleDimmed.Render("no status yet"))
	}

	content := strings.Join(parts, sep)
	if m.notice != "" {
		style := theme.StyleDimmed
		if m.noticeErr {
			style = theme.StyleError
		}
		content += "\n" + style.Render(m.noticeAt.Format("15:04:05")+" "+m.notice)
	} else if m.Snapshot != nil && m.Snapshot.LastError != "" {
		content += "\n" + theme.StyleError.Render("last error: "+m.Snapshot.LastError)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
