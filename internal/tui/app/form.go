package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/client"
	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/theme"
)

type field int

const (
	fieldHost field = iota
	fieldPort
	fieldUsername
	fieldHeartbeat
	fieldCount
)

var fieldLabels = [fieldCount]string{"Host", "Port", "Username", "Heartbeat"}

// form edits the connection settings sent with a start request. Blank fields
// fall back to the server's bot defaults.
type form struct {
	inputs [fieldCount]textinput.Model
	focus  field
	seeded bool
}

func newForm() form {
	var f form
	for i := range f.inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = "server default"
		ti.CharLimit = 256
		ti.Width = 32
		f.inputs[i] = ti
	}
	f.inputs[fieldPort].CharLimit = 5
	return f
}

// seed copies the session's current config into the form once, so later
// status pushes do not clobber edits.
func (f *form) seed(s client.Snapshot) {
	if f.seeded || s.Host == "" {
		return
	}
	f.inputs[fieldHost].SetValue(s.Host)
	if s.Port > 0 {
		f.inputs[fieldPort].SetValue(strconv.Itoa(s.Port))
	}
	f.inputs[fieldUsername].SetValue(s.Username)
	f.inputs[fieldHeartbeat].SetValue(s.HeartbeatMessage)
	f.seeded = true
}

func (f *form) focusField(i field) tea.Cmd {
	for j := range f.inputs {
		f.inputs[j].Blur()
	}
	f.focus = (i + fieldCount) % fieldCount
	return f.inputs[f.focus].Focus()
}

func (f *form) next() tea.Cmd { return f.focusField(f.focus + 1) }
func (f *form) prev() tea.Cmd { return f.focusField(f.focus - 1) }

func (f *form) blur() {
	for j := range f.inputs {
		f.inputs[j].Blur()
	}
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	// Any edit means the user owns the values now.
	f.seeded = true
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

// request builds the start request from the form values.
func (f form) request() (client.StartRequest, error) {
	req := client.StartRequest{
		Host:             strings.TrimSpace(f.inputs[fieldHost].Value()),
		Username:         strings.TrimSpace(f.inputs[fieldUsername].Value()),
		HeartbeatMessage: strings.TrimSpace(f.inputs[fieldHeartbeat].Value()),
	}
	if raw := strings.TrimSpace(f.inputs[fieldPort].Value()); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			return client.StartRequest{}, fmt.Errorf("port %q must be a number between 1 and 65535", raw)
		}
		req.Port = port
	}
	return req, nil
}

func (f form) view(active bool) string {
	lines := []string{theme.StyleHeader.Render(" CONNECTION ")}
	for i, in := range f.inputs {
		label := fmt.Sprintf("%-10s", fieldLabels[i])
		if active && field(i) == f.focus {
			label = theme.StyleSelected.Render("> " + label)
		} else {
			label = theme.StyleDimmed.Render("  " + label)
		}
		lines = append(lines, label+" "+in.View())
	}
	if active {
		lines = append(lines, theme.StyleDimmed.Render("tab:next  enter:start  esc:done"))
	}
	return theme.StyleBorder.Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
