package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/client"
	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/theme"
	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/views/events"
	"github.com/sudoapty-afk/glowing-barnacle/internal/tui/views/status"
)

const (
	pollInterval = 2 * time.Second
	historySize  = 50
)

// Mode identifies which input has the keyboard.
type Mode int

const (
	ModeNormal Mode = iota
	ModeForm
	ModeChat
)

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int
	mode   Mode

	snapshot *client.Snapshot
	stats    *client.Stats

	// Sub-views.
	statusBar status.Model
	log       events.Model
	form      form
	chat      textinput.Model

	// Connection state.
	connected bool
}

// --- internal messages ---

type pollMsg time.Time

type statusFetchedMsg struct {
	snap *client.Snapshot
	err  error
}

type statsFetchedMsg struct {
	stats *client.Stats
	err   error
}

type historyFetchedMsg struct {
	entries []client.Entry
	err     error
}

type actionDoneMsg struct {
	action string
	snap   *client.Snapshot
	err    error
}

type chatDoneMsg struct {
	message string
	res     client.ChatResult
	err     error
}

// New creates the root model.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	chat := textinput.New()
	chat.Prompt = "say> "
	chat.Placeholder = "message"
	chat.CharLimit = 256
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		log:       events.New(),
		form:      newForm(),
		chat:      chat,
	}
}

// Init starts the WebSocket connection and the status poll.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchStatus(), m.fetchHistory(), m.fetchStats(), tick()}
	if m.ws != nil {
		cmds = append(cmds, m.ws.Listen(m.ctx))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return pollMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.chat.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pollMsg:
		return m, tea.Batch(m.fetchStatus(), m.fetchStats(), tick())

	case statusFetchedMsg:
		if msg.err != nil {
			m.statusBar.SetError(msg.err)
			return m, nil
		}
		m.setSnapshot(msg.snap)
		return m, nil

	case statsFetchedMsg:
		if msg.err == nil {
			m.stats = msg.stats
		}
		return m, nil

	case historyFetchedMsg:
		if msg.err != nil {
			m.log.Add("err", "history: "+msg.err.Error())
			return m, nil
		}
		m.log.Load(msg.entries)
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.statusBar.SetError(fmt.Errorf("%s: %w", msg.action, msg.err))
			m.log.Add("err", msg.action+": "+msg.err.Error())
			return m, nil
		}
		m.setSnapshot(msg.snap)
		m.statusBar.SetNotice(msg.action + " ok")
		return m, nil

	case chatDoneMsg:
		switch {
		case msg.err != nil:
			m.statusBar.SetError(fmt.Errorf("chat: %w", msg.err))
		case !msg.res.Success:
			m.statusBar.SetError(fmt.Errorf("chat: %s", msg.res.Error))
		default:
			m.statusBar.SetNotice(fmt.Sprintf("sent %q", msg.message))
		}
		return m, nil

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), m.fetchHistory())

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if m.ctx.Err() != nil {
			return m, nil
		}
		return m, m.ws.Listen(m.ctx)

	case client.WSStatusMsg:
		snap := msg.Payload
		m.setSnapshot(&snap)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSEventMsg:
		m.log.AddEvent(msg.Payload)
		return m, m.ws.ReadLoop(m.ctx)
	}

	cmd := m.updateInputs(msg)
	return m, cmd
}

// updateInputs forwards non-key messages (cursor blink) to the focused input.
func (m *Model) updateInputs(msg tea.Msg) tea.Cmd {
	switch m.mode {
	case ModeForm:
		var cmd tea.Cmd
		m.form.inputs[m.form.focus], cmd = m.form.inputs[m.form.focus].Update(msg)
		return cmd
	case ModeChat:
		var cmd tea.Cmd
		m.chat, cmd = m.chat.Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) setSnapshot(s *client.Snapshot) {
	if s == nil {
		return
	}
	m.snapshot = s
	m.statusBar.Snapshot = s
	if m.mode != ModeForm {
		m.form.seed(*s)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m.quit()
	}

	switch m.mode {
	case ModeForm:
		return m.handleFormKey(msg)
	case ModeChat:
		return m.handleChatKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Start):
		return m, m.startCmd()

	case key.Matches(msg, m.keys.Stop):
		return m, m.action("stop", m.http.Stop)

	case key.Matches(msg, m.keys.Edit):
		m.mode = ModeForm
		cmd := m.form.focusField(m.form.focus)
		return m, cmd

	case key.Matches(msg, m.keys.Chat):
		m.mode = ModeChat
		cmd := m.chat.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Refresh):
		return m, tea.Batch(m.fetchStatus(), m.fetchHistory(), m.fetchStats())

	case key.Matches(msg, m.keys.PageUp):
		m.log.ScrollUp(5)
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.log.ScrollDown(5)
		return m, nil
	}

	return m, nil
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.mode = ModeNormal
		m.form.blur()
		return m, nil
	case key.Matches(msg, m.keys.Next):
		cmd := m.form.next()
		return m, cmd
	case key.Matches(msg, m.keys.Prev):
		cmd := m.form.prev()
		return m, cmd
	case key.Matches(msg, m.keys.Submit):
		m.mode = ModeNormal
		m.form.blur()
		return m, m.startCmd()
	}
	cmd := m.form.update(msg)
	return m, cmd
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.mode = ModeNormal
		m.chat.Blur()
		m.chat.Reset()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		text := strings.TrimSpace(m.chat.Value())
		m.mode = ModeNormal
		m.chat.Blur()
		m.chat.Reset()
		if text == "" {
			return m, nil
		}
		return m, m.sendChat(text)
	}
	var cmd tea.Cmd
	m.chat, cmd = m.chat.Update(msg)
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.cancel()
	if m.ws != nil {
		m.ws.Close()
	}
	return m, tea.Quit
}

// --- commands ---

func (m Model) startCmd() tea.Cmd {
	req, err := m.form.request()
	if err != nil {
		return func() tea.Msg { return actionDoneMsg{action: "start", err: err} }
	}
	return m.action("start", func() (*client.Snapshot, error) { return m.http.Start(req) })
}

func (m Model) action(name string, fn func() (*client.Snapshot, error)) tea.Cmd {
	if m.http == nil {
		return nil
	}
	return func() tea.Msg {
		snap, err := fn()
		return actionDoneMsg{action: name, snap: snap, err: err}
	}
}

func (m Model) sendChat(text string) tea.Cmd {
	if m.http == nil {
		return nil
	}
	return func() tea.Msg {
		res, err := m.http.Chat(text)
		return chatDoneMsg{message: text, res: res, err: err}
	}
}

func (m Model) fetchStatus() tea.Cmd {
	if m.http == nil {
		return nil
	}
	return func() tea.Msg {
		snap, err := m.http.GetStatus()
		return statusFetchedMsg{snap: snap, err: err}
	}
}

func (m Model) fetchStats() tea.Cmd {
	if m.http == nil {
		return nil
	}
	return func() tea.Msg {
		s, err := m.http.GetStats()
		return statsFetchedMsg{stats: s, err: err}
	}
}

func (m Model) fetchHistory() tea.Cmd {
	if m.http == nil {
		return nil
	}
	return func() tea.Msg {
		entries, err := m.http.GetEvents(historySize)
		return historyFetchedMsg{entries: entries, err: err}
	}
}

// --- view ---

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	top := []string{m.statusBar.View()}
	if !m.connected {
		top = append(top, disconnectBanner(m.width))
	}
	top = append(top, lipgloss.JoinHorizontal(lipgloss.Top,
		m.form.view(m.mode == ModeForm), " ", m.renderStats()))

	var bottom []string
	if m.mode == ModeChat {
		bottom = append(bottom, m.chat.View())
	}
	bottom = append(bottom, theme.StyleDimmed.Render(m.helpLine()))

	upper := lipgloss.JoinVertical(lipgloss.Left, top...)
	lower := lipgloss.JoinVertical(lipgloss.Left, bottom...)
	logHeight := m.height - lipgloss.Height(upper) - lipgloss.Height(lower)

	return lipgloss.JoinVertical(lipgloss.Left, upper, m.log.View(m.width, logHeight), lower)
}

func disconnectBanner(width int) string {
	return lipgloss.NewStyle().
		Width(max(width, 40)).
		Bold(true).
		Foreground(theme.ColorBright).
		Background(theme.ColorDanger).
		Padding(0, 1).
		Render("DISCONNECTED: Reconnecting to the minebot API...")
}

func (m Model) renderStats() string {
	lines := []string{theme.StyleHeader.Render(" STATS ")}
	s := m.stats
	if s == nil {
		lines = append(lines, theme.StyleDimmed.Render("unavailable"))
	} else {
		disconnects := 0
		for _, n := range s.Disconnects {
			disconnects += n
		}
		lines = append(lines,
			fmt.Sprintf("attempts   %d", s.ConnectAttempts),
			fmt.Sprintf("spawns     %d", s.Spawns),
			fmt.Sprintf("drops      %d", disconnects),
			fmt.Sprintf("chats      %d (%d heartbeat)", s.ChatsSent, s.Heartbeats),
			fmt.Sprintf("online     %s", formatSeconds(s.TotalOnlineSec)),
			fmt.Sprintf("longest    %s", formatSeconds(s.LongestOnlineSec)),
		)
	}
	return theme.StyleBorder.Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func formatSeconds(sec float64) string {
	return (time.Duration(sec) * time.Second).Round(time.Second).String()
}

func (m Model) helpLine() string {
	switch m.mode {
	case ModeForm:
		return "  tab/shift+tab:field  enter:start  esc:done"
	case ModeChat:
		return "  enter:send  esc:cancel"
	}
	return "  s:start  x:stop  e:edit  c:chat  r:refresh  j/k:scroll  q:quit"
}
