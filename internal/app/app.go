package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/taskhub/realtime/internal/client"
	"github.com/taskhub/realtime/internal/protocol"
	"github.com/taskhub/realtime/internal/theme"
	"github.com/taskhub/realtime/internal/views/eventlog"
	"github.com/taskhub/realtime/internal/views/status"
)

// inputMode identifies what the text input is collecting.
type inputMode int

const (
	inputNone inputMode = iota
	inputProject
	inputTask
)

const helpMarkdown = `# taskhub

Live view of who is online in a project and which tasks they are on.

| Key | Action |
|-----|--------|
| p | switch project |
| l | leave project |
| t | select task |
| v / e / i | send viewing / editing / idle presence for the selected task |
| r | measure latency |
| j / k | scroll the activity log |
| ? | toggle this help |
| q | quit |

The client reconnects on its own after a dropped connection and rejoins
the selected project once authenticated.
`

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	state *client.State
	task  protocol.ID

	// Sub-views.
	statusBar status.Model
	log       eventlog.Model
	input     textinput.Model
	mode      inputMode
	showHelp  bool

	connected bool
}

// New creates the root model.
func New(ws *client.WSClient) Model {
	ctx, cancel := context.WithCancel(context.Background())

	input := textinput.New()
	input.CharLimit = 64

	m := Model{
		ws:        ws,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		state:     client.NewState(),
		statusBar: status.New(),
		log:       eventlog.New(),
		input:     input,
	}
	if ws != nil {
		m.statusBar.Project = ws.Project().String()
	}
	return m
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return m.ws.Listen(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.input.Width = max(msg.Width-20, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.ConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.log.Add(eventlog.KindConn, "connected")
		return m, m.ws.ReadLoop(m.ctx)

	case client.DisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		m.statusBar.Latency = 0
		m.state.Reset()
		m.statusBar.Online = 0
		if msg.Intentional {
			return m, nil
		}
		if msg.Err != nil {
			m.log.Add(eventlog.KindConn, fmt.Sprintf("connection lost: %v", msg.Err))
		}
		return m, m.ws.Reconnect(m.ctx)

	case client.EventMsg:
		m.applyEvent(msg.Event)
		return m, m.ws.ReadLoop(m.ctx)

	case client.LatencyMsg:
		m.statusBar.Latency = msg.RTT
		return m, m.ws.ReadLoop(m.ctx)
	}

	return m, nil
}

func (m *Model) applyEvent(ev protocol.Event) {
	m.state.Apply(ev)
	m.statusBar.Online = len(m.state.OnlineUsers())

	who := ev.UserName
	if who == "" {
		who = ev.UserID.String()
	}

	switch ev.Type {
	case protocol.MsgAuthSuccess:
		m.statusBar.UserID = ev.UserID.String()
		m.log.Add(eventlog.KindConn, "authenticated as "+ev.UserID.String())
	case protocol.MsgAuthError, protocol.MsgError:
		m.log.Add(eventlog.KindErr, ev.Error)
	case protocol.MsgUserJoined:
		m.log.Add(eventlog.KindUser, who+" joined")
	case protocol.MsgUserLeft:
		m.log.Add(eventlog.KindUser, who+" left")
	case protocol.MsgTaskCreated:
		m.log.Add(eventlog.KindTask, fmt.Sprintf("%s created task %s", who, compact(ev.Task)))
	case protocol.MsgTaskUpdated:
		m.log.Add(eventlog.KindTask, fmt.Sprintf("%s updated task %s %s", who, ev.TaskID, compact(ev.Changes)))
	case protocol.MsgTaskDeleted:
		m.log.Add(eventlog.KindTask, fmt.Sprintf("%s deleted task %s", who, ev.TaskID))
	case protocol.MsgUsersList, protocol.MsgPresence:
	default:
		m.log.Add(eventlog.KindConn, "unhandled event "+string(ev.Type))
	}
}

func compact(raw []byte) string {
	s := strings.Join(strings.Fields(string(raw)), " ")
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode != inputNone {
		return m.handleInput(msg)
	}

	if m.showHelp {
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Help) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		if m.ws != nil {
			m.ws.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Project):
		return m.openInput(inputProject, "project id")

	case key.Matches(msg, m.keys.Task):
		return m.openInput(inputTask, "task id")

	case key.Matches(msg, m.keys.Leave):
		m.state = client.NewState()
		m.statusBar.Project = ""
		m.statusBar.Online = 0
		m.report(m.ws.Leave())
		return m, nil

	case key.Matches(msg, m.keys.Viewing):
		m.sendPresence(protocol.ActionViewing)
		return m, nil

	case key.Matches(msg, m.keys.Editing):
		m.sendPresence(protocol.ActionEditing)
		return m, nil

	case key.Matches(msg, m.keys.Idle):
		m.sendPresence(protocol.ActionIdle)
		return m, nil

	case key.Matches(msg, m.keys.Ping):
		m.report(m.ws.Ping())
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.log.ScrollUp(1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.log.ScrollDown(1)
		return m, nil
	}

	return m, nil
}

func (m Model) openInput(mode inputMode, placeholder string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	cmd := m.input.Focus()
	return m, cmd
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.mode = inputNone
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		text := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = inputNone
		m.input.Blur()
		if text == "" {
			return m, nil
		}
		value := protocol.ParseID(text)
		switch mode {
		case inputProject:
			m.state = client.NewState()
			m.statusBar.Project = value.String()
			m.statusBar.Online = 0
			m.log.Add(eventlog.KindConn, "switching to project "+value.String())
			m.report(m.ws.SetProject(value))
		case inputTask:
			m.task = value
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) sendPresence(action protocol.Action) {
	if m.task.IsZero() {
		m.log.Add(eventlog.KindErr, "select a task with t first")
		return
	}
	m.report(m.ws.SendPresence(m.task, action))
}

func (m *Model) report(err error) {
	if err != nil {
		m.log.Add(eventlog.KindErr, err.Error())
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.statusBar.View()}

	if !m.connected {
		sections = append(sections, m.renderDisconnected())
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	panels := lipgloss.JoinHorizontal(lipgloss.Top, m.renderUsers(), " ", m.renderPresence())
	sections = append(sections, panels)

	used := lipgloss.Height(lipgloss.JoinVertical(lipgloss.Left, sections...))
	sections = append(sections, m.log.View(m.width, m.height-used-2))

	if m.mode != inputNone {
		sections = append(sections, " "+m.input.View())
	} else {
		sections = append(sections, theme.StyleDimmed.Render("  p:project  t:task  v/e/i:presence  l:leave  r:ping  ?:help  q:quit"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	return lipgloss.NewStyle().
		Foreground(theme.ColorDanger).
		Bold(true).
		Padding(0, 1).
		Render(fmt.Sprintf("DISCONNECTED  Reconnecting every %s...", client.ReconnectDelay))
}

func (m Model) panelWidth() int {
	return max(m.width/2-3, 20)
}

func (m Model) renderUsers() string {
	lines := []string{theme.StyleHeader.Render(fmt.Sprintf("ONLINE (%d)", m.statusBar.Online))}
	users := m.state.OnlineUsers()
	if len(users) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  nobody here"))
	}
	for _, u := range users {
		name := u.Name
		if name == "" {
			name = u.ID.String()
		}
		line := "  " + name
		if u.ID.String() == m.statusBar.UserID {
			line += theme.StyleDimmed.Render(" (you)")
		}
		lines = append(lines, line)
	}
	return theme.StyleBorder.Width(m.panelWidth()).Render(strings.Join(lines, "\n"))
}

func (m Model) renderPresence() string {
	title := "PRESENCE"
	if !m.task.IsZero() {
		title += " · task " + m.task.String()
	}
	lines := []string{theme.StyleHeader.Render(title)}

	tasks := m.state.Tasks()
	if len(tasks) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  no activity on tasks"))
	}
	for _, taskID := range tasks {
		var who []string
		for _, p := range m.state.TaskPresence(taskID) {
			style := lipgloss.NewStyle().Foreground(theme.ActionColor(string(p.Action)))
			who = append(who, style.Render(theme.ActionGlyph(string(p.Action))+" "+p.UserName))
		}
		lines = append(lines, fmt.Sprintf("  #%s %s", taskID, strings.Join(who, " ")))
	}
	return theme.StyleBorder.Width(m.panelWidth()).Render(strings.Join(lines, "\n"))
}

func (m Model) renderHelp() string {
	width := max(m.width-4, 40)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return helpMarkdown
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		return helpMarkdown
	}
	return out
}
