// Package eventlog provides the scrollable list of recent project activity.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/taskhub/realtime/internal/theme"
)

const maxEntries = 200

// Entry kinds.
const (
	KindTask = "task"
	KindUser = "user"
	KindConn = "conn"
	KindErr  = "err"
)

// Entry is a single log line.
type Entry struct {
	Time    time.Time
	Kind    string
	Message string
}

// Model holds the activity log.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset (from bottom)
}

func New() Model {
	return Model{}
}

// Add appends an entry and caps the buffer.
func (m *Model) Add(kind, message string) {
	m.Entries = append(m.Entries, Entry{
		Time:    time.Now(),
		Kind:    kind,
		Message: message,
	})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	limit := max(len(m.Entries)-1, 0)
	if m.Offset > limit {
		m.Offset = limit
	}
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

// View renders the newest entries that fit in height lines.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-3, 3)

	title := theme.StyleHeader.Render("RECENT ACTIVITY")
	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No activity yet.")
		return theme.StyleBorder.Width(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	end := max(len(m.Entries)-m.Offset, 0)
	start := max(end-visible, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(4).Render(e.Kind)
		msg := e.Message
		if room := innerW - 16; room > 3 && len(msg) > room {
			msg = msg[:room-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, kind, msg))
	}

	parts := []string{title, strings.Join(lines, "\n")}
	if m.Offset > 0 {
		parts = append(parts, theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset)))
	}
	return theme.StyleBorder.Width(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case KindTask:
		return theme.ColorUpdated
	case KindUser:
		return theme.ColorMember
	case KindConn:
		return theme.ColorWarning
	case KindErr:
		return theme.ColorDanger
	default:
		return theme.ColorDimmed
	}
}
