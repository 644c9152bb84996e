package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/taskhub/realtime/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	UserID    string
	Project   string
	Online    int
	Latency   time.Duration
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Offline")
	}

	user := m.UserID
	if user == "" {
		user = "anonymous"
	}
	project := m.Project
	if project == "" {
		project = "none"
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep +
		"user " + user + sep +
		"project " + project + sep +
		fmt.Sprintf("%d online", m.Online)

	if m.Latency > 0 {
		ms := m.Latency.Milliseconds()
		content += sep + lipgloss.NewStyle().Foreground(theme.LatencyColor(ms)).Render(fmt.Sprintf("%dms", ms))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
