// Package theme provides the Lip Gloss color palette and reusable styles
// for the taskhub TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Presence colors.
var (
	ColorViewing = lipgloss.Color("#3b82f6")
	ColorEditing = lipgloss.Color("#d97706")
	ColorIdle    = lipgloss.Color("#4b5563")
)

// Event colors.
var (
	ColorCreated = lipgloss.Color("#22c55e")
	ColorUpdated = lipgloss.Color("#06b6d4")
	ColorDeleted = lipgloss.Color("#dc2626")
	ColorMember  = lipgloss.Color("#a855f7")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// ActionColor returns the color for a presence action.
func ActionColor(action string) lipgloss.Color {
	switch action {
	case "viewing":
		return ColorViewing
	case "editing":
		return ColorEditing
	case "idle":
		return ColorIdle
	default:
		return ColorDefault
	}
}

// ActionGlyph returns a Unicode glyph for a presence action.
func ActionGlyph(action string) string {
	switch action {
	case "viewing":
		return "◉"
	case "editing":
		return "✎"
	case "idle":
		return "○"
	default:
		return "·"
	}
}

// LatencyColor grades a round trip in milliseconds.
func LatencyColor(ms int64) lipgloss.Color {
	switch {
	case ms > 500:
		return ColorDanger
	case ms > 150:
		return ColorWarning
	default:
		return ColorHealthy
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
