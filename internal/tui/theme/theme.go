// Package theme provides the Lip Gloss color palette and reusable styles
// for the minebot TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Session status colors.
var (
	ColorOnline     = lipgloss.Color("#22c55e")
	ColorConnecting = lipgloss.Color("#d97706")
	ColorOffline    = lipgloss.Color("#6b7280")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// Event kind colors.
var (
	ColorChat      = lipgloss.Color("#3b82f6")
	ColorHeartbeat = lipgloss.Color("#06b6d4")
	ColorRetry     = lipgloss.Color("#a855f7")
	ColorErrored   = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the Lip Gloss color for a session status string.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "online":
		return ColorOnline
	case "connecting":
		return ColorConnecting
	case "offline":
		return ColorOffline
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph representing a session status.
func StatusGlyph(status string) string {
	switch status {
	case "online":
		return "●"
	case "connecting":
		return "◎"
	case "offline":
		return "○"
	default:
		return "·"
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

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
