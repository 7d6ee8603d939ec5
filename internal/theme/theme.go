// Package theme provides the Lip Gloss color palette and reusable styles
// for the tcpsess console. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Session state colors.
var (
	ColorConnecting = lipgloss.Color("#7c3aed")
	ColorActive     = lipgloss.Color("#22c55e")
	ColorEnded      = lipgloss.Color("#4b5563")
	ColorFailed     = lipgloss.Color("#dc2626")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// Scrollback line colors.
var (
	ColorInbound  = lipgloss.Color("#f9fafb")
	ColorOutbound = lipgloss.Color("#06b6d4")
	ColorNotice   = lipgloss.Color("#d97706")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a session state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "connecting":
		return ColorConnecting
	case "active":
		return ColorActive
	case "ended":
		return ColorEnded
	case "failed":
		return ColorFailed
	default:
		return ColorDefault
	}
}

// StateGlyph returns a Unicode glyph representing a session state.
func StateGlyph(state string) string {
	switch state {
	case "connecting":
		return "◎"
	case "active":
		return "●"
	case "ended":
		return "○"
	case "failed":
		return "✗"
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
