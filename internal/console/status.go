package console

import (
	"fmt"

	"github.com/agent-racer/tcpsess/internal/registry"
	"github.com/agent-racer/tcpsess/internal/theme"
	"github.com/charmbracelet/lipgloss"
)

// statusBar summarises session states across the top of the screen.
type statusBar struct {
	Width      int
	Connecting int
	Active     int
	Ended      int
	Failed     int
	Observer   string
}

func (m *statusBar) SetCounts(sessions []*registry.SessionInfo) {
	m.Connecting, m.Active, m.Ended, m.Failed = 0, 0, 0, 0
	for _, s := range sessions {
		switch s.State {
		case registry.Connecting:
			m.Connecting++
		case registry.Active:
			m.Active++
		case registry.Ended:
			m.Ended++
		case registry.Failed:
			m.Failed++
		}
	}
}

func (m statusBar) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var live string
	if m.Active > 0 {
		live = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render(fmt.Sprintf("● %d active", m.Active))
	} else {
		live = lipgloss.NewStyle().Foreground(theme.ColorDimmed).Render("○ no active sessions")
	}

	counts := fmt.Sprintf("%d connecting  %d ended  %d failed", m.Connecting, m.Ended, m.Failed)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := live + sep + counts
	if m.Observer != "" {
		content += sep + "observer " + m.Observer
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
