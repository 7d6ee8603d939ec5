// Package console is the Bubble Tea front end. The program's update goroutine
// is the only goroutine that touches the driver: a periodic tick runs
// driver.Step and folds the results into the model.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agent-racer/tcpsess/internal/config"
	"github.com/agent-racer/tcpsess/internal/driver"
	"github.com/agent-racer/tcpsess/internal/registry"
	"github.com/agent-racer/tcpsess/internal/theme"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	listWidth       = 28
	shutdownTimeout = 3 * time.Second
)

type tickMsg time.Time

// Model is the root Bubble Tea model.
type Model struct {
	d   *driver.Driver
	cfg config.ConsoleConfig

	keys   KeyMap
	width  int
	height int

	sessions   []*registry.SessionInfo
	selectedID int
	scroll     map[int]*Scrollback

	input     textinput.Model
	statusBar statusBar
	lastErr   string
}

// New creates the root model. observer is shown in the status bar when set.
func New(d *driver.Driver, cfg config.ConsoleConfig, observer string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "type a line and press enter"
	ti.CharLimit = 4096
	ti.Focus()

	m := Model{
		d:          d,
		cfg:        cfg,
		keys:       DefaultKeyMap(),
		selectedID: -1,
		scroll:     make(map[int]*Scrollback),
		input:      ti,
		statusBar:  statusBar{Observer: observer},
	}
	m.refresh()
	return m
}

// Run starts the program and blocks until the user quits or ctx is done.
// Every session is closed before it returns.
func Run(ctx context.Context, d *driver.Driver, cfg config.ConsoleConfig, observer string) error {
	p := tea.NewProgram(New(d, cfg, observer), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.Shutdown(sctx)
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.tick())
}

func (m Model) tick() tea.Cmd {
	interval := m.cfg.TickInterval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.input.Width = msg.Width - listWidth - 6
		return m, nil

	case tickMsg:
		m.apply(m.d.Step(m.cfg.MaxMessagesPerTick))
		return m, m.tick()

	case tea.KeyMsg:
		if handled, cmd := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.d.CloseAll()
		return true, tea.Quit

	case key.Matches(msg, m.keys.Down):
		m.move(1)
		return true, nil

	case key.Matches(msg, m.keys.Up):
		m.move(-1)
		return true, nil

	case key.Matches(msg, m.keys.Send):
		text := m.input.Value()
		if text == "" || m.selectedID < 0 {
			return true, nil
		}
		if err := m.d.SendLine(m.selectedID, text); err != nil {
			m.lastErr = fmt.Sprintf("send to %d: %v", m.selectedID, err)
			return true, nil
		}
		m.lastErr = ""
		m.scrollback(m.selectedID).Push(line{kind: lineOut, text: text})
		m.input.Reset()
		return true, nil

	case key.Matches(msg, m.keys.Close):
		if m.selectedID >= 0 {
			m.report(m.d.Close(m.selectedID), "close")
		}
		return true, nil

	case key.Matches(msg, m.keys.Reconnect):
		if info := m.selected(); info != nil {
			if !info.IsTerminal() {
				m.lastErr = fmt.Sprintf("session %d is %s", info.ID, info.State)
				return true, nil
			}
			m.report(m.d.Reconnect(info.ID), "reconnect")
			m.refresh()
		}
		return true, nil
	}
	return false, nil
}

func (m *Model) report(err error, op string) {
	if err != nil {
		m.lastErr = fmt.Sprintf("%s %d: %v", op, m.selectedID, err)
		return
	}
	m.lastErr = ""
}

// apply folds driver updates into the scrollback and session list.
func (m *Model) apply(updates []driver.Update) {
	if len(updates) == 0 {
		return
	}
	for _, u := range updates {
		sb := m.scrollback(u.ID)
		switch u.Kind {
		case driver.UpdateMessage:
			sb.Push(line{kind: lineIn, text: string(u.Data)})
		case driver.UpdateStarted:
			sb.Push(line{kind: lineNotice, text: "connected to " + u.Info.Addr})
		case driver.UpdateEnded:
			if u.Err != nil {
				sb.Push(line{kind: lineNotice, text: "ended: " + u.Err.Error()})
			} else {
				sb.Push(line{kind: lineNotice, text: "ended"})
			}
		case driver.UpdateFailed:
			sb.Push(line{kind: lineNotice, text: fmt.Sprintf("connect failed: %v", u.Err)})
		}
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.sessions = m.d.Sessions()
	m.statusBar.SetCounts(m.sessions)
	if m.selected() == nil && len(m.sessions) > 0 {
		m.selectedID = m.sessions[0].ID
	}
}

func (m *Model) scrollback(id int) *Scrollback {
	sb, ok := m.scroll[id]
	if !ok {
		sb = NewScrollback(m.cfg.Scrollback)
		m.scroll[id] = sb
	}
	return sb
}

func (m Model) selected() *registry.SessionInfo {
	for _, s := range m.sessions {
		if s.ID == m.selectedID {
			return s
		}
	}
	return nil
}

func (m *Model) move(delta int) {
	if len(m.sessions) == 0 {
		return
	}
	idx := 0
	for i, s := range m.sessions {
		if s.ID == m.selectedID {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(m.sessions)) % len(m.sessions)
	m.selectedID = m.sessions[idx].ID
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// status bar (3), input (1), error (1), help (1), pane borders (2)
	paneHeight := m.height - 8
	if paneHeight < 3 {
		paneHeight = 3
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.StyleBorder.Width(listWidth).Height(paneHeight).Render(m.renderList()),
		theme.StyleBorder.Width(m.width-listWidth-4).Height(paneHeight).Render(m.renderScrollback(paneHeight)),
	)

	errLine := ""
	if m.lastErr != "" {
		errLine = theme.StyleError.Render(m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		m.input.View(),
		errLine,
		theme.StyleDimmed.Render("  "+m.keys.help()),
	)
}

func (m Model) renderList() string {
	if len(m.sessions) == 0 {
		return theme.StyleDimmed.Render("No sessions")
	}
	lines := []string{theme.StyleHeader.Render("SESSIONS")}
	for _, s := range m.sessions {
		prefix := "  "
		if s.ID == m.selectedID {
			prefix = "> "
		}
		state := s.State.String()
		glyph := lipgloss.NewStyle().Foreground(theme.StateColor(state)).Render(theme.StateGlyph(state))
		name := displayName(s, listWidth-8)
		if s.ID == m.selectedID {
			name = theme.StyleSelected.Render(name)
		}
		lines = append(lines, fmt.Sprintf("%s%s %d %s", prefix, glyph, s.ID, name))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderScrollback(height int) string {
	info := m.selected()
	if info == nil {
		return theme.StyleDimmed.Render("Select a session")
	}
	header := theme.StyleHeader.Render(fmt.Sprintf("%s  %s", displayName(info, 32), info.Addr))

	sb, ok := m.scroll[info.ID]
	if !ok {
		return header
	}
	rendered := []string{header}
	for _, l := range sb.Tail(height - 1) {
		rendered = append(rendered, renderLine(l))
	}
	return strings.Join(rendered, "\n")
}

func renderLine(l line) string {
	switch l.kind {
	case lineOut:
		return lipgloss.NewStyle().Foreground(theme.ColorOutbound).Render("> " + l.text)
	case lineNotice:
		return lipgloss.NewStyle().Foreground(theme.ColorNotice).Render("* " + l.text)
	default:
		return lipgloss.NewStyle().Foreground(theme.ColorInbound).Render(l.text)
	}
}

// displayName returns the best display name for a session, truncated to
// maxLen characters.
func displayName(s *registry.SessionInfo, maxLen int) string {
	name := s.Name
	if name == "" {
		name = s.Addr
	}
	if len(name) > maxLen {
		name = name[:maxLen-1] + "…"
	}
	return name
}
