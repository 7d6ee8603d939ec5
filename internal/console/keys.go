package console

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the console's keyboard bindings. Printable keys always go
// to the input line, so every binding uses a non-printing key.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Send      key.Binding
	Close     key.Binding
	Reconnect key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "prev session"),
		),
		Down: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "next session"),
		),
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send line"),
		),
		Close: key.NewBinding(
			key.WithKeys("ctrl+w"),
			key.WithHelp("ctrl+w", "close session"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "reconnect"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

func (k KeyMap) help() string {
	var s string
	for i, b := range []key.Binding{k.Up, k.Down, k.Send, k.Close, k.Reconnect, k.Quit} {
		if i > 0 {
			s += "  "
		}
		h := b.Help()
		s += h.Key + ":" + h.Desc
	}
	return s
}
