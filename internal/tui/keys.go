package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keybindings for the dashboard.
type keyMap struct {
	// Navigation
	Up   key.Binding
	Down key.Binding

	// Actions
	Connect key.Binding
	Mark    key.Binding
	Reset   key.Binding

	// General
	Help key.Binding
	Quit key.Binding
}

// defaultKeyMap returns the default keybindings.
func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Connect: key.NewBinding(
			key.WithKeys("c", "enter"),
			key.WithHelp("c", "connect via popup"),
		),
		Mark: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mark connected"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset all"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.Mark, k.Reset, k.Help, k.Quit}
}

// FullHelp returns keybindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Connect, k.Mark, k.Reset},
		{k.Help, k.Quit},
	}
}
