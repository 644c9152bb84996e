package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Project key.Binding
	Leave   key.Binding
	Task    key.Binding
	Viewing key.Binding
	Editing key.Binding
	Idle    key.Binding
	Ping    key.Binding
	Up      key.Binding
	Down    key.Binding
	Help    key.Binding
	Enter   key.Binding
	Escape  key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Project: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "switch project"),
		),
		Leave: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "leave project"),
		),
		Task: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "select task"),
		),
		Viewing: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "viewing"),
		),
		Editing: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "editing"),
		),
		Idle: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "idle"),
		),
		Ping: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "measure latency"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll log up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll log down"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel / close"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
