package presenterapp

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the presenter's keyboard bindings.
type KeyMap struct {
	Prev    key.Binding
	Next    key.Binding
	First   key.Binding
	Last    key.Binding
	Present key.Binding
	Share   key.Binding
	End     key.Binding
	Notices key.Binding
	Toggle  []key.Binding
	Enter   key.Binding
	Up      key.Binding
	Down    key.Binding
	Escape  key.Binding
	Quit    key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Prev: key.NewBinding(
			key.WithKeys("left", "h", "pgup"),
			key.WithHelp("←/h", "prev"),
		),
		Next: key.NewBinding(
			key.WithKeys("right", "l", "pgdown", " "),
			key.WithHelp("→/l", "next"),
		),
		First: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "first"),
		),
		Last: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "last"),
		),
		Present: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "present"),
		),
		Share: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "share link"),
		),
		End: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "end"),
		),
		Notices: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "notices"),
		),
		Toggle: []key.Binding{
			key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "reading")),
			key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "slide")),
			key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "aids")),
			key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "notes")),
		},
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "create link"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
