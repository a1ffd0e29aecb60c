package surfaceapp

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the surface's keyboard bindings. Scrolling is handled by
// the viewport's own bindings.
type KeyMap struct {
	Top  key.Binding
	Quit key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Top: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "top"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
