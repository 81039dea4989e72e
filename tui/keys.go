package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Lookup  key.Binding
	Confirm key.Binding
	Dismiss key.Binding
	Quit    key.Binding
}

var DefaultKeyMap = KeyMap{
	Lookup: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "look up"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("C-s", "confirm check-in"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "dismiss"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}

func (k KeyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Lookup, k.Confirm, k.Dismiss, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return joinDot(parts)
}
