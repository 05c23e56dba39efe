// Package keys holds the key maps of the cellport TUIs.
package keys

import "github.com/charmbracelet/bubbles/key"

// Global bindings every cellport TUI understands.
type Global struct {
	Quit key.Binding
	Help key.Binding
}

func newGlobal() Global {
	return Global{
		Quit: bind("q/ctrl+c", "quit", "q", "Q", "ctrl+c"),
		Help: bind("?", "toggle help", "?"),
	}
}

func bind(helpKey, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(helpKey, desc))
}
