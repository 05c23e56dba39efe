package keys

import "github.com/charmbracelet/bubbles/key"

// ATKeys drive the AT terminal. Typing happens in insert mode; the single
// letter bindings only apply in normal mode.
type ATKeys struct {
	Global

	InsertMode key.Binding
	Escape     key.Binding
	Enter      key.Binding
	Up         key.Binding
	Down       key.Binding

	ToggleSendMode key.Binding
	ToggleHex      key.Binding
	ToggleASCII    key.Binding
	Clear          key.Binding
}

func NewATKeys() ATKeys {
	return ATKeys{
		Global:         newGlobal(),
		InsertMode:     bind("i", "type a command", "i", "I"),
		Escape:         bind("esc", "normal mode", "esc"),
		Enter:          bind("enter", "send with CR", "enter"),
		Up:             bind("↑", "previous command", "up"),
		Down:           bind("↓", "next command", "down"),
		ToggleSendMode: bind("tab", "AT / hex input", "tab"),
		ToggleHex:      bind("h", "hex view", "h"),
		ToggleASCII:    bind("a", "ascii view", "a"),
		Clear:          bind("c", "clear log", "c"),
	}
}

func (k ATKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.InsertMode, k.Enter, k.Quit}
}

func (k ATKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.InsertMode, k.Escape, k.Enter},
		{k.Up, k.Down, k.ToggleSendMode},
		{k.ToggleHex, k.ToggleASCII, k.Clear},
		{k.Help, k.Quit},
	}
}
