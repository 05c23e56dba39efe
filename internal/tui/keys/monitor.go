package keys

import "github.com/charmbracelet/bubbles/key"

// MonitorKeys drive the flow-control monitor.
type MonitorKeys struct {
	Global

	Pause  key.Binding
	Faster key.Binding
	Slower key.Binding

	Burst     key.Binding
	ToggleCTS key.Binding
	NextPort  key.Binding
}

func NewMonitorKeys() MonitorKeys {
	return MonitorKeys{
		Global:    newGlobal(),
		Pause:     bind("space", "pause reader", " ", "p"),
		Faster:    bind("+", "read faster", "+", "="),
		Slower:    bind("-", "read slower", "-"),
		Burst:     bind("b", "modem burst past RTS", "b"),
		ToggleCTS: bind("c", "toggle modem CTS", "c"),
		NextPort:  bind("tab", "next port", "tab"),
	}
}

func (k MonitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Pause, k.Burst, k.Quit}
}

func (k MonitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Faster, k.Slower},
		{k.Burst, k.ToggleCTS, k.NextPort},
		{k.Help, k.Quit},
	}
}
