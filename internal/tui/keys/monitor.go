package keys

import "github.com/charmbracelet/bubbles/key"

// MonitorKeys adds sending, link control and flashing to the terminal keys
type MonitorKeys struct {
	TerminalKeys
	Enter          key.Binding
	ToggleSendMode key.Binding
	Up             key.Binding
	Down           key.Binding
	GotoTop        key.Binding
	GotoBottom     key.Binding

	Connect     key.Binding
	Disconnect  key.Binding
	BaudUp      key.Binding
	BaudDown    key.Binding
	Flash       key.Binding
	ToggleErase key.Binding
	PickVersion key.Binding
}

func NewMonitorKeys() MonitorKeys {
	return MonitorKeys{
		TerminalKeys: NewTerminalKeys(),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		ToggleSendMode: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "ascii/hex"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		GotoTop: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "goto top"),
		),
		GotoBottom: key.NewBinding(
			key.WithKeys("G"),
			key.WithHelp("G", "goto bottom"),
		),
		Connect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "connect"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "disconnect"),
		),
		BaudUp: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "next baud"),
		),
		BaudDown: key.NewBinding(
			key.WithKeys("B"),
			key.WithHelp("B", "previous baud"),
		),
		Flash: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "flash firmware"),
		),
		ToggleErase: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "toggle erase"),
		),
		PickVersion: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "pick firmware"),
		),
	}
}

func (k MonitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.InsertMode, k.Flash, k.BaudUp, k.Quit}
}

func (k MonitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.InsertMode, k.Escape, k.Enter, k.ToggleSendMode},
		{k.Connect, k.Disconnect, k.BaudUp, k.BaudDown},
		{k.Flash, k.ToggleErase, k.PickVersion},
		{k.Clear, k.ToggleHex, k.ToggleTimestamps},
		{k.GotoTop, k.GotoBottom, k.Help, k.Quit},
	}
}
