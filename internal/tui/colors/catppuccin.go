// Package colors is the Catppuccin Mocha subset used by the monitor screen.
package colors

import "github.com/charmbracelet/lipgloss"

var (
	Base     = lipgloss.Color("#1e1e2e") // status bar text on accents
	Surface0 = lipgloss.Color("#313244") // bars
	Surface1 = lipgloss.Color("#45475a")
	Surface2 = lipgloss.Color("#585b70") // borders
	Overlay0 = lipgloss.Color("#6c7086") // hints
	Subtext0 = lipgloss.Color("#a6adc8") // timestamps
	Subtext1 = lipgloss.Color("#bac2de")
	Text     = lipgloss.Color("#cdd6f4")

	Blue   = lipgloss.Color("#89b4fa") // NORMAL
	Sky    = lipgloss.Color("#89dceb") // RX
	Green  = lipgloss.Color("#a6e3a1") // INSERT, monitor active
	Yellow = lipgloss.Color("#f9e2af") // transitions
	Peach  = lipgloss.Color("#fab387") // TX, flashing
	Red    = lipgloss.Color("#f38ba8") // errors
	Mauve  = lipgloss.Color("#cba6f7") // port path, console
)
