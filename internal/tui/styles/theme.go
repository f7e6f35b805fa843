package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serialflash/internal/session"
	"github.com/allbin/serialflash/internal/tui/colors"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusConnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StatusDisconnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StatusBusyStyle = lipgloss.NewStyle().
			Foreground(colors.Yellow).
			Bold(true)

	StatusFlashingStyle = lipgloss.NewStyle().
				Foreground(colors.Peach).
				Bold(true)

	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 1)

	// console lines between monitor output
	ConsoleStyle = lipgloss.NewStyle().
			Foreground(colors.Mauve)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)
)

// StateStyle colours a session state for the status bar
func StateStyle(st session.State) lipgloss.Style {
	switch st {
	case session.MonitorActive:
		return StatusConnectedStyle
	case session.Connecting, session.Suspended, session.Restoring, session.Disconnecting:
		return StatusBusyStyle
	case session.Flashing:
		return StatusFlashingStyle
	default:
		return StatusDisconnectedStyle
	}
}

// StateGlyph is the one character connection indicator
func StateGlyph(st session.State) string {
	switch st {
	case session.MonitorActive:
		return "●"
	case session.Flashing:
		return "⚡"
	case session.Disconnected:
		return "○"
	default:
		return "◌"
	}
}
