package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serialflash/internal/session"
	"github.com/allbin/serialflash/internal/tui/colors"
	"github.com/allbin/serialflash/internal/tui/styles"
)

// StatusBar is the single line at the bottom of the monitor screen
type StatusBar struct {
	width    int
	snapshot session.Snapshot
	firmware string
	erase    bool
	busy     string
	err      error
}

func NewStatusBar() *StatusBar {
	return &StatusBar{}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetSnapshot(s session.Snapshot) {
	sb.snapshot = s
}

// SetFirmware sets the version that f would flash
func (sb *StatusBar) SetFirmware(version string, erase bool) {
	sb.firmware = version
	sb.erase = erase
}

// SetBusy marks an operation in flight; "" clears it
func (sb *StatusBar) SetBusy(op string) {
	sb.busy = op
}

func (sb *StatusBar) SetError(err error) {
	sb.err = err
}

func (sb *StatusBar) Error() error {
	return sb.err
}

// View renders mode, port, state, firmware, baud and clock
func (sb *StatusBar) View(inputMode, sendingMode, timestamp string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	modeBg := colors.Blue
	if inputMode == "INSERT" {
		modeBg = colors.Green
	}
	mode := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(modeBg).
		Bold(true).
		Padding(0, 1).
		Render(inputMode)

	path := sb.snapshot.Path
	if path == "" {
		path = "no port"
	}
	port := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(path)

	st := sb.snapshot.Mode
	state := styles.StateStyle(st).Render(styles.StateGlyph(st) + " " + st.String())
	if sb.err != nil {
		state = styles.ErrorStyle.Render("✗ " + st.String())
	}

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	left := []string{mode, port, state}
	if sb.busy != "" {
		left = append(left, styles.StatusBusyStyle.Padding(0, 1).Render(sb.busy+"..."))
	}
	if inputMode == "INSERT" {
		left = append(left, lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	details := "⚡ —"
	if sb.snapshot.BaudRate > 0 {
		details = fmt.Sprintf("⚡ %d baud", sb.snapshot.BaudRate)
	}
	if sb.firmware != "" {
		details += " · " + sb.firmware
		if sb.erase {
			details += " (erase)"
		}
	}
	detailView := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(details)

	clock := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(timestamp)

	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, detailView, divider, clock)

	spacerWidth := width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
