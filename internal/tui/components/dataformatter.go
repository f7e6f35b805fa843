package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serialflash/internal/tui/colors"
)

// Source tells where terminal bytes came from
type Source int

const (
	SourceRX      Source = iota // monitor output from the device
	SourceTX                    // data we sent
	SourceConsole               // session status lines
)

// Chunk is one write into the terminal
type Chunk struct {
	Timestamp time.Time
	Data      []byte
	Source    Source
	Status    string // TX only: "WRITTEN" or "ERROR"
}

type DisplayMode struct {
	ShowHex        bool
	ShowTimestamps bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showTimestamps bool) *DataFormatter {
	return &DataFormatter{
		mode: DisplayMode{
			ShowHex:        showHex,
			ShowTimestamps: showTimestamps,
		},
	}
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleTimestamps() {
	df.mode.ShowTimestamps = !df.mode.ShowTimestamps
}

// Prefix renders the timestamp column, or nothing when timestamps are off
func (df *DataFormatter) Prefix(ts time.Time) string {
	if !df.mode.ShowTimestamps {
		return ""
	}
	return lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Render(fmt.Sprintf("[%s] ", ts.Format("15:04:05.000")))
}

// Indicator is the styled direction marker of a chunk
func Indicator(c Chunk) string {
	switch c.Source {
	case SourceTX:
		color, text := colors.Peach, "↗ TX"
		switch c.Status {
		case "WRITTEN":
			color, text = colors.Green, "↗ TX ✓"
		case "ERROR":
			color, text = colors.Red, "↗ TX ✗"
		}
		return lipgloss.NewStyle().Foreground(color).Bold(true).Render(text)
	case SourceConsole:
		return lipgloss.NewStyle().Foreground(colors.Mauve).Bold(true).Render("● --")
	default:
		return lipgloss.NewStyle().Foreground(colors.Sky).Bold(true).Render("↙ RX")
	}
}

// FormatHex renders a chunk as one hex dump line
func (df *DataFormatter) FormatHex(c Chunk) string {
	return fmt.Sprintf("%s%s: HEX: % X  ASCII: %s", df.Prefix(c.Timestamp), Indicator(c), c.Data, Printable(c.Data))
}

// Printable replaces everything outside printable ASCII with dots
func Printable(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
