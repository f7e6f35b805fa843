package components

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serialflash/internal/tui/colors"
)

// DefaultMaxLines bounds the scrollback
const DefaultMaxLines = 5000

type textLine struct {
	ts   time.Time
	src  Source
	text []byte
}

// Terminal renders monitor output and console lines in a viewport. Text mode
// interprets CR, LF and strips ANSI escapes; hex mode dumps every chunk.
type Terminal struct {
	viewport  viewport.Model
	formatter *DataFormatter
	maxLines  int

	chunks []Chunk
	lines  []textLine
	open   bool // last line has no newline yet
	cr     bool // CR seen, next byte rewrites the line
	esc    int  // 0 none, 1 after ESC, 2 inside CSI
	follow bool
}

func NewTerminal(width, height int) *Terminal {
	return &Terminal{
		viewport:  viewport.New(width, height),
		formatter: NewDataFormatter(false, false),
		maxLines:  DefaultMaxLines,
		follow:    true,
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
	t.render()
}

func (t *Terminal) Width() int {
	return t.viewport.Width
}

// Append adds a chunk and scrolls to it when following
func (t *Terminal) Append(c Chunk) {
	if len(c.Data) == 0 {
		return
	}
	t.chunks = append(t.chunks, c)
	if len(t.chunks) > t.maxLines {
		t.chunks = t.chunks[len(t.chunks)-t.maxLines:]
	}
	t.feed(c)
	t.render()
}

func (t *Terminal) feed(c Chunk) {
	if t.open && t.lines[len(t.lines)-1].src != c.Source {
		t.open = false
		t.cr = false
		t.esc = 0
	}

	for _, b := range c.Data {
		switch {
		case t.esc == 1:
			t.esc = 0
			if b == '[' {
				t.esc = 2
			}
			continue
		case t.esc == 2:
			if b >= 0x40 && b <= 0x7e {
				t.esc = 0
			}
			continue
		}

		switch b {
		case 0x1b:
			t.esc = 1
		case '\n':
			if !t.open {
				t.newLine(c)
			}
			t.open = false
			t.cr = false
		case '\r':
			t.cr = true
		default:
			if b < 0x20 && b != '\t' {
				continue
			}
			if !t.open {
				t.newLine(c)
			} else if t.cr {
				last := &t.lines[len(t.lines)-1]
				last.text = last.text[:0]
				last.ts = c.Timestamp
			}
			t.cr = false
			last := &t.lines[len(t.lines)-1]
			last.text = append(last.text, b)
		}
	}
}

func (t *Terminal) newLine(c Chunk) {
	t.lines = append(t.lines, textLine{ts: c.Timestamp, src: c.Source})
	if len(t.lines) > t.maxLines {
		t.lines = t.lines[len(t.lines)-t.maxLines:]
	}
	t.open = true
}

// Lines returns the unstyled text lines
func (t *Terminal) Lines() []string {
	out := make([]string, len(t.lines))
	for i, l := range t.lines {
		out[i] = string(l.text)
	}
	return out
}

func (t *Terminal) render() {
	var rows []string
	if t.formatter.GetDisplayMode().ShowHex {
		rows = make([]string, len(t.chunks))
		for i, c := range t.chunks {
			rows[i] = t.formatter.FormatHex(c)
		}
	} else {
		rows = make([]string, len(t.lines))
		for i, l := range t.lines {
			rows[i] = t.formatter.Prefix(l.ts) + styleFor(l.src).Render(string(l.text))
		}
	}

	t.viewport.SetContent(strings.Join(rows, "\n"))
	if t.follow {
		t.viewport.GotoBottom()
	}
}

func styleFor(src Source) lipgloss.Style {
	switch src {
	case SourceTX:
		return lipgloss.NewStyle().Foreground(colors.Peach)
	case SourceConsole:
		return lipgloss.NewStyle().Foreground(colors.Mauve)
	default:
		return lipgloss.NewStyle()
	}
}

func (t *Terminal) Clear() {
	t.chunks = nil
	t.lines = nil
	t.open = false
	t.cr = false
	t.esc = 0
	t.viewport.SetContent("")
}

func (t *Terminal) ToggleHex() {
	t.formatter.ToggleHex()
	t.render()
}

func (t *Terminal) ToggleTimestamps() {
	t.formatter.ToggleTimestamps()
	t.render()
}

func (t *Terminal) GetDisplayMode() DisplayMode {
	return t.formatter.GetDisplayMode()
}

func (t *Terminal) ScrollUp() {
	t.viewport.LineUp(1)
	t.follow = t.viewport.AtBottom()
}

func (t *Terminal) ScrollDown() {
	t.viewport.LineDown(1)
	t.follow = t.viewport.AtBottom()
}

func (t *Terminal) GotoTop() {
	t.viewport.GotoTop()
	t.follow = t.viewport.AtBottom()
}

func (t *Terminal) GotoBottom() {
	t.viewport.GotoBottom()
	t.follow = true
}

func (t *Terminal) Update(msg tea.Msg) (viewport.Model, tea.Cmd) {
	// keys are handled by the screen; only sizing and mouse reach the viewport
	switch msg.(type) {
	case tea.WindowSizeMsg, tea.MouseMsg:
		var cmd tea.Cmd
		t.viewport, cmd = t.viewport.Update(msg)
		t.follow = t.viewport.AtBottom()
		return t.viewport, cmd
	default:
		return t.viewport, nil
	}
}

func (t *Terminal) View() string {
	return t.viewport.View()
}
