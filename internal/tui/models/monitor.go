// Package models holds the bubbletea screens.
package models

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serialflash/internal/catalog"
	"github.com/allbin/serialflash/internal/flash"
	"github.com/allbin/serialflash/internal/session"
	"github.com/allbin/serialflash/internal/tui/components"
	"github.com/allbin/serialflash/internal/tui/keys"
	"github.com/allbin/serialflash/internal/tui/styles"
)

// BaudRates is the cycle of the baud keys
var BaudRates = []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// InputMode is the vim-like input state
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
	InputModePick
)

func (m InputMode) String() string {
	switch m {
	case InputModeInsert:
		return "INSERT"
	case InputModePick:
		return "PICK"
	default:
		return "NORMAL"
	}
}

// Controller is the session surface the monitor drives
type Controller interface {
	Connect(ctx context.Context, baud int) error
	Disconnect(ctx context.Context)
	ChangeBaudRate(ctx context.Context, rate int) error
	SendData(ctx context.Context, data []byte) error
	StartFlashing(ctx context.Context, v flash.Version, erase bool, flashBaud int) error
	Snapshot() session.Snapshot
}

var _ Controller = (*session.Session)(nil)

// OutputMsg carries bytes written to one of the session sinks
type OutputMsg struct {
	Chunk components.Chunk
}

// OpDoneMsg reports the end of a session operation
type OpDoneMsg struct {
	Op  string
	Err error
}

type tickMsg time.Time

// Sink forwards writes into the program as OutputMsgs. Writes before Attach
// are dropped.
type Sink struct {
	mu     sync.Mutex
	send   func(tea.Msg)
	source components.Source
}

func NewSink(source components.Source) *Sink {
	return &Sink{source: source}
}

// Attach sets the program's Send. Session operations must never run inside
// Update, or Send blocks the event loop it is waiting for.
func (s *Sink) Attach(send func(tea.Msg)) {
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()
}

func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	send := s.send
	s.mu.Unlock()

	if send != nil && len(p) > 0 {
		data := make([]byte, len(p))
		copy(data, p)
		send(OutputMsg{Chunk: components.Chunk{Timestamp: time.Now(), Data: data, Source: s.source}})
	}
	return len(p), nil
}

// Options configures the monitor screen
type Options struct {
	Baud        int
	FlashBaud   int
	Erase       bool
	Version     *flash.Version // preselected firmware, may be nil
	Entries     []catalog.Entry
	AutoConnect bool
}

// Monitor is the serial monitor screen
type Monitor struct {
	ctl  Controller
	ctx  context.Context
	opts Options

	terminal *components.Terminal
	status   *components.StatusBar
	input    *components.Input
	picker   *components.VersionTable
	help     help.Model
	keys     keys.MonitorKeys

	mode    InputMode
	busy    string
	baud    int
	erase   bool
	version *flash.Version
	ready   bool
	width   int
	height  int
	now     func() time.Time
}

func NewMonitor(ctx context.Context, ctl Controller, opts Options) *Monitor {
	if opts.Baud == 0 {
		opts.Baud = 115200
	}
	if opts.FlashBaud == 0 {
		opts.FlashBaud = 921600
	}

	m := &Monitor{
		ctl:      ctl,
		ctx:      ctx,
		opts:     opts,
		terminal: components.NewTerminal(0, 0),
		status:   components.NewStatusBar(),
		input:    components.NewInput(),
		help:     help.New(),
		keys:     keys.NewMonitorKeys(),
		baud:     opts.Baud,
		erase:    opts.Erase,
		version:  opts.Version,
		now:      time.Now,
	}
	if len(opts.Entries) > 0 {
		m.picker = components.NewVersionTable(opts.Entries, 80, 10)
		if opts.Version != nil {
			m.picker.Select(*opts.Version)
		}
	}
	m.updateFirmware()
	m.status.SetSnapshot(ctl.Snapshot())
	return m
}

func (m *Monitor) Init() tea.Cmd {
	if m.opts.AutoConnect {
		return tea.Batch(tick(), m.connect())
	}
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// run starts a session operation outside the event loop. Only one runs at a
// time; the session would serialise them anyway, this keeps the UI honest.
func (m *Monitor) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	if m.busy != "" {
		m.note("Busy: %s in progress.", m.busy)
		return nil
	}
	m.busy = op
	m.status.SetBusy(op)
	ctx := m.ctx
	return func() tea.Msg {
		return OpDoneMsg{Op: op, Err: fn(ctx)}
	}
}

// note writes a local console line
func (m *Monitor) note(format string, args ...any) {
	m.terminal.Append(components.Chunk{
		Timestamp: m.now(),
		Data:      []byte(fmt.Sprintf(format, args...) + "\n"),
		Source:    components.SourceConsole,
	})
}

func (m *Monitor) updateFirmware() {
	if m.version == nil {
		m.status.SetFirmware("", m.erase)
		return
	}
	m.status.SetFirmware(m.version.String(), m.erase)
}

func (m *Monitor) connect() tea.Cmd {
	baud := m.baud
	return m.run("connect", func(ctx context.Context) error {
		return m.ctl.Connect(ctx, baud)
	})
}

// cycleBaud moves dir steps through BaudRates from the current rate
func (m *Monitor) cycleBaud(dir int) tea.Cmd {
	snap := m.ctl.Snapshot()
	current := m.baud
	if snap.BaudRate > 0 {
		current = snap.BaudRate
	}

	idx := -1
	for i, r := range BaudRates {
		if r == current {
			idx = i
			break
		}
	}
	next := BaudRates[(idx+dir+len(BaudRates))%len(BaudRates)]
	if idx == -1 && dir < 0 {
		next = BaudRates[len(BaudRates)-1]
	}
	m.baud = next

	if snap.Mode != session.MonitorActive {
		m.note("Baud rate set to %d for the next connect.", next)
		return nil
	}
	return m.run("baud", func(ctx context.Context) error {
		return m.ctl.ChangeBaudRate(ctx, next)
	})
}

func (m *Monitor) startFlash() tea.Cmd {
	if m.version == nil {
		if m.picker != nil {
			m.note("No firmware selected. Press v to pick one.")
		} else {
			m.note("No firmware selected.")
		}
		return nil
	}
	v, erase, flashBaud := *m.version, m.erase, m.opts.FlashBaud
	return m.run("flash", func(ctx context.Context) error {
		return m.ctl.StartFlashing(ctx, v, erase, flashBaud)
	})
}

func (m *Monitor) send() tea.Cmd {
	data, err := m.input.Payload()
	if err != nil {
		if !errors.Is(err, components.ErrEmptyInput) {
			m.note("Invalid input: %v", err)
		}
		return nil
	}

	m.terminal.Append(components.Chunk{Timestamp: m.now(), Data: data, Source: components.SourceTX})
	m.input.AddToHistory(m.input.Value())
	m.input.SetValue("")

	ctx := m.ctx
	return func() tea.Msg {
		return OpDoneMsg{Op: "send", Err: m.ctl.SendData(ctx, data)}
	}
}

func (m *Monitor) layout() {
	if m.width == 0 {
		return
	}
	m.help.Width = m.width
	helpHeight := lipgloss.Height(m.help.View(m.keys))
	// content border(1) + input(3) + status(1)
	height := m.height - helpHeight - 5
	if height < 1 {
		height = 1
	}

	m.terminal.SetSize(m.width, height)
	m.input.SetWidth(m.width)
	m.status.SetWidth(m.width)
	if m.picker != nil {
		m.picker.SetSize(m.width, height)
	}
}

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case OutputMsg:
		m.terminal.Append(msg.Chunk)
		return m, nil

	case tickMsg:
		m.status.SetSnapshot(m.ctl.Snapshot())
		return m, tick()

	case OpDoneMsg:
		if msg.Op != "send" {
			m.busy = ""
			m.status.SetBusy("")
		}
		m.status.SetError(msg.Err)
		m.status.SetSnapshot(m.ctl.Snapshot())
		return m, nil

	case tea.MouseMsg:
		_, cmd := m.terminal.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.mode {
		case InputModeInsert:
			return m, m.updateInsert(msg)
		case InputModePick:
			return m, m.updatePick(msg)
		default:
			return m, m.updateNormal(msg)
		}
	}
	return m, nil
}

func (m *Monitor) updateNormal(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.InsertMode):
		m.mode = InputModeInsert
		m.input.Focus()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
	case key.Matches(msg, m.keys.Clear):
		m.terminal.Clear()
	case key.Matches(msg, m.keys.ToggleHex):
		m.terminal.ToggleHex()
	case key.Matches(msg, m.keys.ToggleTimestamps):
		m.terminal.ToggleTimestamps()
	case key.Matches(msg, m.keys.Up):
		m.terminal.ScrollUp()
	case key.Matches(msg, m.keys.Down):
		m.terminal.ScrollDown()
	case key.Matches(msg, m.keys.GotoTop):
		m.terminal.GotoTop()
	case key.Matches(msg, m.keys.GotoBottom):
		m.terminal.GotoBottom()
	case key.Matches(msg, m.keys.ToggleSendMode):
		m.input.ToggleSendingMode()
	case key.Matches(msg, m.keys.Connect):
		return m.connect()
	case key.Matches(msg, m.keys.Disconnect):
		return m.run("disconnect", func(ctx context.Context) error {
			m.ctl.Disconnect(ctx)
			return nil
		})
	case key.Matches(msg, m.keys.BaudUp):
		return m.cycleBaud(1)
	case key.Matches(msg, m.keys.BaudDown):
		return m.cycleBaud(-1)
	case key.Matches(msg, m.keys.Flash):
		return m.startFlash()
	case key.Matches(msg, m.keys.ToggleErase):
		m.erase = !m.erase
		m.updateFirmware()
	case key.Matches(msg, m.keys.PickVersion):
		if m.picker == nil {
			m.note("No firmware catalog loaded.")
			return nil
		}
		m.mode = InputModePick
	}
	return nil
}

func (m *Monitor) updateInsert(msg tea.KeyMsg) tea.Cmd {
	// arrows only; j and k are text here
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.mode = InputModeNormal
		m.input.Blur()
		return nil
	case key.Matches(msg, m.keys.Enter):
		return m.send()
	case msg.Type == tea.KeyUp:
		m.input.NavigateHistoryUp()
		return nil
	case msg.Type == tea.KeyDown:
		m.input.NavigateHistoryDown()
		return nil
	case key.Matches(msg, m.keys.ToggleSendMode):
		m.input.ToggleSendingMode()
		return nil
	case msg.Type == tea.KeyCtrlC:
		return tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Monitor) updatePick(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.mode = InputModeNormal
		return nil
	case key.Matches(msg, m.keys.Enter):
		if v, ok := m.picker.Selected(); ok {
			m.version = &v
			m.updateFirmware()
			m.note("Selected firmware %s.", v.String())
		}
		m.mode = InputModeNormal
		return nil
	case msg.Type == tea.KeyCtrlC:
		return tea.Quit
	}
	return m.picker.Update(msg)
}

func (m *Monitor) View() string {
	if !m.ready {
		return "Initializing..."
	}

	content := m.terminal.View()
	if m.mode == InputModePick {
		content = m.picker.View()
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		styles.ContentBorderStyle.Render(content),
		m.input.ViewWithMode(m.mode == InputModeInsert),
		m.status.View(m.mode.String(), m.input.GetSendingMode().String(), m.now().Format("15:04:05")),
		m.help.View(m.keys),
	)
}
