// Package session owns the lifecycle of one serial link that alternates
// between a passive monitor and an exclusive flashing session.
//
// Every operation that changes the link is serialised by the Session; the read
// loop is the only background reader and is always stopped before the port
// changes owner. Snapshot, PortInfo and the early checks of SendData do not
// wait for a running operation, so a UI can keep rendering while flashing.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	serial "github.com/allbin/serialflash"
	"github.com/allbin/serialflash/internal/flash"
	"github.com/allbin/serialflash/internal/readloop"
	"github.com/allbin/serialflash/internal/tracer"
)

var ErrNoFlasher = errors.New("no flasher configured")

// Device is the serial handle a Session drives
type Device interface {
	readloop.Source
	flash.SignalSetter

	Path() string
	Open(baud int) error
	Close() error
	IsOpen() bool
	Writable() bool
	AcquireWriter() (serial.LockedWriter, error)
	Info() (*serial.PortInfo, error)
}

var _ Device = (*serial.Handle)(nil)

// Selector picks the device to connect to when none is cached
type Selector interface {
	Select(ctx context.Context) (Device, error)
}

type SelectorFunc func(ctx context.Context) (Device, error)

func (f SelectorFunc) Select(ctx context.Context) (Device, error) { return f(ctx) }

// PathSelector selects a handle on a fixed device path
func PathSelector(path string, opts ...serial.Option) Selector {
	return SelectorFunc(func(context.Context) (Device, error) {
		if path == "" {
			return nil, ErrNoDevice
		}
		return serial.NewHandle(path, opts...), nil
	})
}

// Flasher runs the protocol half of flashing against a closed port
type Flasher interface {
	Flash(ctx context.Context, fs *flash.Session, path string) error
}

// Timing holds the settle and reset delays
type Timing struct {
	ConnectSettle time.Duration // connect to monitor start; 0 starts inline
	ReadSettle    time.Duration
	Reset         flash.ResetTiming
}

func DefaultTiming() Timing {
	return Timing{
		ConnectSettle: 200 * time.Millisecond,
		ReadSettle:    readloop.DefaultReadSettle,
		Reset:         flash.DefaultResetTiming(),
	}
}

// Snapshot is a copy of the session state
type Snapshot struct {
	Mode           State
	BaudRate       int
	Path           string
	ReadLoopActive bool
}

// PortInfo describes the connected device. USB ids are zero for non-USB ports.
type PortInfo struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	BaudRate  int
}

// Option configures a Session
type Option func(*Session)

func WithSelector(sel Selector) Option {
	return func(s *Session) { s.selector = sel }
}

// WithDevice pre-selects the device, skipping the selector on first connect
func WithDevice(dev Device) Option {
	return func(s *Session) { s.device = dev }
}

func WithFlasher(f Flasher) Option {
	return func(s *Session) { s.flasher = f }
}

// WithDisplay sets the monitor output sink. It is written from the read loop
// goroutine.
func WithDisplay(w io.Writer) Option {
	return func(s *Session) { s.display = w }
}

// WithConsole sets the line oriented status sink
func WithConsole(w io.Writer) Option {
	return func(s *Session) { s.console = w }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTiming(t Timing) Option {
	return func(s *Session) { s.timing = t }
}

// WithSleeper replaces the timer used for settle and reset delays
func WithSleeper(sleep flash.Sleeper) Option {
	return func(s *Session) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// Session is the state machine around one device
type Session struct {
	mu sync.Mutex

	// written under mu, readable without it
	state atomic.Int32
	baud  atomic.Int64
	path  atomic.String

	device   Device
	selector Selector
	flasher  Flasher
	loop     *readloop.Controller

	display io.Writer
	console io.Writer
	logger  *slog.Logger
	timing  Timing
	sleep   flash.Sleeper

	// deferred monitor start after connect
	afterFunc func(d time.Duration, f func()) (stop func() bool)
	pending   func() bool
	gen       uint64

	infoMu sync.Mutex
	info   *PortInfo

	present func(path string) bool
}

// New creates a disconnected session
func New(opts ...Option) *Session {
	s := &Session{
		display: io.Discard,
		console: io.Discard,
		logger:  slog.Default(),
		timing:  DefaultTiming(),
		sleep:   flash.SleepContext,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		present: func(path string) bool {
			_, err := os.Stat(path)
			return !errors.Is(err, os.ErrNotExist)
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.loop = readloop.New(s.display,
		readloop.WithReadSettle(s.timing.ReadSettle),
		readloop.WithLogger(s.logger),
		readloop.WithSleep(func(d time.Duration) { _ = s.sleep(context.Background(), d) }),
	)
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	if old := s.State(); old != st {
		s.logger.Debug("session state", "from", old.String(), "to", st.String())
	}
	s.state.Store(int32(st))
}

// say writes one console line
func (s *Session) say(format string, args ...any) {
	fmt.Fprintf(s.console, format+"\n", args...)
}

// Snapshot copies the current state without waiting for a running operation
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Mode:           s.State(),
		BaudRate:       int(s.baud.Load()),
		Path:           s.path.Load(),
		ReadLoopActive: s.loop.Active(),
	}
}

// PortInfo describes the connected device; ok is false when there is none
func (s *Session) PortInfo() (PortInfo, bool) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	if s.info == nil {
		return PortInfo{}, false
	}
	info := *s.info
	info.BaudRate = int(s.baud.Load())
	return info, true
}

func (s *Session) setInfo(dev Device) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()

	if dev == nil {
		s.info = nil
		return
	}
	info := &PortInfo{Path: dev.Path()}
	if pi, err := dev.Info(); err == nil {
		info.VendorID, info.ProductID, _ = pi.USBIDs()
	} else {
		s.logger.Debug("port info unavailable", "path", dev.Path(), "error", err)
	}
	s.info = info
}

// Connect selects and opens the device at baud and schedules the monitor.
// It is only legal when disconnected.
func (s *Session) Connect(ctx context.Context, baud int) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != Disconnected {
		return fmt.Errorf("connect in state %s: %w", st, ErrInvalidState)
	}

	ctx, span := tracer.StartSpan(ctx, "session.connect", trace.WithAttributes(tracer.IntAttr("baud", baud)))
	defer func() { tracer.End(span, err) }()

	s.setState(Connecting)

	dev := s.device
	if dev == nil {
		if s.selector == nil {
			return s.connectFailed("", ErrNoDevice)
		}
		dev, err = s.selector.Select(ctx)
		if err != nil {
			return s.connectFailed("", err)
		}
		s.device = dev
	}

	if dev.IsOpen() {
		if cerr := dev.Close(); cerr != nil {
			s.logger.Warn("close stale port", "path", dev.Path(), "error", cerr)
		}
	}
	if oerr := dev.Open(baud); oerr != nil {
		return s.connectFailed(dev.Path(), oerr)
	}

	s.baud.Store(int64(baud))
	s.path.Store(dev.Path())
	s.setInfo(dev)
	s.setState(MonitorActive)

	s.logger.Info("connected", "path", dev.Path(), "baud", baud)
	s.say("Connected to %s at %d baud.", dev.Path(), baud)

	s.scheduleMonitor()
	return nil
}

func (s *Session) connectFailed(path string, cause error) error {
	s.setState(Disconnected)
	err := &ConnectionError{Path: path, Cause: cause}
	s.logger.Error("connect failed", "error", err)
	s.say("Connection failed: %v", cause)
	return err
}

// scheduleMonitor starts the read loop after ConnectSettle
func (s *Session) scheduleMonitor() {
	s.cancelScheduled()

	if s.timing.ConnectSettle <= 0 {
		s.startMonitor()
		return
	}

	gen := s.gen
	s.pending = s.afterFunc(s.timing.ConnectSettle, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if gen != s.gen || s.pending == nil || s.State() != MonitorActive {
			return
		}
		s.pending = nil
		s.startMonitor()
	})
}

// cancelScheduled drops a pending monitor start. A callback already waiting
// on mu sees the generation change and does nothing.
func (s *Session) cancelScheduled() {
	if s.pending != nil {
		s.pending()
		s.pending = nil
	}
	s.gen++
}

func (s *Session) startMonitor() {
	if err := s.loop.Start(s.device); err != nil {
		s.logger.Warn("monitor not started", "error", err)
	}
}

// Disconnect stops the monitor and closes the device. It always ends in
// Disconnected; failures are logged and reported on the console only.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect()
}

func (s *Session) disconnect() {
	if s.State() == Disconnected {
		s.device = nil
		s.path.Store("")
		s.setInfo(nil)
		return
	}

	s.setState(Disconnecting)
	s.cancelScheduled()
	s.loop.Stop()

	if s.device != nil && s.device.IsOpen() {
		if err := s.device.Close(); err != nil {
			s.logger.Error("disconnect", "path", s.device.Path(), "error", err)
			s.say("Error while disconnecting: %v", err)
		}
	}

	s.device = nil
	s.baud.Store(0)
	s.path.Store("")
	s.setInfo(nil)
	s.setState(Disconnected)

	s.logger.Info("disconnected")
	s.say("Disconnected.")
}

// HandleUnplug reacts to the device disappearing underneath the session
func (s *Session) HandleUnplug(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Disconnected {
		return
	}
	s.logger.Warn("device disconnected", "path", s.path.Load())
	s.say("Device disconnected (Event).")
	s.disconnect()
}

// WatchUnplug polls the device node every interval and calls HandleUnplug
// once it is gone. It returns when ctx is done.
func (s *Session) WatchUnplug(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			path := s.path.Load()
			if path == "" || s.State() == Disconnected {
				continue
			}
			if !s.present(path) {
				s.HandleUnplug(ctx)
			}
		}
	}
}

// ChangeBaudRate reopens the device at rate and restarts the monitor. On
// failure the session is Disconnected and the caller has to Connect again.
func (s *Session) ChangeBaudRate(ctx context.Context, rate int) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != MonitorActive {
		return &NotConnectedError{Op: "change baud rate", State: st}
	}
	if !serial.ValidBaudRate(rate) {
		return fmt.Errorf("change baud rate: %w: %d", serial.ErrInvalidBaudRate, rate)
	}

	_, span := tracer.StartSpan(ctx, "session.change_baud", trace.WithAttributes(
		tracer.IntAttr("from", int(s.baud.Load())),
		tracer.IntAttr("to", rate),
	))
	defer func() { tracer.End(span, err) }()

	s.cancelScheduled()
	s.loop.Stop()

	if cerr := s.device.Close(); cerr != nil && !errors.Is(cerr, serial.ErrPortClosed) {
		return s.baudFailed(rate, cerr)
	}
	if oerr := s.device.Open(rate); oerr != nil {
		return s.baudFailed(rate, oerr)
	}
	s.baud.Store(int64(rate))

	if lerr := s.loop.Start(s.device); lerr != nil {
		return s.baudFailed(rate, lerr)
	}

	s.logger.Info("baud rate changed", "baud", rate)
	s.say("Baud rate changed to %d.", rate)
	return nil
}

// baudFailed collapses a half-done baud change into Disconnected. The device
// stays cached for the next Connect.
func (s *Session) baudFailed(rate int, cause error) error {
	if s.device.IsOpen() {
		if err := s.device.Close(); err != nil {
			s.logger.Warn("close after failed baud change", "error", err)
		}
	}
	s.baud.Store(0)
	s.setState(Disconnected)

	err := fmt.Errorf("change baud rate to %d: %w", rate, cause)
	s.logger.Error("baud change failed", "error", err)
	s.say("Failed to change baud rate: %v. Please reconnect.", cause)
	return err
}

// SendData writes data to the device. Outside an active monitor it does
// nothing and returns nil.
func (s *Session) SendData(ctx context.Context, data []byte) error {
	if s.State() != MonitorActive {
		s.logger.Debug("send ignored", "state", s.State().String())
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != MonitorActive || s.device == nil || !s.device.Writable() {
		s.logger.Debug("send ignored", "state", s.State().String())
		return nil
	}

	w, err := s.device.AcquireWriter()
	if err != nil {
		s.logger.Error("send", "error", err)
		s.say("Send failed: %v", err)
		return fmt.Errorf("send: %w", err)
	}
	defer w.Release()

	if _, err := w.Write(data); err != nil {
		s.logger.Error("send", "error", err)
		s.say("Send failed: %v", err)
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// SendLine sends text terminated by CRLF
func (s *Session) SendLine(ctx context.Context, text string) error {
	return s.SendData(ctx, []byte(text+"\r\n"))
}
