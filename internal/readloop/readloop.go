// Package readloop streams bytes from a serial handle to a display until it is
// told to stop. At most one loop runs per Controller.
package readloop

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	serial "github.com/allbin/serialflash"
)

const (
	DefaultReadSettle = 100 * time.Millisecond
	defaultBufferSize = 4096
)

// Source is the readable side of a device handle
type Source interface {
	Readable() bool
	AcquireReader() (serial.LockedReader, error)
}

// pathed sources get their path into error messages
type pathed interface {
	Path() string
}

// Option configures a Controller
type Option func(*Controller)

// WithReadSettle sets how long Start waits for an unreadable source once
func WithReadSettle(d time.Duration) Option {
	return func(c *Controller) { c.settle = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSleep replaces time.Sleep for the settle wait
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Controller) { c.sleep = sleep }
}

func WithBufferSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// Controller owns the monitor read loop. Display must be safe to call from the
// loop goroutine.
type Controller struct {
	display io.Writer
	settle  time.Duration
	sleep   func(time.Duration)
	logger  *slog.Logger
	bufSize int

	mu      sync.Mutex
	current *loopHandle
}

// loopHandle is the cancellation flag plus the reader holding the read lock
type loopHandle struct {
	running atomic.Bool
	done    chan struct{}

	mu     sync.Mutex
	reader serial.LockedReader
}

// attach records r unless the loop was stopped meanwhile
func (h *loopHandle) attach(r serial.LockedReader) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running.Load() {
		return false
	}
	h.reader = r
	return true
}

func (h *loopHandle) detach() {
	h.mu.Lock()
	h.reader = nil
	h.mu.Unlock()
}

// New creates an idle controller writing to display
func New(display io.Writer, opts ...Option) *Controller {
	c := &Controller{
		display: display,
		settle:  DefaultReadSettle,
		sleep:   time.Sleep,
		logger:  slog.Default(),
		bufSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start stops any running loop and starts a new one on src. An unreadable
// source gets one settle delay before Start gives up with
// PortNotReadableError.
func (c *Controller) Start(src Source) error {
	c.Stop()

	if !src.Readable() {
		c.sleep(c.settle)
		if !src.Readable() {
			fmt.Fprint(c.display, "\r\n[ERROR] Port not readable. Please reconnect.\r\n")
			err := &PortNotReadableError{Path: pathOf(src)}
			c.logger.Warn("read loop not started", "error", err)
			return err
		}
	}

	h := &loopHandle{done: make(chan struct{})}
	h.running.Store(true)

	c.mu.Lock()
	c.current = h
	c.mu.Unlock()

	go c.run(src, h)
	c.logger.Debug("read loop started", "path", pathOf(src))
	return nil
}

// Stop ends the running loop and waits for it to release the read lock. It is a
// no-op when nothing runs.
func (c *Controller) Stop() {
	c.mu.Lock()
	h := c.current
	c.current = nil
	c.mu.Unlock()

	if h == nil {
		return
	}

	h.running.Store(false)

	h.mu.Lock()
	r := h.reader
	h.mu.Unlock()
	if r != nil {
		if err := r.Cancel(); err != nil {
			c.logger.Warn("cancel reader", "error", err)
		}
	}

	<-h.done
	c.logger.Debug("read loop stopped")
}

// Active reports whether a loop goroutine is live
func (c *Controller) Active() bool {
	c.mu.Lock()
	h := c.current
	c.mu.Unlock()

	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (c *Controller) run(src Source, h *loopHandle) {
	defer close(h.done)

	for h.running.Load() && src.Readable() {
		if !c.pump(src, h) {
			return
		}
	}
}

// pump holds the read lock for one stream. It returns false when the loop must
// end, true when the stream ended and the source may be re-checked.
func (c *Controller) pump(src Source, h *loopHandle) bool {
	r, err := src.AcquireReader()
	if err != nil {
		c.fail(err)
		return false
	}
	defer r.Release()

	if !h.attach(r) {
		return false
	}
	defer h.detach()

	buf := make([]byte, c.bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := c.display.Write(buf[:n]); werr != nil {
				c.logger.Warn("display write", "error", werr)
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			return true
		case errors.Is(err, serial.ErrReadCancelled), !h.running.Load():
			return false
		default:
			c.fail(err)
			return false
		}
	}
}

// fail reports a loop-ending error inline on the display
func (c *Controller) fail(err error) {
	c.logger.Error("read loop error", "error", err)
	fmt.Fprintf(c.display, "\r\n[ERROR] %v\r\n", err)
}

func pathOf(src Source) string {
	if p, ok := src.(pathed); ok {
		return p.Path()
	}
	return ""
}
