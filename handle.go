package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/atomic"
)

// LockedReader is an exclusive reader on a Handle. Only one may exist per
// handle at a time; Release must be called exactly once when done.
type LockedReader interface {
	// Read blocks until data arrives, the reader is cancelled
	// (ErrReadCancelled) or the stream ends (io.EOF).
	Read(buf []byte) (int, error)
	// Cancel unblocks an in-flight Read.
	Cancel() error
	Release()
}

// LockedWriter is an exclusive writer on a Handle, independent of the reader.
type LockedWriter interface {
	Write(data []byte) (int, error)
	Release()
}

// openPort is replaced in tests
var openPort = Open

// Handle owns one serial device path across open/close cycles. It is the only
// object that holds the Port, and it hands out at most one reader and one
// writer at a time. Handle is not reentrant: callers serialise Open/Close.
type Handle struct {
	path string
	opts []Option

	mu   sync.Mutex
	port Port
	baud int

	readerHeld atomic.Bool
	writerHeld atomic.Bool
}

// NewHandle creates a closed handle for the device at path. opts are applied on
// every Open, before the baud rate.
func NewHandle(path string, opts ...Option) *Handle {
	return &Handle{path: path, opts: opts}
}

// Path returns the device path
func (h *Handle) Path() string {
	return h.path
}

// Open opens the device at baud. An already open port is closed first.
func (h *Handle) Open(baud int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.port != nil {
		if err := h.port.Close(); err != nil && !errors.Is(err, ErrPortClosed) {
			return fmt.Errorf("close before reopen: %w", err)
		}
		h.port = nil
	}

	opts := append(append([]Option{}, h.opts...), WithBaudRate(baud))
	p, err := openPort(h.path, opts...)
	if err != nil {
		return err
	}
	h.port = p
	h.baud = baud
	return nil
}

// Close closes the device. Closing a closed handle returns ErrPortClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.port == nil {
		return ErrPortClosed
	}
	err := h.port.Close()
	h.port = nil
	return err
}

// IsOpen reports whether the device is open
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.port != nil
}

// Readable reports whether a reader can be acquired now
func (h *Handle) Readable() bool {
	return h.IsOpen()
}

// Writable reports whether a writer can be acquired now
func (h *Handle) Writable() bool {
	return h.IsOpen()
}

// BaudRate returns the rate of the last successful Open
func (h *Handle) BaudRate() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.baud
}

// current returns the open port or ErrPortClosed
func (h *Handle) current() (Port, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.port == nil {
		return nil, ErrPortClosed
	}
	return h.port, nil
}

// AcquireReader takes the read lock
func (h *Handle) AcquireReader() (LockedReader, error) {
	p, err := h.current()
	if err != nil {
		return nil, ErrNotReadable
	}
	if !h.readerHeld.CompareAndSwap(false, true) {
		return nil, ErrReaderLocked
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &handleReader{h: h, port: p, ctx: ctx, cancel: cancel}, nil
}

// AcquireWriter takes the write lock
func (h *Handle) AcquireWriter() (LockedWriter, error) {
	p, err := h.current()
	if err != nil {
		return nil, ErrNotWritable
	}
	if !h.writerHeld.CompareAndSwap(false, true) {
		return nil, ErrWriterLocked
	}
	return &handleWriter{h: h, port: p}, nil
}

// SetSignals drives DTR and RTS on the open port
func (h *Handle) SetSignals(dtr, rts bool) error {
	p, err := h.current()
	if err != nil {
		return err
	}
	return p.SetSignals(dtr, rts)
}

// ModemSignals reads the modem lines of the open port
func (h *Handle) ModemSignals() (ModemSignals, error) {
	p, err := h.current()
	if err != nil {
		return ModemSignals{}, err
	}
	return p.GetModemSignals()
}

// Info returns sysfs metadata for the device path
func (h *Handle) Info() (*PortInfo, error) {
	return GetPortInfo(h.path)
}

type handleReader struct {
	h      *Handle
	port   Port
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (r *handleReader) Read(buf []byte) (int, error) {
	for {
		n, err := r.port.ReadContext(r.ctx, buf)
		switch {
		case r.ctx.Err() != nil:
			return n, ErrReadCancelled
		case errors.Is(err, ErrPortClosed):
			return n, io.EOF
		case err != nil:
			return n, err
		case n > 0:
			return n, nil
		}
		// VTIME expired with no data
	}
}

func (r *handleReader) Cancel() error {
	r.cancel()
	return nil
}

func (r *handleReader) Release() {
	r.once.Do(func() {
		r.cancel()
		r.h.readerHeld.Store(false)
	})
}

type handleWriter struct {
	h    *Handle
	port Port
	once sync.Once
}

func (w *handleWriter) Write(data []byte) (int, error) {
	return w.port.Write(data)
}

func (w *handleWriter) Release() {
	w.once.Do(func() {
		w.h.writerHeld.Store(false)
	})
}
