package session

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	serial "github.com/allbin/serialflash"
	"github.com/allbin/serialflash/internal/flash"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type signalCall struct {
	DTR, RTS bool
}

// fakeDevice is an in-memory serial handle. Bytes pushed on data are served
// to whoever holds the read lock.
type fakeDevice struct {
	path string
	data chan []byte

	mu         sync.Mutex
	open       bool
	baud       int
	closed     chan struct{}
	readerHeld bool
	opens      []int
	closes     int
	openErr    func(baud int) error
	closeErr   error
	signalErr  error
	signals    []signalCall
	written    bytes.Buffer
	info       *serial.PortInfo
}

func newFakeDevice(path string) *fakeDevice {
	return &fakeDevice{path: path, data: make(chan []byte, 8)}
}

func (d *fakeDevice) Path() string { return d.path }

func (d *fakeDevice) Open(baud int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens = append(d.opens, baud)
	if d.openErr != nil {
		if err := d.openErr(baud); err != nil {
			return err
		}
	}
	if d.open {
		close(d.closed)
	}
	d.open = true
	d.baud = baud
	d.closed = make(chan struct{})
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return serial.ErrPortClosed
	}
	d.closes++
	d.open = false
	close(d.closed)
	return d.closeErr
}

func (d *fakeDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *fakeDevice) Readable() bool { return d.IsOpen() }
func (d *fakeDevice) Writable() bool { return d.IsOpen() }

func (d *fakeDevice) BaudRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baud
}

func (d *fakeDevice) AcquireReader() (serial.LockedReader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, serial.ErrNotReadable
	}
	if d.readerHeld {
		return nil, serial.ErrReaderLocked
	}
	d.readerHeld = true
	return &fakeReader{dev: d, closed: d.closed, cancelled: make(chan struct{})}, nil
}

func (d *fakeDevice) AcquireWriter() (serial.LockedWriter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, serial.ErrNotWritable
	}
	return fakeWriter{dev: d}, nil
}

func (d *fakeDevice) SetSignals(dtr, rts bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signals = append(d.signals, signalCall{DTR: dtr, RTS: rts})
	return d.signalErr
}

func (d *fakeDevice) Info() (*serial.PortInfo, error) {
	if d.info == nil {
		return nil, serial.ErrUSBInfoNotAvailable
	}
	return d.info, nil
}

func (d *fakeDevice) Opens() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.opens...)
}

func (d *fakeDevice) Signals() []signalCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]signalCall(nil), d.signals...)
}

func (d *fakeDevice) Written() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written.String()
}

func (d *fakeDevice) ReaderHeld() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readerHeld
}

type fakeReader struct {
	dev       *fakeDevice
	closed    chan struct{}
	cancelled chan struct{}
	cancel    sync.Once
	release   sync.Once
}

func (r *fakeReader) Read(buf []byte) (int, error) {
	select {
	case <-r.cancelled:
		return 0, serial.ErrReadCancelled
	case <-r.closed:
		return 0, io.EOF
	case b := <-r.dev.data:
		return copy(buf, b), nil
	}
}

func (r *fakeReader) Cancel() error {
	r.cancel.Do(func() { close(r.cancelled) })
	return nil
}

func (r *fakeReader) Release() {
	r.release.Do(func() {
		r.dev.mu.Lock()
		r.dev.readerHeld = false
		r.dev.mu.Unlock()
	})
}

type fakeWriter struct {
	dev *fakeDevice
}

func (w fakeWriter) Write(p []byte) (int, error) {
	w.dev.mu.Lock()
	defer w.dev.mu.Unlock()
	return w.dev.written.Write(p)
}

func (w fakeWriter) Release() {}

type flasherFunc func(ctx context.Context, fs *flash.Session, path string) error

func (f flasherFunc) Flash(ctx context.Context, fs *flash.Session, path string) error {
	return f(ctx, fs, path)
}

// sleepRecorder replaces real waits and remembers them
type sleepRecorder struct {
	mu     sync.Mutex
	waits  []time.Duration
	ctxErr []error
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	r.ctxErr = append(r.ctxErr, ctx.Err())
	return nil
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

// fakeTimer collects scheduled callbacks so tests fire them by hand
type fakeTimer struct {
	mu      sync.Mutex
	fns     []func()
	stopped []bool
}

func (t *fakeTimer) AfterFunc(d time.Duration, f func()) func() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := len(t.fns)
	t.fns = append(t.fns, f)
	t.stopped = append(t.stopped, false)
	return func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.stopped[i] = true
		return true
	}
}

// Fire runs callback i even when it was stopped, like a timer that already
// expired before Stop was called.
func (t *fakeTimer) Fire(i int) {
	t.mu.Lock()
	f := t.fns[i]
	t.mu.Unlock()
	f()
}

func (t *fakeTimer) Stopped(i int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped[i]
}
