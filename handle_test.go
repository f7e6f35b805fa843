package serial

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort feeds reads from a channel and records writes and signal changes
type fakePort struct {
	mu      sync.Mutex
	closed  bool
	rx      chan []byte
	written []byte
	signals [][2]bool
	config  Config
}

func newFakePort() *fakePort {
	return &fakePort{rx: make(chan []byte, 16)}
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrPortClosed
	}
	f.closed = true
	return nil
}

func (f *fakePort) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePort) Read(buf []byte) (int, error) {
	return f.ReadContext(context.Background(), buf)
}

func (f *fakePort) ReadContext(ctx context.Context, buf []byte) (int, error) {
	if f.isClosed() {
		return 0, ErrPortClosed
	}
	select {
	case data := <-f.rx:
		return copy(buf, data), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		// behaves like VTIME expiring
		return 0, nil
	}
}

func (f *fakePort) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrPortClosed
	}
	f.written = append(f.written, data...)
	return len(data), nil
}

func (f *fakePort) WriteContext(_ context.Context, data []byte) (int, error) {
	return f.Write(data)
}

func (f *fakePort) Drain() error       { return nil }
func (f *fakePort) FlushInput() error  { return nil }
func (f *fakePort) FlushOutput() error { return nil }

func (f *fakePort) GetModemSignals() (ModemSignals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.signals) == 0 {
		return ModemSignals{}, nil
	}
	last := f.signals[len(f.signals)-1]
	return ModemSignals{DTR: last[0], RTS: last[1]}, nil
}

func (f *fakePort) SetRTS(state bool) error { return nil }
func (f *fakePort) SetDTR(state bool) error { return nil }

func (f *fakePort) SetSignals(dtr, rts bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, [2]bool{dtr, rts})
	return nil
}

// stubOpen swaps openPort for the test and returns every port it creates
func stubOpen(t *testing.T, failWith error) *[]*fakePort {
	t.Helper()
	var opened []*fakePort
	old := openPort
	openPort = func(device string, opts ...Option) (Port, error) {
		if failWith != nil {
			return nil, failWith
		}
		fp := newFakePort()
		fp.config = DefaultConfig()
		for _, opt := range opts {
			if err := opt(&fp.config); err != nil {
				return nil, err
			}
		}
		opened = append(opened, fp)
		return fp, nil
	}
	t.Cleanup(func() { openPort = old })
	return &opened
}

func TestHandleOpenClose(t *testing.T) {
	opened := stubOpen(t, nil)
	h := NewHandle("/dev/ttyUSB0", WithDataBits(7))

	assert.False(t, h.IsOpen())
	assert.False(t, h.Readable())
	assert.False(t, h.Writable())
	assert.ErrorIs(t, h.Close(), ErrPortClosed)

	require.NoError(t, h.Open(460800))
	assert.True(t, h.IsOpen())
	assert.True(t, h.Readable())
	assert.True(t, h.Writable())
	assert.Equal(t, 460800, h.BaudRate())
	assert.Equal(t, "/dev/ttyUSB0", h.Path())
	require.Len(t, *opened, 1)
	assert.Equal(t, 460800, (*opened)[0].config.BaudRate)
	assert.Equal(t, 7, (*opened)[0].config.DataBits)

	require.NoError(t, h.Close())
	assert.False(t, h.IsOpen())
	assert.True(t, (*opened)[0].isClosed())
}

func TestHandleReopenClosesFirst(t *testing.T) {
	opened := stubOpen(t, nil)
	h := NewHandle("/dev/ttyUSB0")

	require.NoError(t, h.Open(115200))
	require.NoError(t, h.Open(921600))

	require.Len(t, *opened, 2)
	assert.True(t, (*opened)[0].isClosed())
	assert.False(t, (*opened)[1].isClosed())
	assert.Equal(t, 921600, h.BaudRate())
}

func TestHandleOpenFailure(t *testing.T) {
	stubOpen(t, ErrDeviceInUse)
	h := NewHandle("/dev/ttyUSB0")

	assert.ErrorIs(t, h.Open(115200), ErrDeviceInUse)
	assert.False(t, h.IsOpen())

	_, err := h.AcquireReader()
	assert.ErrorIs(t, err, ErrNotReadable)
	_, err = h.AcquireWriter()
	assert.ErrorIs(t, err, ErrNotWritable)
}

func TestHandleReaderExclusive(t *testing.T) {
	opened := stubOpen(t, nil)
	h := NewHandle("/dev/ttyUSB0")
	require.NoError(t, h.Open(115200))

	r, err := h.AcquireReader()
	require.NoError(t, err)

	_, err = h.AcquireReader()
	assert.ErrorIs(t, err, ErrReaderLocked)

	// the writer lock is independent
	w, err := h.AcquireWriter()
	require.NoError(t, err)
	_, err = h.AcquireWriter()
	assert.ErrorIs(t, err, ErrWriterLocked)

	(*opened)[0].rx <- []byte("hello")
	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	_, err = w.Write([]byte("AT\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "AT\r\n", string((*opened)[0].written))

	r.Release()
	r.Release()
	w.Release()

	r2, err := h.AcquireReader()
	require.NoError(t, err)
	r2.Release()
	w2, err := h.AcquireWriter()
	require.NoError(t, err)
	w2.Release()
}

func TestHandleReaderCancel(t *testing.T) {
	stubOpen(t, nil)
	h := NewHandle("/dev/ttyUSB0")
	require.NoError(t, h.Open(115200))

	r, err := h.AcquireReader()
	require.NoError(t, err)
	defer r.Release()

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 8))
		errCh <- err
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, r.Cancel())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrReadCancelled)
	case <-time.After(time.Second):
		t.Fatal("read did not unblock after Cancel")
	}
}

func TestHandleReaderEOFOnClose(t *testing.T) {
	stubOpen(t, nil)
	h := NewHandle("/dev/ttyUSB0")
	require.NoError(t, h.Open(115200))

	r, err := h.AcquireReader()
	require.NoError(t, err)
	defer r.Release()

	require.NoError(t, h.Close())

	_, err = r.Read(make([]byte, 8))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestHandleSetSignals(t *testing.T) {
	opened := stubOpen(t, nil)
	h := NewHandle("/dev/ttyUSB0")

	assert.ErrorIs(t, h.SetSignals(false, true), ErrPortClosed)

	require.NoError(t, h.Open(115200))
	require.NoError(t, h.SetSignals(false, true))
	require.NoError(t, h.SetSignals(false, false))
	assert.Equal(t, [][2]bool{{false, true}, {false, false}}, (*opened)[0].signals)

	sig, err := h.ModemSignals()
	require.NoError(t, err)
	assert.False(t, sig.RTS)
}
