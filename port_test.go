package serial

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newPipePort wires a port to the read end of a pipe. The returned fd is the
// write end.
func newPipePort(t *testing.T) (*port, int) {
	t.Helper()
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe2(fds, unix.O_CLOEXEC))
	t.Cleanup(func() { unix.Close(fds[1]) })
	return &port{fd: fds[0], config: DefaultConfig()}, fds[1]
}

func TestGetBaudRate(t *testing.T) {
	for _, rate := range []int{9600, 57600, 115200, 460800, 921600, 2000000} {
		got, err := getBaudRate(rate)
		require.NoError(t, err, "rate %d", rate)
		assert.NotZero(t, got)
		assert.True(t, ValidBaudRate(rate))
	}

	_, err := getBaudRate(123456)
	assert.ErrorIs(t, err, ErrInvalidBaudRate)
	assert.False(t, ValidBaudRate(0))
}

func TestOpenNonExistentDevice(t *testing.T) {
	_, err := Open("/dev/nonexistent")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestOpenRejectsBadOptions(t *testing.T) {
	_, err := Open("/dev/null", WithBaudRate(7))
	assert.ErrorIs(t, err, ErrInvalidBaudRate)
}

func TestClassifyOpenError(t *testing.T) {
	assert.ErrorIs(t, classifyOpenError("/dev/x", unix.ENOENT), ErrDeviceNotFound)
	assert.ErrorIs(t, classifyOpenError("/dev/x", unix.ENXIO), ErrDeviceNotFound)
	assert.ErrorIs(t, classifyOpenError("/dev/x", unix.EACCES), ErrPermissionDenied)
	assert.ErrorIs(t, classifyOpenError("/dev/x", unix.EBUSY), ErrDeviceInUse)

	err := classifyOpenError("/dev/x", unix.EIO)
	assert.ErrorIs(t, err, unix.EIO)
	assert.Contains(t, err.Error(), "/dev/x")
}

func TestContextAlreadyDone(t *testing.T) {
	p, _ := newPipePort(t)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ReadContext(ctx, make([]byte, 10))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = p.WriteContext(ctx, []byte("test"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteContextDeadlineIsWriteTimeout(t *testing.T) {
	p, _ := newPipePort(t)
	defer p.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := p.WriteContext(ctx, []byte("AT\r\n"))
	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadContextReturnsData(t *testing.T) {
	p, w := newPipePort(t)
	defer p.Close()

	_, err := unix.Write(w, []byte("boot ok"))
	require.NoError(t, err)

	buf := make([]byte, 32)
	n, err := p.ReadContext(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "boot ok", string(buf[:n]))
}

func TestReadContextKeepsBytesAfterCancel(t *testing.T) {
	p, w := newPipePort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.ReadContext(ctx, make([]byte, 16))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the abandoned read is still parked on the pipe and picks this up
	_, err = unix.Write(w, []byte("late"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p.pendMu.Lock()
		defer p.pendMu.Unlock()
		return string(p.pending) == "late"
	}, time.Second, 5*time.Millisecond)

	buf := make([]byte, 2)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "la", string(buf[:n]))

	n, err = p.ReadContext(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "te", string(buf[:n]))

	require.NoError(t, p.Close())
}

func TestClosedPort(t *testing.T) {
	p, _ := newPipePort(t)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Close(), ErrPortClosed)

	_, err := p.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrPortClosed)
	_, err = p.Write([]byte{1})
	assert.ErrorIs(t, err, ErrPortClosed)
	_, err = p.ReadContext(context.Background(), make([]byte, 1))
	assert.ErrorIs(t, err, ErrPortClosed)
	assert.ErrorIs(t, p.Drain(), ErrPortClosed)
	assert.ErrorIs(t, p.FlushInput(), ErrPortClosed)
	assert.ErrorIs(t, p.FlushOutput(), ErrPortClosed)
}
