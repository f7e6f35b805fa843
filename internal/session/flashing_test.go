package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/serialflash/internal/flash"
	"github.com/allbin/serialflash/internal/flash/flashtest"
	"github.com/allbin/serialflash/internal/logger"
)

// flashRig wires a real orchestrator over in-memory engine and catalog. The
// factory asserts the port is released while the loader runs.
func flashRig(t *testing.T, engine *flashtest.Engine) (*testRig, *flashtest.Factory, flash.Version) {
	t.Helper()
	cat, v := flashtest.TwoPartCatalog()
	factory := &flashtest.Factory{Engine: engine}

	var r *testRig
	newEngine := func(path string, baud int, console io.Writer) (flash.Engine, error) {
		assert.False(t, r.dev.IsOpen(), "port must be closed while flashing")
		assert.False(t, r.s.Snapshot().ReadLoopActive)
		assert.Equal(t, Flashing, r.s.State())
		return factory.New(path, baud, console)
	}

	console := &syncBuffer{}
	orch := flash.NewOrchestrator(newEngine, cat, console, flash.WithLogger(logger.Discard()))
	r = newRig(t, WithFlasher(orch), WithConsole(console))
	r.console = console
	return r, factory, v
}

func TestFlashEndToEnd(t *testing.T) {
	engine := &flashtest.Engine{}
	r, factory, v := flashRig(t, engine)

	r.connect(t, 115200)
	require.NoError(t, r.s.ChangeBaudRate(context.Background(), 921600))
	require.Eventually(t, r.dev.ReaderHeld, time.Second, 5*time.Millisecond)

	require.NoError(t, r.s.StartFlashing(context.Background(), v, false, 921600))
	require.Eventually(t, r.dev.ReaderHeld, time.Second, 5*time.Millisecond)

	snap := r.s.Snapshot()
	assert.Equal(t, MonitorActive, snap.Mode)
	assert.Equal(t, 921600, snap.BaudRate)
	assert.True(t, snap.ReadLoopActive)

	assert.Equal(t, []string{"/dev/ttyACM0"}, factory.Paths)
	assert.Equal(t, []int{921600}, factory.Bauds)
	assert.Equal(t, []string{"detect", "write", "disconnect"}, engine.Calls())
	require.Len(t, engine.Written(), 2)

	// reopened at the saved rate after the loader let go
	assert.Equal(t, []int{115200, 921600, 921600}, r.dev.Opens())

	assert.Equal(t, []signalCall{
		{DTR: false, RTS: true},
		{DTR: false, RTS: false},
		{DTR: false, RTS: true},
		{DTR: false, RTS: false},
		{DTR: false, RTS: false},
	}, r.dev.Signals())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 3 * time.Second, 100 * time.Millisecond}, r.sleeps.Waits())

	out := r.console.String()
	ordered := []string{
		"Preparing for flashing...",
		"Initializing loader at 921600 baud...",
		"Detected chip: ESP32-C3",
		"Writing to flash...",
		"Flashing complete!",
		"Restoring serial connection...",
		"Performing 1st Hard Reset...",
		"Device ready (Double Reset completed).",
	}
	last := -1
	for _, line := range ordered {
		i := strings.Index(out, line)
		require.GreaterOrEqual(t, i, 0, "missing %q", line)
		assert.Greater(t, i, last, "%q out of order", line)
		last = i
	}

	r.dev.data <- []byte("app v1.4.0\r\n")
	assert.Eventually(t, func() bool {
		return strings.Contains(r.display.String(), "app v1.4.0")
	}, time.Second, 5*time.Millisecond)
}

func TestFlashWithErase(t *testing.T) {
	engine := &flashtest.Engine{}
	r, _, v := flashRig(t, engine)
	r.connect(t, 115200)

	require.NoError(t, r.s.StartFlashing(context.Background(), v, true, 460800))
	assert.Equal(t, []string{"detect", "erase", "write", "disconnect"}, engine.Calls())
	assert.Equal(t, 115200, r.s.Snapshot().BaudRate)
}

func TestFlashFailureRestoresMonitor(t *testing.T) {
	engine := &flashtest.Engine{WriteErr: errors.New("timed out waiting for packet header")}
	r, _, v := flashRig(t, engine)
	r.connect(t, 115200)

	err := r.s.StartFlashing(context.Background(), v, false, 921600)
	require.ErrorIs(t, err, flash.ErrFlashing)
	var ferr *flash.FlashingError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "write", ferr.Op)

	require.Eventually(t, r.dev.ReaderHeld, time.Second, 5*time.Millisecond)
	snap := r.s.Snapshot()
	assert.Equal(t, MonitorActive, snap.Mode)
	assert.Equal(t, 115200, snap.BaudRate)
	assert.True(t, snap.ReadLoopActive)
	assert.Len(t, r.dev.Signals(), 5)

	out := r.console.String()
	assert.Contains(t, out, "Flashing failed:")
	assert.Contains(t, out, "Device ready (Double Reset completed).")
	assert.NotContains(t, out, "Flashing complete!")
}

func TestFlashNotConnected(t *testing.T) {
	r, factory, v := flashRig(t, &flashtest.Engine{})

	err := r.s.StartFlashing(context.Background(), v, false, 921600)
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, factory.Paths)
	assert.Equal(t, Disconnected, r.s.State())
}

func TestFlashWithoutFlasher(t *testing.T) {
	r := newRig(t)
	r.connect(t, 115200)

	err := r.s.StartFlashing(context.Background(), flash.Version{}, false, 921600)
	require.ErrorIs(t, err, ErrNoFlasher)
	assert.Equal(t, MonitorActive, r.s.State())
}

func TestRestoreReopenFailure(t *testing.T) {
	var r *testRig
	flasher := flasherFunc(func(ctx context.Context, fs *flash.Session, path string) error {
		r.dev.mu.Lock()
		r.dev.openErr = func(int) error { return errors.New("no such device") }
		r.dev.mu.Unlock()
		return nil
	})
	r = newRig(t, WithFlasher(flasher))
	r.connect(t, 115200)

	require.NoError(t, r.s.StartFlashing(context.Background(), flash.Version{}, false, 921600))

	snap := r.s.Snapshot()
	assert.Equal(t, Disconnected, snap.Mode)
	assert.False(t, snap.ReadLoopActive)
	assert.Empty(t, r.dev.Signals())

	out := r.console.String()
	assert.Contains(t, out, "Error during restoration:")
	assert.Contains(t, out, "Note: Please manually reconnect if serial monitor is needed.")
	assert.NotContains(t, out, "Device ready")
}

func TestDisconnectAfterFailedRestoreForgetsPort(t *testing.T) {
	var r *testRig
	flasher := flasherFunc(func(ctx context.Context, fs *flash.Session, path string) error {
		r.dev.mu.Lock()
		r.dev.openErr = func(int) error { return errors.New("no such device") }
		r.dev.mu.Unlock()
		return nil
	})
	r = newRig(t, WithFlasher(flasher))
	r.connect(t, 115200)

	require.NoError(t, r.s.StartFlashing(context.Background(), flash.Version{}, false, 921600))
	require.Equal(t, Disconnected, r.s.State())

	r.s.Disconnect(context.Background())

	_, ok := r.s.PortInfo()
	assert.False(t, ok)
	snap := r.s.Snapshot()
	assert.Equal(t, Disconnected, snap.Mode)
	assert.Empty(t, snap.Path)
}

func TestRestoreResetFailureKeepsMonitor(t *testing.T) {
	flasher := flasherFunc(func(context.Context, *flash.Session, string) error { return nil })
	r := newRig(t, WithFlasher(flasher))
	r.connect(t, 115200)
	r.dev.mu.Lock()
	r.dev.signalErr = errors.New("inappropriate ioctl")
	r.dev.mu.Unlock()

	require.NoError(t, r.s.StartFlashing(context.Background(), flash.Version{}, false, 921600))
	require.Eventually(t, r.dev.ReaderHeld, time.Second, 5*time.Millisecond)

	assert.Equal(t, MonitorActive, r.s.State())
	out := r.console.String()
	assert.Contains(t, out, "Error during restoration:")
	assert.NotContains(t, out, "Device ready")
}

func TestRestoreRunsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	flasher := flasherFunc(func(ctx context.Context, fs *flash.Session, path string) error {
		cancel()
		return &flash.FlashingError{Op: "write", Cause: ctx.Err()}
	})
	r := newRig(t, WithFlasher(flasher))
	r.connect(t, 115200)

	err := r.s.StartFlashing(ctx, flash.Version{}, false, 921600)
	require.ErrorIs(t, err, context.Canceled)

	require.Eventually(t, r.dev.ReaderHeld, time.Second, 5*time.Millisecond)
	assert.Equal(t, MonitorActive, r.s.State())
	assert.Len(t, r.dev.Signals(), 5)

	r.sleeps.mu.Lock()
	defer r.sleeps.mu.Unlock()
	for _, e := range r.sleeps.ctxErr {
		assert.NoError(t, e)
	}
}

func TestSendDuringFlashingIsIgnored(t *testing.T) {
	var r *testRig
	flasher := flasherFunc(func(ctx context.Context, fs *flash.Session, path string) error {
		assert.NoError(t, r.s.SendLine(ctx, "AT"))
		assert.Equal(t, Flashing, r.s.Snapshot().Mode)
		return nil
	})
	r = newRig(t, WithFlasher(flasher))
	r.connect(t, 115200)

	require.NoError(t, r.s.StartFlashing(context.Background(), flash.Version{}, false, 921600))
	assert.Empty(t, r.dev.Written())
}
