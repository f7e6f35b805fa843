package flash_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/serialflash/internal/flash"
	"github.com/allbin/serialflash/internal/flash/flashtest"
)

func newOrchestrator(engine *flashtest.Engine, cat flash.Catalog, console *bytes.Buffer) (*flash.Orchestrator, *flashtest.Factory) {
	factory := &flashtest.Factory{Engine: engine}
	return flash.NewOrchestrator(factory.New, cat, console), factory
}

func TestFlashWritesPartsInManifestOrder(t *testing.T) {
	cat, v := flashtest.TwoPartCatalog()
	engine := &flashtest.Engine{}
	var console bytes.Buffer
	o, factory := newOrchestrator(engine, cat, &console)

	fs := flash.NewSession(v, false, 921600, 115200)
	require.NoError(t, o.Flash(context.Background(), fs, "/dev/ttyACM0"))

	assert.Equal(t, []string{"/dev/ttyACM0"}, factory.Paths)
	assert.Equal(t, []int{921600}, factory.Bauds)
	assert.Equal(t, []string{"detect", "write", "disconnect"}, engine.Calls())

	written := engine.Written()
	require.Len(t, written, 2)
	assert.Equal(t, uint32(0x0), written[0].Offset)
	assert.Len(t, written[0].Data, 16)
	assert.Equal(t, uint32(0x10000), written[1].Offset)
	assert.Len(t, written[1].Data, 64)

	opts := engine.Options()
	assert.False(t, opts.EraseAll)
	assert.True(t, opts.Compress)
	assert.Equal(t, "dio", opts.FlashMode)
	assert.Equal(t, "40m", opts.FlashFreq)
	require.NotNil(t, opts.MD5)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", opts.MD5(nil))

	assert.Equal(t, "ESP32-C3", fs.Chip)
	assert.Equal(t, 80, fs.Bytes())

	out := console.String()
	assert.Contains(t, out, "Initializing loader at 921600 baud...")
	assert.Contains(t, out, "Detected chip: ESP32-C3")
	assert.Contains(t, out, "Fetching bootloader.bin...")
	assert.Contains(t, out, "File 2/2 [████████████████████] 100% ")
	assert.Contains(t, out, "Flashing complete!")
	assert.NotContains(t, out, "Flashing failed")
}

func TestFlashEraseBeforeWrite(t *testing.T) {
	cat, v := flashtest.TwoPartCatalog()
	engine := &flashtest.Engine{}
	var console bytes.Buffer
	o, _ := newOrchestrator(engine, cat, &console)

	require.NoError(t, o.Flash(context.Background(), flash.NewSession(v, true, 460800, 115200), "/dev/ttyUSB0"))
	assert.Equal(t, []string{"detect", "erase", "write", "disconnect"}, engine.Calls())
}

func TestFlashFailures(t *testing.T) {
	boom := errors.New("timed out waiting for packet header")

	tests := []struct {
		name   string
		engine *flashtest.Engine
		erase  bool
		op     string
		calls  []string
	}{
		{"detect", &flashtest.Engine{DetectErr: boom}, false, "chip detection", []string{"detect", "disconnect"}},
		{"erase", &flashtest.Engine{EraseErr: boom}, true, "erase", []string{"detect", "erase", "disconnect"}},
		{"write", &flashtest.Engine{WriteErr: boom}, false, "write", []string{"detect", "write", "disconnect"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, v := flashtest.TwoPartCatalog()
			var console bytes.Buffer
			o, _ := newOrchestrator(tt.engine, cat, &console)

			err := o.Flash(context.Background(), flash.NewSession(v, tt.erase, 921600, 115200), "/dev/ttyUSB0")
			require.Error(t, err)
			assert.ErrorIs(t, err, flash.ErrFlashing)
			assert.ErrorIs(t, err, boom)

			var fe *flash.FlashingError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.op, fe.Op)

			assert.Equal(t, tt.calls, tt.engine.Calls())
			assert.Contains(t, console.String(), "Flashing failed: "+boom.Error())
			assert.NotContains(t, console.String(), "Flashing complete!")
		})
	}
}

func TestFlashMissingBinary(t *testing.T) {
	cat, v := flashtest.TwoPartCatalog()
	delete(cat.Files, "firmware/esp32-c3/1.4.0/app.bin")
	engine := &flashtest.Engine{}
	var console bytes.Buffer
	o, _ := newOrchestrator(engine, cat, &console)

	err := o.Flash(context.Background(), flash.NewSession(v, false, 921600, 115200), "/dev/ttyUSB0")

	var fe *flash.FlashingError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "download", fe.Op)
	assert.Equal(t, []string{"detect", "disconnect"}, engine.Calls())
}

func TestFlashFactoryFailure(t *testing.T) {
	cat, v := flashtest.TwoPartCatalog()
	var console bytes.Buffer
	factory := &flashtest.Factory{Err: errors.New("esptool: executable file not found in $PATH")}
	o := flash.NewOrchestrator(factory.New, cat, &console)

	err := o.Flash(context.Background(), flash.NewSession(v, false, 921600, 115200), "/dev/ttyUSB0")
	assert.ErrorIs(t, err, flash.ErrFlashing)
	assert.Contains(t, console.String(), "Flashing failed: esptool: executable file not found")
}

func TestFlashCustomHash(t *testing.T) {
	cat, v := flashtest.TwoPartCatalog()
	engine := &flashtest.Engine{}
	var console bytes.Buffer
	factory := &flashtest.Factory{Engine: engine}
	o := flash.NewOrchestrator(factory.New, cat, &console, flash.WithHash(func([]byte) string { return "fixed" }))

	require.NoError(t, o.Flash(context.Background(), flash.NewSession(v, false, 921600, 115200), "/dev/ttyUSB0"))
	assert.Equal(t, "fixed", engine.Options().MD5([]byte("x")))
}
