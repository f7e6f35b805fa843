// Package flash drives a firmware flashing session: it resolves the image
// parts of a firmware version, pushes them through a bootloader engine and
// renders progress. It also owns the double hardware reset used to bring the
// device back into its application afterwards.
package flash

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
)

// Fixed write parameters. DIO at 40 MHz boots on every board variant seen so
// far, including those that hang in QIO.
const (
	FlashMode = "dio"
	FlashFreq = "40m"
)

// FileEntry is one image part and its flash offset
type FileEntry struct {
	Data   []byte
	Offset uint32
}

// ProgressObserver receives write progress for file fileIndex (zero based)
type ProgressObserver interface {
	OnProgress(fileIndex, written, total int)
}

// ProgressFunc adapts a function to ProgressObserver
type ProgressFunc func(fileIndex, written, total int)

func (f ProgressFunc) OnProgress(fileIndex, written, total int) { f(fileIndex, written, total) }

// HashFunc returns the lowercase hex digest the engine verifies a part against
type HashFunc func(data []byte) string

// MD5Hex is the default HashFunc
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// WriteOptions configures Engine.WriteFlash
type WriteOptions struct {
	Files     []FileEntry
	EraseAll  bool
	Progress  ProgressObserver
	Compress  bool
	FlashMode string
	FlashFreq string
	MD5       HashFunc
}

// Engine speaks the bootloader protocol over one serial port
type Engine interface {
	DetectChip(ctx context.Context) (string, error)
	EraseFlash(ctx context.Context) error
	WriteFlash(ctx context.Context, opts WriteOptions) error
	// Disconnect releases the port. It must be safe after a failed call.
	Disconnect() error
}

// EngineFactory binds an engine to the port at path. Engine chatter goes to
// console.
type EngineFactory func(path string, baud int, console io.Writer) (Engine, error)
