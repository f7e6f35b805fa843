// Package flashtest provides in-memory engines and catalogs for tests.
package flashtest

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/allbin/serialflash/internal/flash"
)

// Engine records calls and reports progress in two steps per file
type Engine struct {
	Chip string

	DetectErr     error
	EraseErr      error
	WriteErr      error
	DisconnectErr error

	mu           sync.Mutex
	calls        []string
	written      []flash.FileEntry
	opts         flash.WriteOptions
	disconnected int
}

func (e *Engine) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *Engine) DetectChip(ctx context.Context) (string, error) {
	e.record("detect")
	if e.DetectErr != nil {
		return "", e.DetectErr
	}
	if e.Chip == "" {
		return "ESP32-C3", nil
	}
	return e.Chip, nil
}

func (e *Engine) EraseFlash(ctx context.Context) error {
	e.record("erase")
	return e.EraseErr
}

func (e *Engine) WriteFlash(ctx context.Context, opts flash.WriteOptions) error {
	e.record("write")
	e.mu.Lock()
	e.opts = opts
	e.written = append([]flash.FileEntry(nil), opts.Files...)
	e.mu.Unlock()

	if e.WriteErr != nil {
		return e.WriteErr
	}
	for i, f := range opts.Files {
		if opts.Progress != nil {
			opts.Progress.OnProgress(i, len(f.Data)/2, len(f.Data))
			opts.Progress.OnProgress(i, len(f.Data), len(f.Data))
		}
	}
	return nil
}

func (e *Engine) Disconnect() error {
	e.record("disconnect")
	e.mu.Lock()
	e.disconnected++
	e.mu.Unlock()
	return e.DisconnectErr
}

// Calls returns the engine calls in order
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Written returns the files passed to WriteFlash
func (e *Engine) Written() []flash.FileEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.written
}

// Options returns the last WriteOptions
func (e *Engine) Options() flash.WriteOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// Factory hands out one engine and records how it was bound
type Factory struct {
	Engine *Engine
	Err    error

	mu    sync.Mutex
	Paths []string
	Bauds []int
}

func (f *Factory) New(path string, baud int, console io.Writer) (flash.Engine, error) {
	f.mu.Lock()
	f.Paths = append(f.Paths, path)
	f.Bauds = append(f.Bauds, baud)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Engine, nil
}

// Catalog serves one manifest and its binaries from memory. Binary keys are
// paths joined to the manifest directory.
type Catalog struct {
	Manifests map[string]*flash.Manifest // by ManifestPath
	Files     map[string][]byte

	mu      sync.Mutex
	fetched []string
}

func (c *Catalog) Manifest(ctx context.Context, v flash.Version) (*flash.Manifest, error) {
	m, ok := c.Manifests[v.ManifestPath]
	if !ok {
		return nil, fmt.Errorf("manifest %s: not found", v.ManifestPath)
	}
	return m, nil
}

func (c *Catalog) Binary(ctx context.Context, v flash.Version, partPath string) ([]byte, error) {
	key := path.Join(path.Dir(v.ManifestPath), partPath)
	c.mu.Lock()
	c.fetched = append(c.fetched, key)
	c.mu.Unlock()

	data, ok := c.Files[key]
	if !ok {
		return nil, fmt.Errorf("binary %s: not found", key)
	}
	return data, nil
}

// Fetched lists binary keys in fetch order
func (c *Catalog) Fetched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.fetched...)
}

// TwoPartCatalog is a bootloader+app layout at 0x0 and 0x10000
func TwoPartCatalog() (*Catalog, flash.Version) {
	v := flash.Version{
		Device:       "esp32-c3-devkit",
		Firmware:     "sensor-node",
		Name:         "1.4.0",
		ManifestPath: "firmware/esp32-c3/1.4.0/manifest.json",
	}
	cat := &Catalog{
		Manifests: map[string]*flash.Manifest{
			v.ManifestPath: {
				Name:    "sensor-node",
				Version: "1.4.0",
				Builds: []flash.Build{{
					ChipFamily: "ESP32-C3",
					Parts: []flash.Part{
						{Path: "bootloader.bin", Offset: 0x0},
						{Path: "app.bin", Offset: 0x10000},
					},
				}},
			},
		},
		Files: map[string][]byte{
			"firmware/esp32-c3/1.4.0/bootloader.bin": make([]byte, 16),
			"firmware/esp32-c3/1.4.0/app.bin":        make([]byte, 64),
		},
	}
	return cat, v
}
