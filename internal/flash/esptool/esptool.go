// Package esptool implements flash.Engine by running Espressif's esptool
// executable against the serial port.
package esptool

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/allbin/serialflash/internal/flash"
)

// replaced in tests
var (
	commandContext = exec.CommandContext
	lookPath       = exec.LookPath
)

var (
	// v4: "Writing at 0x00010000... (50 %)", v5: "Writing at 0x00010000 [====>   ]  23.4% 65536/278528 bytes..."
	writingRe = regexp.MustCompile(`Writing at 0x([0-9a-fA-F]+)(?:\.*\s*\(|\s*\[[^\]]*\]\s*)(\d+(?:\.\d+)?)\s*%`)
	chipRes   = []*regexp.Regexp{
		regexp.MustCompile(`^Chip is (.+)$`),
		regexp.MustCompile(`^Chip type:\s+(.+)$`),
		regexp.MustCompile(`^Detecting chip type\.\.\.\s*(.+)$`),
	}
)

var ErrNoChip = errors.New("esptool did not report a chip type")

// Factory returns a flash.EngineFactory running bin. The executable is looked
// up when the engine is created, not when the factory is built.
func Factory(bin string, logger *slog.Logger) flash.EngineFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(path string, baud int, console io.Writer) (flash.Engine, error) {
		resolved, err := lookPath(bin)
		if err != nil {
			return nil, fmt.Errorf("esptool: %w", err)
		}
		return &Engine{
			bin:     resolved,
			port:    path,
			baud:    baud,
			console: console,
			logger:  logger.With("engine", "esptool", "port", path),
		}, nil
	}
}

// Engine is one esptool session bound to a port and baud rate. Each operation
// runs a separate esptool process; the port is only held while it runs.
type Engine struct {
	bin     string
	port    string
	baud    int
	console io.Writer
	logger  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	tmpDir  string
}

var _ flash.Engine = (*Engine)(nil)

func (e *Engine) baseArgs() []string {
	// the bootloader is entered via DTR/RTS; the caller resets into the app
	return []string{
		"--port", e.port,
		"--baud", strconv.Itoa(e.baud),
		"--before", "default_reset",
		"--after", "no_reset",
	}
}

// DetectChip connects to the ROM bootloader and returns the chip description
func (e *Engine) DetectChip(ctx context.Context) (string, error) {
	var chip, detected string
	err := e.run(ctx, func(line string) {
		for i, re := range chipRes {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			// "Chip is"/"Chip type:" beat the shorter detection line
			if i < 2 {
				chip = strings.TrimSpace(m[1])
			} else {
				detected = strings.TrimSpace(m[1])
			}
		}
	}, "chip_id")
	if err != nil {
		return "", err
	}

	if chip == "" {
		chip = detected
	}
	if chip == "" {
		return "", ErrNoChip
	}
	return chip, nil
}

// EraseFlash erases the whole flash chip
func (e *Engine) EraseFlash(ctx context.Context) error {
	return e.run(ctx, nil, "erase_flash")
}

// WriteFlash writes every file in one write_flash run. Progress lines are
// mapped back to the file whose offset range they fall in.
func (e *Engine) WriteFlash(ctx context.Context, opts flash.WriteOptions) error {
	if len(opts.Files) == 0 {
		return flash.ErrEmptyManifest
	}

	dir, err := e.stage(opts.Files)
	if err != nil {
		return err
	}

	args := []string{"write_flash"}
	if opts.Compress {
		args = append(args, "--compress")
	}
	if opts.FlashMode != "" {
		args = append(args, "--flash_mode", opts.FlashMode)
	}
	if opts.FlashFreq != "" {
		args = append(args, "--flash_freq", opts.FlashFreq)
	}
	if opts.EraseAll {
		args = append(args, "--erase-all")
	}
	for i, f := range opts.Files {
		args = append(args, fmt.Sprintf("0x%x", f.Offset), partFile(dir, i, f))
		if opts.MD5 != nil {
			e.logger.Debug("staged part", "offset", fmt.Sprintf("0x%x", f.Offset), "size", len(f.Data), "md5", opts.MD5(f.Data))
		}
	}

	return e.run(ctx, func(line string) {
		if opts.Progress == nil {
			return
		}
		addr, pct, ok := parseWriting(line)
		if !ok {
			return
		}

		idx := fileAt(opts.Files, addr)
		if idx < 0 {
			return
		}
		total := len(opts.Files[idx].Data)
		opts.Progress.OnProgress(idx, int(float64(total)*pct/100), total)
	}, args...)
}

// parseWriting extracts the address and percentage of a write progress line
func parseWriting(line string) (addr uint32, pct float64, ok bool) {
	m := writingRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	a, err := strconv.ParseUint(m[1], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	pct, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return uint32(a), pct, true
}

// Disconnect kills a running esptool and removes staged files
func (e *Engine) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if e.running && e.cmd != nil && e.cmd.Process != nil {
		if err := e.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill esptool: %w", err))
		}
	}
	if e.tmpDir != "" {
		if err := os.RemoveAll(e.tmpDir); err != nil {
			errs = append(errs, err)
		}
		e.tmpDir = ""
	}
	return errors.Join(errs...)
}

// stage writes the parts to a private temp dir
func (e *Engine) stage(files []flash.FileEntry) (string, error) {
	dir, err := os.MkdirTemp("", "serialflash-*")
	if err != nil {
		return "", fmt.Errorf("stage images: %w", err)
	}

	e.mu.Lock()
	if e.tmpDir != "" {
		os.RemoveAll(e.tmpDir)
	}
	e.tmpDir = dir
	e.mu.Unlock()

	for i, f := range files {
		if err := os.WriteFile(partFile(dir, i, f), f.Data, 0o600); err != nil {
			return "", fmt.Errorf("stage images: %w", err)
		}
	}
	return dir, nil
}

func partFile(dir string, i int, f flash.FileEntry) string {
	return filepath.Join(dir, fmt.Sprintf("part%02d-0x%x.bin", i, f.Offset))
}

// fileAt returns the index of the file with the highest offset not above addr
func fileAt(files []flash.FileEntry, addr uint32) int {
	idx := -1
	for i, f := range files {
		if f.Offset <= addr && (idx < 0 || f.Offset >= files[idx].Offset) {
			idx = i
		}
	}
	return idx
}

// run executes one esptool command, echoing its output to the console and
// feeding every line to onLine.
func (e *Engine) run(ctx context.Context, onLine func(string), args ...string) error {
	full := append(e.baseArgs(), args...)
	cmd := commandContext(ctx, e.bin, full...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	e.logger.Debug("running esptool", "args", strings.Join(full, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start esptool: %w", err)
	}

	e.mu.Lock()
	e.cmd = cmd
	e.running = true
	e.mu.Unlock()

	var last string
	scanner := bufio.NewScanner(stdout)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		if onLine != nil {
			onLine(line)
		}
		if !writingRe.MatchString(line) && e.console != nil {
			fmt.Fprintln(e.console, line)
		}
	}

	err = cmd.Wait()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if last != "" {
			return fmt.Errorf("esptool %s: %w: %s", args[0], err, last)
		}
		return fmt.Errorf("esptool %s: %w", args[0], err)
	}
	return nil
}

// scanLines splits on \n, \r\n and bare \r, which esptool uses to redraw
// progress on a terminal.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
