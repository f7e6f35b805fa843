package flash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/allbin/serialflash/internal/tracer"
)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithHash replaces MD5Hex as the digest handed to the engine
func WithHash(h HashFunc) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.hash = h
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator runs the protocol half of a flashing session: engine setup,
// chip detection, optional erase, image download and write. Suspending and
// restoring the monitor is up to the caller.
type Orchestrator struct {
	factory EngineFactory
	catalog Catalog
	console io.Writer
	hash    HashFunc
	logger  *slog.Logger
}

// NewOrchestrator writes human-readable progress to console
func NewOrchestrator(factory EngineFactory, catalog Catalog, console io.Writer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory: factory,
		catalog: catalog,
		console: console,
		hash:    MD5Hex,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Flash writes fs.Version to the device at path. The port must be closed by
// the caller beforehand; the engine is disconnected again before Flash
// returns. Failures come back as *FlashingError.
func (o *Orchestrator) Flash(ctx context.Context, fs *Session, path string) (err error) {
	ctx, span := tracer.StartSpan(ctx, "flash.session", trace.WithAttributes(
		tracer.StringAttr("session", fs.ID.String()),
		tracer.StringAttr("version", fs.Version.String()),
		tracer.IntAttr("baud", fs.FlashBaudRate),
		tracer.BoolAttr("erase", fs.EraseRequested),
	))
	defer func() { tracer.End(span, err) }()

	log := o.logger.With("session", fs.ID.String(), "path", path)
	log.Info("flashing started", "version", fs.Version.String(), "baud", fs.FlashBaudRate, "erase", fs.EraseRequested)

	if err = o.run(ctx, fs, path, log); err != nil {
		cause := err
		var fe *FlashingError
		if errors.As(err, &fe) {
			cause = fe.Cause
		}
		log.Error("flashing failed", "error", err)
		fmt.Fprintf(o.console, "Flashing failed: %v\n", cause)
		return err
	}

	log.Info("flashing complete", "chip", fs.Chip, "files", len(fs.Files), "bytes", fs.Bytes())
	fmt.Fprintln(o.console, "Flashing complete!")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, fs *Session, path string, log *slog.Logger) error {
	fmt.Fprintf(o.console, "Initializing loader at %d baud...\n", fs.FlashBaudRate)
	engine, err := o.factory(path, fs.FlashBaudRate, o.console)
	if err != nil {
		return &FlashingError{Op: "connect", Cause: err}
	}
	defer func() {
		if derr := engine.Disconnect(); derr != nil {
			log.Warn("engine disconnect", "error", derr)
		}
	}()

	err = o.phase(ctx, "detect", func(ctx context.Context) error {
		chip, err := engine.DetectChip(ctx)
		if err != nil {
			return err
		}
		fs.Chip = chip
		return nil
	})
	if err != nil {
		return &FlashingError{Op: "chip detection", Cause: err}
	}
	fmt.Fprintf(o.console, "Detected chip: %s\n", fs.Chip)

	if fs.EraseRequested {
		fmt.Fprintln(o.console, "Erasing flash (this may take a while)...")
		if err := o.phase(ctx, "erase", engine.EraseFlash); err != nil {
			return &FlashingError{Op: "erase", Cause: err}
		}
	}

	fmt.Fprintln(o.console, "Downloading firmware files...")
	err = o.phase(ctx, "download", func(ctx context.Context) error {
		files, err := LoadFiles(ctx, o.catalog, fs.Version, o.console)
		fs.Files = files
		return err
	})
	if err != nil {
		return &FlashingError{Op: "download", Cause: err}
	}

	for i, f := range fs.Files {
		log.Debug("image part", "index", i, "offset", fmt.Sprintf("0x%x", f.Offset), "size", len(f.Data), "md5", o.hash(f.Data))
	}

	fmt.Fprintln(o.console, "Writing to flash...")
	bar := NewProgressBar(o.console, len(fs.Files))
	err = o.phase(ctx, "write", func(ctx context.Context) error {
		return engine.WriteFlash(ctx, WriteOptions{
			Files:     fs.Files,
			EraseAll:  false,
			Progress:  bar,
			Compress:  true,
			FlashMode: FlashMode,
			FlashFreq: FlashFreq,
			MD5:       o.hash,
		})
	})
	bar.Finish()
	if err != nil {
		return &FlashingError{Op: "write", Cause: err}
	}
	return nil
}

// phase runs fn inside its own span
func (o *Orchestrator) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.StartSpan(ctx, "flash."+name)
	err := fn(ctx)
	tracer.End(span, err)
	return err
}
