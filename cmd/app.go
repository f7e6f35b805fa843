/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	serial "github.com/allbin/serialflash"
	"github.com/allbin/serialflash/internal/catalog"
	"github.com/allbin/serialflash/internal/config"
	"github.com/allbin/serialflash/internal/flash"
	"github.com/allbin/serialflash/internal/flash/esptool"
	"github.com/allbin/serialflash/internal/session"
)

func sessionTiming(t config.TimingConfig) session.Timing {
	return session.Timing{
		ConnectSettle: t.ConnectSettle,
		ReadSettle:    t.ReadSettle,
		Reset: flash.ResetTiming{
			Hold: t.ResetHold,
			Gap:  t.ResetGap,
		},
	}
}

func openCatalog(log *slog.Logger) (*catalog.Store, error) {
	store, err := catalog.Open(app.cfg.Catalog,
		catalog.WithIndexPath(app.cfg.CatalogIndex),
		catalog.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return store, nil
}

// configuredVersion resolves device/firmware/version from the config. It
// returns nil when no device is configured.
func configuredVersion(ctx context.Context, store *catalog.Store) (*flash.Version, error) {
	if app.cfg.Device == "" {
		return nil, nil
	}
	v, err := store.Find(ctx, app.cfg.Device, app.cfg.Firmware, app.cfg.Version)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// newSession wires a session on path with an esptool flasher over store
func newSession(path string, store *catalog.Store, display, console io.Writer, log *slog.Logger) *session.Session {
	factory := esptool.Factory(app.cfg.Esptool, log)
	orch := flash.NewOrchestrator(factory, store, console, flash.WithLogger(log))

	return session.New(
		session.WithSelector(session.PathSelector(path)),
		session.WithFlasher(orch),
		session.WithDisplay(display),
		session.WithConsole(console),
		session.WithLogger(log),
		session.WithTiming(sessionTiming(app.cfg.Timing)),
	)
}

var errNoPort = errors.New("no port given (pass <port> or set port in the config)")

// portArg returns the first positional argument, or the configured port
func portArg(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if app.cfg.Port != "" {
		return app.cfg.Port, nil
	}
	return "", errNoPort
}

// fail reports err on stderr and exits
func fail(err error) {
	_ = teardown(context.Background())
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// addLineFlags registers the line settings shared by send and capture
func addLineFlags(cmd *cobra.Command) {
	cmd.Flags().Int("data-bits", 8, "Data bits: 5, 6, 7 or 8")
	cmd.Flags().Int("stop-bits", 1, "Stop bits: 1 or 2")
	cmd.Flags().String("parity", "none", "Parity: none, odd, even")
}

// lineOptions turns the line flags into port options
func lineOptions(cmd *cobra.Command) ([]serial.Option, error) {
	dataBits, _ := cmd.Flags().GetInt("data-bits")
	stopBits, _ := cmd.Flags().GetInt("stop-bits")
	parityName, _ := cmd.Flags().GetString("parity")

	parity, err := serial.ParseParity(parityName)
	if err != nil {
		return nil, err
	}

	opts := []serial.Option{
		serial.WithDataBits(dataBits),
		serial.WithStopBits(stopBits),
		serial.WithParity(parity),
	}
	// reject bad values before anything is opened
	cfg := serial.DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("line settings: %w", err)
		}
	}
	return opts, nil
}
