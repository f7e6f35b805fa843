/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/allbin/serialflash/internal/catalog"
	"github.com/allbin/serialflash/internal/logger"
	"github.com/allbin/serialflash/internal/tui/components"
	"github.com/allbin/serialflash/internal/tui/models"
)

const unplugInterval = 500 * time.Millisecond

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [port]",
	Short: "Interactive serial monitor with firmware flashing",
	Long: `Open an interactive serial monitor on a port.

Device output streams into the terminal while you type lines to send. The
monitor can change the baud rate on the fly and flash a firmware version from
the catalog: it suspends monitoring, runs esptool at the flash baud rate,
then reopens the port, double resets the chip and resumes monitoring.

Keys (normal mode):
  i       type a line, enter sends it, tab toggles ASCII/hex
  r / d   connect / disconnect
  b / B   next / previous baud rate
  f       flash the selected version, e toggles erase, v picks a version
  c h t   clear, hex view, timestamps

Example usage:
  serialflash monitor /dev/ttyUSB0
  serialflash monitor /dev/ttyUSB0 --baud 921600
  serialflash monitor /dev/ttyUSB0 --device esp32 --firmware app --erase`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{altScreen: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		path, err := portArg(args)
		if err != nil {
			fail(err)
		}
		if err := runMonitor(cmd.Context(), path); err != nil {
			fail(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().IntP("baud", "b", 115200, "Monitor baud rate")
	monitorCmd.Flags().Int("flash-baud", 921600, "Baud rate used while flashing")
	monitorCmd.Flags().BoolP("erase", "e", false, "Erase the whole flash before writing")
	monitorCmd.Flags().String("device", "", "Catalog device id or name")
	monitorCmd.Flags().String("firmware", "", "Catalog firmware id or name")
	monitorCmd.Flags().String("version", "", "Catalog version id or name (default: first listed)")
}

func runMonitor(ctx context.Context, path string) error {
	// The alt screen owns the terminal, so terminal logging is silenced.
	log := app.log
	if logger.IsTerminal(app.cfg.Log.Output) {
		log = logger.Discard()
	}

	store, err := openCatalog(log)
	if err != nil {
		return err
	}
	version, err := configuredVersion(ctx, store)
	if err != nil {
		return err
	}

	var entries []catalog.Entry
	if idx, err := store.Index(ctx); err != nil {
		log.Warn("catalog index unavailable", "root", store.Root(), "error", err)
	} else {
		entries = idx.Entries()
	}

	display := models.NewSink(components.SourceRX)
	console := models.NewSink(components.SourceConsole)
	sess := newSession(path, store, display, console, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := models.NewMonitor(ctx, sess, models.Options{
		Baud:        app.cfg.Baud,
		FlashBaud:   app.cfg.FlashBaud,
		Erase:       app.cfg.Erase,
		Version:     version,
		Entries:     entries,
		AutoConnect: true,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	display.Attach(p.Send)
	console.Attach(p.Send)

	go sess.WatchUnplug(ctx, unplugInterval)

	_, err = p.Run()

	display.Attach(nil)
	console.Attach(nil)
	cancel()
	sess.Disconnect(context.Background())

	if err != nil {
		return err
	}
	log.Debug("monitor closed", slog.String("path", path))
	return nil
}
