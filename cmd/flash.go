/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var errNoVersion = errors.New("no firmware selected (use --device, --firmware and --version)")

// flashCmd represents the flash command
var flashCmd = &cobra.Command{
	Use:   "flash [port]",
	Short: "Flash a firmware version without the interactive monitor",
	Long: `Connect to a port, flash a firmware version from the catalog and
restore the serial link afterwards.

The version is resolved from --device, --firmware and --version against the
catalog index. After flashing the port is reopened at --baud and the chip is
double reset. With --follow the device output is printed for that long before
the command exits.

Example usage:
  serialflash flash /dev/ttyUSB0 --device esp32 --firmware app
  serialflash flash /dev/ttyUSB0 --device esp32 --firmware app --version 1.2.0 --erase
  serialflash flash --catalog https://fw.example.com/ --device esp32 --follow 10s`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path, err := portArg(args)
		if err != nil {
			fail(err)
		}
		follow, _ := cmd.Flags().GetDuration("follow")

		if err := runFlash(cmd.Context(), path, follow); err != nil {
			fail(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(flashCmd)

	flashCmd.Flags().IntP("baud", "b", 115200, "Monitor baud rate restored after flashing")
	flashCmd.Flags().Int("flash-baud", 921600, "Baud rate used while flashing")
	flashCmd.Flags().BoolP("erase", "e", false, "Erase the whole flash before writing")
	flashCmd.Flags().String("device", "", "Catalog device id or name")
	flashCmd.Flags().String("firmware", "", "Catalog firmware id or name")
	flashCmd.Flags().String("version", "", "Catalog version id or name (default: first listed)")
	flashCmd.Flags().Duration("follow", 0, "Print device output for this long after flashing")
}

func runFlash(ctx context.Context, path string, follow time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openCatalog(app.log)
	if err != nil {
		return err
	}
	version, err := configuredVersion(ctx, store)
	if err != nil {
		return err
	}
	if version == nil {
		return errNoVersion
	}

	var display io.Writer = io.Discard
	if follow > 0 {
		display = os.Stdout
	}
	sess := newSession(path, store, display, os.Stdout, app.log)
	defer sess.Disconnect(context.Background())

	if err := sess.Connect(ctx, app.cfg.Baud); err != nil {
		return err
	}

	fmt.Printf("Flashing %s (erase: %v, %d baud)\n", version, app.cfg.Erase, app.cfg.FlashBaud)
	if err := sess.StartFlashing(ctx, *version, app.cfg.Erase, app.cfg.FlashBaud); err != nil {
		return err
	}

	if follow > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(follow):
		}
	}
	return nil
}
