/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	serial "github.com/allbin/serialflash"
	"github.com/allbin/serialflash/internal/flash"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset [port]",
	Short: "Reset the chip behind a serial port",
	Long: `Reset the chip behind a serial port.

By default this pulses RTS twice through the auto-reset circuit, the same
double reset that follows flashing: RTS held for timing.reset_hold, a pause of
timing.reset_gap, then a second pulse. The chip boots into its application.

With --usb the USB device itself is power-cycled using the usbreset utility
(from usbutils, usually needs root). The device re-enumerates, so the port
path may change. --serial selects the USB device by serial number instead.

Examples:
  serialflash reset /dev/ttyUSB0
  sudo serialflash reset /dev/ttyUSB0 --usb
  sudo serialflash reset --serial NC7ILXW1`,
	Args: func(cmd *cobra.Command, args []string) error {
		serialFlag, _ := cmd.Flags().GetString("serial")
		if serialFlag != "" && len(args) > 0 {
			return errors.New("cannot specify both port path and --serial flag")
		}
		return cobra.MaximumNArgs(1)(cmd, args)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		serialFlag, _ := cmd.Flags().GetString("serial")
		usb, _ := cmd.Flags().GetBool("usb")

		if serialFlag != "" {
			fmt.Printf("Resetting USB device with serial: %s\n", serialFlag)
			if err := resetUSB(ctx, func(ctx context.Context) error {
				return serial.ResetUSBDeviceBySerial(ctx, serialFlag)
			}); err != nil {
				fail(err)
			}
			return
		}

		path, err := portArg(args)
		if err != nil {
			fail(err)
		}

		if usb {
			fmt.Printf("Resetting USB device: %s\n", path)
			if err := resetUSB(ctx, func(ctx context.Context) error {
				return serial.ResetUSBDevice(ctx, path)
			}); err != nil {
				fail(err)
			}
			return
		}

		if err := doubleReset(ctx, path); err != nil {
			fail(err)
		}
		fmt.Println("Device reset (Double Reset completed).")
	},
}

func resetUSB(ctx context.Context, reset func(context.Context) error) error {
	if !serial.IsUSBResetAvailable() {
		fmt.Fprintln(os.Stderr, "Install with: sudo apt-get install usbutils")
		return serial.ErrUSBResetNotAvailable
	}

	if err := reset(ctx); err != nil {
		if errors.Is(err, serial.ErrUSBInfoNotAvailable) {
			fmt.Fprintln(os.Stderr, "This device does not appear to be a USB device")
		}
		return err
	}

	fmt.Println("USB device reset successfully")
	fmt.Println("Device will re-enumerate (port path may change)")
	fmt.Println("\nUse 'serialflash list --table' to see updated device list")
	return nil
}

// doubleReset opens path at the configured baud rate and pulses RTS twice
func doubleReset(ctx context.Context, path string) error {
	h := serial.NewHandle(path)
	if err := h.Open(app.cfg.Baud); err != nil {
		return err
	}
	defer h.Close()

	timing := sessionTiming(app.cfg.Timing).Reset
	fmt.Printf("Performing Double Reset on %s...\n", path)
	return flash.DoubleReset(ctx, h, timing, flash.SleepContext)
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().Bool("usb", false, "Power-cycle the USB device with usbreset")
	resetCmd.Flags().StringP("serial", "s", "", "Reset USB device by serial number")
}
