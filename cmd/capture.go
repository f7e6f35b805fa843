/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/atomic"

	serial "github.com/allbin/serialflash"
	"github.com/allbin/serialflash/internal/session"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <port> <output-file>",
	Short: "Capture serial data to a file",
	Long: `Capture incoming serial data to a file for later parsing.

Runs the same read loop as the monitor and appends everything the device
sends to the output file. Runs until interrupted (Ctrl+C) or until the device
is unplugged.

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  serialflash capture /dev/ttyUSB0 data.log
  serialflash capture /dev/ttyUSB0 output.txt --baud 9600
  serialflash capture /dev/ttyUSB0 capture.log --console`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		showConsole, _ := cmd.Flags().GetBool("console")

		opts, err := lineOptions(cmd)
		if err != nil {
			fail(err)
		}
		if err := runCapture(cmd.Context(), args[0], args[1], showConsole, opts...); err != nil {
			fail(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
	addLineFlags(captureCmd)
}

// countingWriter counts the bytes that reach w
type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}

func runCapture(ctx context.Context, portPath, outputPath string, showConsole bool, opts ...serial.Option) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	var out io.Writer = file
	if showConsole {
		out = io.MultiWriter(file, os.Stdout)
	}
	counter := &countingWriter{w: out}

	sess := session.New(
		session.WithSelector(session.PathSelector(portPath, opts...)),
		session.WithDisplay(counter),
		session.WithConsole(os.Stderr),
		session.WithLogger(app.log),
		session.WithTiming(sessionTiming(app.cfg.Timing)),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Connect(ctx, app.cfg.Baud); err != nil {
		return err
	}
	defer sess.Disconnect(context.Background())

	go sess.WatchUnplug(ctx, unplugInterval)

	fmt.Fprintf(os.Stderr, "Capturing data from %s to %s\n", portPath, outputPath)
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	start := time.Now()
	ticker := time.NewTicker(unplugInterval)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-ticker.C:
			if sess.State() == session.Disconnected {
				break wait
			}
		}
	}

	fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes written in %v\n", counter.n.Load(), time.Since(start).Round(time.Millisecond))
	return nil
}
