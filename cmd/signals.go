/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	serial "github.com/allbin/serialflash"
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <port>",
	Short: "Display current modem signal states",
	Long: `Display the current state of all modem control signals.

Shows the state of CTS, DSR, RI, DCD, RTS, and DTR signals for the specified
port. With --watch the lines are polled and every change is printed until
Ctrl+C.

Examples:
  serialflash signals /dev/ttyUSB0
  serialflash signals /dev/ttyUSB0 --watch 50ms

Signal meanings:
  CTS - Clear To Send (input)
  DSR - Data Set Ready (input)
  RI  - Ring Indicator (input)
  DCD - Data Carrier Detect (input)
  RTS - Request To Send (output)
  DTR - Data Terminal Ready (output)`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]
		watch, _ := cmd.Flags().GetDuration("watch")

		port, err := serial.Open(portPath)
		if err != nil {
			fail(fmt.Errorf("open port: %w", err))
		}
		defer port.Close()

		signals, err := port.GetModemSignals()
		if err != nil {
			fail(fmt.Errorf("read modem signals: %w", err))
		}

		fmt.Printf("Modem Signals for %s:\n", portPath)
		fmt.Println(renderStatic([]column{
			{"line", "Line", 5},
			{"name", "Name", 22},
			{"dir", "Dir", 6},
			{"state", "State", 6},
		}, signalRows(signals)))

		if watch <= 0 {
			return
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Println("Watching for changes, press Ctrl+C to stop")
		if err := watchSignals(ctx, port, signals, watch); err != nil {
			port.Close()
			fail(err)
		}
	},
}

func signalRows(s serial.ModemSignals) []map[string]any {
	lines := []struct {
		line, name, dir string
		state           bool
	}{
		{"CTS", "Clear To Send", "in", s.CTS},
		{"DSR", "Data Set Ready", "in", s.DSR},
		{"RI", "Ring Indicator", "in", s.RI},
		{"DCD", "Data Carrier Detect", "in", s.DCD},
		{"RTS", "Request To Send", "out", s.RTS},
		{"DTR", "Data Terminal Ready", "out", s.DTR},
	}

	rows := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, map[string]any{
			"line":  l.line,
			"name":  l.name,
			"dir":   l.dir,
			"state": formatSignalState(l.state),
		})
	}
	return rows
}

// watchSignals polls port every interval and prints the lines that changed
func watchSignals(ctx context.Context, port serial.Port, last serial.ModemSignals, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now, err := port.GetModemSignals()
			if err != nil {
				return fmt.Errorf("read modem signals: %w", err)
			}
			if now != last {
				printSignalChange(last, now)
				last = now
			}
		}
	}
}

func printSignalChange(prev, now serial.ModemSignals) {
	fmt.Printf("[%s] Signal change detected:\n", time.Now().Format("15:04:05.000"))
	for _, c := range []struct {
		name    string
		was, is bool
	}{
		{"CTS", prev.CTS, now.CTS},
		{"DSR", prev.DSR, now.DSR},
		{"RI ", prev.RI, now.RI},
		{"DCD", prev.DCD, now.DCD},
		{"RTS", prev.RTS, now.RTS},
		{"DTR", prev.DTR, now.DTR},
	} {
		if c.was != c.is {
			fmt.Printf("  %s: %s -> %s\n", c.name, formatSignalState(c.was), formatSignalState(c.is))
		}
	}
}

func formatSignalState(state bool) string {
	if state {
		return "HIGH"
	}
	return "LOW"
}

func init() {
	rootCmd.AddCommand(signalsCmd)

	signalsCmd.Flags().DurationP("watch", "w", 0, "Poll interval for printing changes (0 = print once)")
}
