/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	serial "github.com/allbin/serialflash"
)

// rtsCmd represents the rts command
var rtsCmd = &cobra.Command{
	Use:   "rts <port> <state>",
	Short: "Control RTS (Request To Send) signal",
	Long: `Manually set the RTS (Request To Send) signal state.

On ESP boards RTS drives the EN (reset) line through the auto-reset circuit,
so asserting it holds the chip in reset.

Examples:
  serialflash rts /dev/ttyUSB0 high
  serialflash rts /dev/ttyUSB0 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSetLine(args[0], args[1], "RTS", serial.Port.SetRTS, func(s serial.ModemSignals) bool { return s.RTS })
	},
}

// runSetLine opens path, drives one output line with set and reads it back
func runSetLine(path, arg, name string, set func(serial.Port, bool) error, get func(serial.ModemSignals) bool) {
	state, err := parseSignalState(arg)
	if err != nil {
		fail(err)
	}

	port, err := serial.Open(path)
	if err != nil {
		fail(fmt.Errorf("open port: %w", err))
	}
	defer port.Close()

	if err := set(port, state); err != nil {
		fail(fmt.Errorf("set %s: %w", name, err))
	}

	current := state
	if signals, err := port.GetModemSignals(); err != nil {
		app.log.Warn("could not verify line state", "line", name, "error", err)
	} else {
		current = get(signals)
	}

	fmt.Printf("%s set to %s on %s\n", name, formatSignalState(current), path)
}

func parseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}

func init() {
	rootCmd.AddCommand(rtsCmd)
}
