/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"github.com/spf13/cobra"

	serial "github.com/allbin/serialflash"
)

// dtrCmd represents the dtr command
var dtrCmd = &cobra.Command{
	Use:   "dtr <port> <state>",
	Short: "Control DTR (Data Terminal Ready) signal",
	Long: `Manually set the DTR (Data Terminal Ready) signal state.

On ESP boards DTR drives GPIO0 through the auto-reset circuit; held low while
the chip leaves reset it selects the ROM bootloader.

Examples:
  serialflash dtr /dev/ttyUSB0 high
  serialflash dtr /dev/ttyUSB0 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSetLine(args[0], args[1], "DTR", serial.Port.SetDTR, func(s serial.ModemSignals) bool { return s.DTR })
	},
}

func init() {
	rootCmd.AddCommand(dtrCmd)
}
