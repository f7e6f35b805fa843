/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	serial "github.com/allbin/serialflash"
	"github.com/allbin/serialflash/internal/tui/colors"
)

var (
	infoHeading = lipgloss.NewStyle().Bold(true).Foreground(colors.Mauve)
	infoLabel   = lipgloss.NewStyle().Foreground(colors.Subtext0).Width(14)
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata.

Examples:
  serialflash info /dev/ttyUSB0
  serialflash info /dev/ttyACM0

For USB devices, this displays vendor/product IDs, serial numbers, interface
numbers, and other USB-specific metadata extracted from sysfs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		info, err := serial.GetPortInfo(args[0])
		if err != nil {
			fail(fmt.Errorf("get port info: %w", err))
		}

		fmt.Println(infoHeading.Render("Port Information: " + info.Path))
		printField("Name", info.Name)
		printField("Description", info.Description)

		if info.VendorID == "" && info.ProductID == "" {
			return
		}

		fmt.Println()
		fmt.Println(infoHeading.Render("USB Device Information"))
		if vid, pid, ok := info.USBIDs(); ok {
			printField("VID:PID", fmt.Sprintf("%04x:%04x", vid, pid))
		}
		printField("Serial", info.SerialNumber)
		printField("Interface", info.InterfaceNumber)
		printField("Bus", info.BusNumber)
		printField("Device", info.DeviceNumber)
		printField("Manufacturer", info.Manufacturer)
		printField("Product", info.Product)

		reset := "no (install usbutils)"
		if serial.IsUSBResetAvailable() {
			reset = "yes"
		}
		printField("usbreset", reset)
	},
}

// printField prints label and value, skipping empty values
func printField(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("  %s %s\n", infoLabel.Render(label+":"), value)
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
