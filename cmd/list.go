/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	serial "github.com/allbin/serialflash"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

Scans for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)
- And other platform-specific serial devices

Virtual terminals and pseudo-terminals are excluded from the listing.`,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := serial.ListPorts()
		if err != nil {
			fail(fmt.Errorf("list ports: %w", err))
		}

		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		filteredPorts := filterPorts(ports, filterType)

		if len(filteredPorts) == 0 {
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return
		}

		if tableFormat {
			renderTable(filteredPorts)
		} else {
			renderSimple(filteredPorts)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// portKinds classifies device names by prefix, more specific prefixes first
var portKinds = []struct {
	prefix string
	label  string
	group  string
}{
	{"ttyusb", "USB Serial", "usb"},
	{"ttyacm", "USB CDC/ACM", "usb"},
	{"ttyama", "ARM Serial", "arm"},
	{"ttymxc", "i.MX Serial", "arm"},
	{"ttysac", "Samsung Serial", "arm"},
	{"ttyths", "Tegra Serial", "arm"},
	{"ttyo", "OMAP Serial", "arm"},
	{"ttys", "Standard Serial", "standard"},
}

// classify returns the label and filter group of a device name
func classify(name string) (label, group string) {
	name = strings.ToLower(name)
	for _, k := range portKinds {
		if strings.HasPrefix(name, k.prefix) {
			return k.label, k.group
		}
	}
	return "Serial Port", ""
}

// filterPorts keeps the ports in group; "" and "all" keep everything
func filterPorts(ports []string, group string) []string {
	group = strings.ToLower(group)
	if group == "" || group == "all" {
		return ports
	}

	var filtered []string
	for _, port := range ports {
		if _, g := classify(filepath.Base(port)); g == group {
			filtered = append(filtered, port)
		}
	}
	return filtered
}

// renderTable renders the port list as a static table
func renderTable(ports []string) {
	fmt.Printf("Found %d serial port(s):\n", len(ports))

	rows := make([]map[string]any, 0, len(ports))
	for _, port := range ports {
		info, err := serial.GetPortInfo(port)
		if err != nil {
			rows = append(rows, map[string]any{
				"port": port,
				"type": "Unknown",
				"desc": fmt.Sprintf("Error: %v", err),
			})
			continue
		}

		usb := ""
		if vid, pid, ok := info.USBIDs(); ok {
			usb = fmt.Sprintf("%04x:%04x", vid, pid)
		}
		rows = append(rows, map[string]any{
			"port": info.Name,
			"type": portLabel(info.Name),
			"usb":  usb,
			"desc": info.Description,
		})
	}

	fmt.Println(renderStatic([]column{
		{"port", "Port", 15},
		{"type", "Type", 18},
		{"usb", "USB", 10},
		{"desc", "Description", 34},
	}, rows))
}

// renderSimple renders the port list in simple text format
func renderSimple(ports []string) {
	for _, port := range ports {
		fmt.Println(port)
	}
}

func portLabel(name string) string {
	label, _ := classify(name)
	return label
}
