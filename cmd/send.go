/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	serial "github.com/allbin/serialflash"
	"github.com/allbin/serialflash/internal/tui/colors"
	"github.com/allbin/serialflash/internal/tui/components"
)

var (
	sendInfo    = lipgloss.NewStyle().Foreground(colors.Mauve).Bold(true)
	sendSuccess = lipgloss.NewStyle().Foreground(colors.Green).Bold(true)
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port.

Data can be provided as:
- Command line argument: send "Hello World" /dev/ttyUSB0
- From stdin (pipe): echo "test data" | serialflash send /dev/ttyUSB0
- Interactive mode: serialflash send /dev/ttyUSB0 (prompts for input)

--line appends CR LF the way the monitor sends lines, --hex takes the data as
hex bytes ("48 65 6c 6c 6f" or "0x48656c6c6f").

Example usage:
  serialflash send "Hello World" /dev/ttyUSB0
  serialflash send "AT+GMR" /dev/ttyUSB0 --line
  serialflash send "c0 00 08 c0" /dev/ttyUSB0 --hex
  echo "test" | serialflash send /dev/ttyUSB0`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		var data string
		var portPath string

		// Either "send data port" or "send port"
		if len(args) == 1 {
			portPath = args[0]
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					fail(fmt.Errorf("read stdin: %w", err))
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		} else {
			data = args[0]
			portPath = args[1]
		}

		line, _ := cmd.Flags().GetBool("line")
		hexMode, _ := cmd.Flags().GetBool("hex")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		flush, _ := cmd.Flags().GetBool("flush")

		opts, err := lineOptions(cmd)
		if err != nil {
			fail(err)
		}

		payload := []byte(data)
		if hexMode {
			b, err := components.ParseHex(data)
			if err != nil {
				fail(fmt.Errorf("invalid hex data: %w", err))
			}
			payload = b
		} else if line {
			payload = append(payload, '\r', '\n')
		}

		if err := sendData(cmd.Context(), portPath, payload, timeout, flush, opts...); err != nil {
			fail(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	sendCmd.Flags().BoolP("line", "l", false, "Append CR LF to the data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hex bytes")
	sendCmd.Flags().DurationP("timeout", "t", 5*time.Second, "Timeout for sending data")
	sendCmd.Flags().Bool("flush", false, "Discard pending input and output before sending")
	addLineFlags(sendCmd)
}

func promptForData() string {
	fmt.Print(sendInfo.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func sendData(ctx context.Context, portPath string, data []byte, timeout time.Duration, flush bool, opts ...serial.Option) error {
	fmt.Printf("%s Opening %s at %d baud...\n", sendInfo.Render("⚡"), portPath, app.cfg.Baud)

	opts = append(opts, serial.WithBaudRate(app.cfg.Baud))
	port, err := serial.Open(portPath, opts...)
	if err != nil {
		return err
	}
	defer port.Close()

	if flush {
		if err := port.FlushInput(); err != nil {
			return fmt.Errorf("flush input: %w", err)
		}
		if err := port.FlushOutput(); err != nil {
			return fmt.Errorf("flush output: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := port.WriteContext(ctx, data)
	if errors.Is(err, serial.ErrWriteTimeout) {
		return fmt.Errorf("send data: nothing accepted within %v: %w", timeout, err)
	}
	if err != nil {
		return fmt.Errorf("send data: %w", err)
	}
	if err := port.Drain(); err != nil {
		app.log.Warn("drain failed", "port", portPath, "error", err)
	}

	fmt.Printf("%s Sent %d bytes\n", sendSuccess.Render("✓"), n)

	preview := components.Printable(data)
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	fmt.Printf("%s Data: %s\n", sendInfo.Render("📋"), preview)
	return nil
}
