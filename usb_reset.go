package serial

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// usbSettle is how long a device takes to re-enumerate after usbreset
var usbSettle = 2 * time.Second

// ResetUSBDevice power-cycles the USB device behind portPath using the
// usbreset utility from usbutils. It usually needs root.
//
// Returns ErrUSBInfoNotAvailable if the port has no bus/device numbers and
// ErrUSBResetNotAvailable if usbreset is not installed.
func ResetUSBDevice(ctx context.Context, portPath string) error {
	info, err := GetPortInfo(portPath)
	if err != nil {
		return fmt.Errorf("get port info: %w", err)
	}
	if info.BusNumber == "" || info.DeviceNumber == "" {
		return ErrUSBInfoNotAvailable
	}
	if !IsUSBResetAvailable() {
		return ErrUSBResetNotAvailable
	}

	cmd := exec.CommandContext(ctx, "usbreset", formatUSBPath(info.BusNumber, info.DeviceNumber))
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("usbreset failed: %w (output: %s)", err, string(output))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(usbSettle):
	}
	return nil
}

// ResetUSBDeviceBySerial resets the first port whose USB serial number matches
func ResetUSBDeviceBySerial(ctx context.Context, serialNumber string) error {
	ports, err := ListPorts()
	if err != nil {
		return err
	}

	for _, portPath := range ports {
		info, err := GetPortInfo(portPath)
		if err != nil {
			continue
		}
		if info.SerialNumber == serialNumber {
			return ResetUSBDevice(ctx, portPath)
		}
	}

	return fmt.Errorf("device with serial %s: %w", serialNumber, ErrDeviceNotFound)
}

// IsUSBResetAvailable reports whether usbreset is on PATH
func IsUSBResetAvailable() bool {
	_, err := exec.LookPath("usbreset")
	return err == nil
}

// formatUSBPath renders bus and device as the BBB/DDD form usbreset expects
func formatUSBPath(bus, device string) string {
	return zeroPad(bus, 3) + "/" + zeroPad(device, 3)
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
