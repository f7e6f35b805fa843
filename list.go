package serial

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	devDir    = "/dev"
	sysfsRoot = "/sys"
)

// Device names that look like UART endpoints
var serialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
	regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
	regexp.MustCompile(`^ttyS\d+$`),
	regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
	regexp.MustCompile(`^ttymxc\d+$`),
	regexp.MustCompile(`^ttyO\d+$`),
	regexp.MustCompile(`^ttySAC\d+$`),
	regexp.MustCompile(`^ttyTHS\d+$`),
}

var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^tty\d+$`), // virtual terminals
	regexp.MustCompile(`^console$`),
	regexp.MustCompile(`^ptmx$`),
	regexp.MustCompile(`^pty.*$`),
	regexp.MustCompile(`^pts/.*$`),
}

func isSerialName(name string) bool {
	for _, p := range excludePatterns {
		if p.MatchString(name) {
			return false
		}
	}
	for _, p := range serialPatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// ListPorts returns the sorted paths of serial character devices under /dev.
// Virtual terminals and pseudo-terminals are skipped.
func ListPorts() ([]string, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		if !isSerialName(entry.Name()) {
			continue
		}
		fullPath := filepath.Join(devDir, entry.Name())
		if isCharacterDevice(fullPath) {
			ports = append(ports, fullPath)
		}
	}
	sort.Strings(ports)
	return ports, nil
}

func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PortInfo describes a serial device. USB fields are empty for on-board UARTs.
type PortInfo struct {
	Name        string
	Path        string
	Description string

	VendorID        string
	ProductID       string
	SerialNumber    string
	Manufacturer    string
	Product         string
	InterfaceNumber string
	BusNumber       string
	DeviceNumber    string
}

// USBIDs parses the hex vendor and product ids. ok is false when the device is
// not USB or sysfs did not expose them.
func (i *PortInfo) USBIDs() (vid, pid uint16, ok bool) {
	v, err := strconv.ParseUint(i.VendorID, 16, 16)
	if err != nil {
		return 0, 0, false
	}
	p, err := strconv.ParseUint(i.ProductID, 16, 16)
	if err != nil {
		return 0, 0, false
	}
	return uint16(v), uint16(p), true
}

// GetPortInfo returns metadata for a character device path
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, ErrDeviceNotFound
	}

	name := filepath.Base(portPath)
	info := &PortInfo{
		Name:        name,
		Path:        portPath,
		Description: getPortDescription(name),
	}

	if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
		enrichUSBInfo(info)
	}
	return info, nil
}

func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo fills the USB fields from sysfs. The tty's device link points
// at the interface directory; its parent is the USB device carrying
// idVendor, idProduct and friends. Missing files leave fields empty.
func enrichUSBInfo(info *PortInfo) {
	link := filepath.Join(sysfsRoot, "class", "tty", info.Name, "device")
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return
	}

	// ttyUSB nodes sit one level below the interface, ttyACM links straight to it
	iface := resolved
	if strings.HasPrefix(info.Name, "ttyUSB") {
		iface = filepath.Dir(resolved)
	}
	info.InterfaceNumber = readSysfsFile(filepath.Join(iface, "bInterfaceNumber"))

	usbDev := filepath.Dir(iface)
	info.VendorID = readSysfsFile(filepath.Join(usbDev, "idVendor"))
	info.ProductID = readSysfsFile(filepath.Join(usbDev, "idProduct"))
	info.SerialNumber = readSysfsFile(filepath.Join(usbDev, "serial"))
	info.Manufacturer = readSysfsFile(filepath.Join(usbDev, "manufacturer"))
	info.Product = readSysfsFile(filepath.Join(usbDev, "product"))
	info.BusNumber = readSysfsFile(filepath.Join(usbDev, "busnum"))
	info.DeviceNumber = readSysfsFile(filepath.Join(usbDev, "devnum"))
}

// readSysfsFile returns the trimmed content of path, or "" if unreadable
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
