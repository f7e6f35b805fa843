// Package serial is the device layer of serialflash: termios-configured serial
// ports on Linux, port discovery through /dev and sysfs, and a Handle that owns
// one device path across the open/close cycles of a monitor and flashing
// session.
//
// # Ports
//
// Open configures the descriptor in raw mode with VMIN=0 and a VTIME read
// timeout, so every read returns within ReadTimeout even when the line is
// silent:
//
//	port, err := serial.Open("/dev/ttyUSB0",
//	    serial.WithBaudRate(115200),
//	    serial.WithReadTimeout(100*time.Millisecond),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
// ReadContext returns as soon as its context is done. Bytes that the abandoned
// read still receives are kept and returned by the next read, so cancelling a
// monitor does not lose output.
//
// # Handles
//
// A Handle hands out at most one reader and one writer at a time. The locks
// are independent, so a writer can send while a reader is blocked:
//
//	h := serial.NewHandle("/dev/ttyUSB0")
//	if err := h.Open(115200); err != nil {
//	    return err
//	}
//	r, err := h.AcquireReader()
//	if err != nil {
//	    return err
//	}
//	defer r.Release()
//
// Reader.Cancel unblocks a pending Read with ErrReadCancelled; closing the
// handle ends the stream with io.EOF.
//
// # Discovery and USB
//
// ListPorts returns serial character devices under /dev; GetPortInfo adds USB
// vendor, product and serial from sysfs. ResetUSBDevice power-cycles a hung
// adapter through the usbreset utility (usbutils, usually root only).
//
// # Errors
//
// Failures are reported with sentinel errors wrapped with %w; use errors.Is:
//
//	if errors.Is(err, serial.ErrDeviceInUse) {
//	    // another process holds the port
//	}
package serial
