package serial

import "errors"

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrDeviceInUse      = errors.New("serial device already in use")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidConfig    = errors.New("invalid serial configuration")
	ErrPortClosed       = errors.New("serial port is closed")
	ErrWriteTimeout     = errors.New("write operation timed out")

	// Handle lock errors
	ErrReaderLocked  = errors.New("serial handle already has an active reader")
	ErrWriterLocked  = errors.New("serial handle already has an active writer")
	ErrReadCancelled = errors.New("read cancelled")
	ErrNotReadable   = errors.New("serial handle is not readable")
	ErrNotWritable   = errors.New("serial handle is not writable")

	// USB-related errors
	ErrUSBInfoNotAvailable  = errors.New("USB device information not available")
	ErrUSBResetNotAvailable = errors.New("usbreset utility not available")
)
