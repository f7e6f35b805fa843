package flash

import (
	"errors"
	"fmt"
)

var (
	ErrFlashing      = errors.New("flashing failed")
	ErrRestoration   = errors.New("monitor restoration failed")
	ErrEmptyManifest = errors.New("manifest lists no parts")
)

// FlashingError reports the phase of a flashing session that failed
type FlashingError struct {
	Op    string
	Cause error
}

func (e *FlashingError) Error() string {
	return fmt.Sprintf("flashing failed during %s: %v", e.Op, e.Cause)
}

func (e *FlashingError) Unwrap() error { return e.Cause }

func (e *FlashingError) Is(target error) bool { return target == ErrFlashing }

// RestorationError is advisory: the flash outcome stands, only the monitor
// could not be brought back.
type RestorationError struct {
	Op    string
	Cause error
}

func (e *RestorationError) Error() string {
	return fmt.Sprintf("restore monitor (%s): %v", e.Op, e.Cause)
}

func (e *RestorationError) Unwrap() error { return e.Cause }

func (e *RestorationError) Is(target error) bool { return target == ErrRestoration }
