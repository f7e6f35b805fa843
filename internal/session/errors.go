package session

import (
	"errors"
	"fmt"
)

var (
	ErrConnection   = errors.New("connection failed")
	ErrNotConnected = errors.New("not connected")
	ErrInvalidState = errors.New("invalid session state")
	ErrNoDevice     = errors.New("no device selected")
)

// ConnectionError is returned when the device could not be selected or opened
type ConnectionError struct {
	Path  string
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("connection failed: %v", e.Cause)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Path, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// NotConnectedError is returned by operations that need an active monitor
type NotConnectedError struct {
	Op    string
	State State
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: not connected (state %s)", e.Op, e.State)
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }
