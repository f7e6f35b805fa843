package readloop

import (
	"errors"
	"fmt"
)

var ErrPortNotReadable = errors.New("port not readable")

// PortNotReadableError is returned by Start when the source never became
// readable within the settle delay.
type PortNotReadableError struct {
	Path string
}

func (e *PortNotReadableError) Error() string {
	if e.Path == "" {
		return ErrPortNotReadable.Error()
	}
	return fmt.Sprintf("%s: %s", e.Path, ErrPortNotReadable)
}

func (e *PortNotReadableError) Is(target error) bool {
	return target == ErrPortNotReadable
}
