package flash

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Session is the state of one flashing run. It is created when flashing
// starts and discarded once the monitor is restored.
type Session struct {
	ID             ulid.ULID
	Version        Version
	SavedBaudRate  int
	FlashBaudRate  int
	EraseRequested bool
	Started        time.Time

	// filled in as the run progresses
	Chip  string
	Files []FileEntry
}

// NewSession starts a run that will restore the monitor at savedBaud
func NewSession(v Version, erase bool, flashBaud, savedBaud int) *Session {
	return &Session{
		ID:             ulid.Make(),
		Version:        v,
		SavedBaudRate:  savedBaud,
		FlashBaudRate:  flashBaud,
		EraseRequested: erase,
		Started:        time.Now(),
	}
}

// Bytes is the total image size
func (s *Session) Bytes() int {
	n := 0
	for _, f := range s.Files {
		n += len(f.Data)
	}
	return n
}
