package session

// State is the lifecycle state of a Session
type State int

const (
	Disconnected State = iota
	Connecting
	MonitorActive
	Suspended
	Flashing
	Restoring
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case MonitorActive:
		return "MonitorActive"
	case Suspended:
		return "Suspended"
	case Flashing:
		return "Flashing"
	case Restoring:
		return "Restoring"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}
