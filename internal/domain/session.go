package domain

type (
	SessionID string
	RoomID    string
)

// SessionStatus is the lifecycle state of one sharing session.
// StatusError and StatusDestroyed are terminal.
type SessionStatus int

const (
	StatusWaitingForConnection SessionStatus = iota
	StatusConnected
	StatusError
	StatusDestroyed
)

func (s SessionStatus) String() string {
	switch s {
	case StatusWaitingForConnection:
		return "WAITING_FOR_CONNECTION"
	case StatusConnected:
		return "CONNECTED"
	case StatusError:
		return "ERROR"
	case StatusDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status can never be left.
func (s SessionStatus) Terminal() bool {
	return s == StatusError || s == StatusDestroyed
}
