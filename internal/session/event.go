package session

// EventKind classifies session lifecycle events.
type EventKind int

const (
	EventStarted       EventKind = iota // connected; Session is set
	EventEnded                          // worker stopped
	EventConnectFailed                  // dial failed; no worker was started
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventConnectFailed:
		return "connect_failed"
	default:
		return "unknown"
	}
}

// Event reports a lifecycle change of one session. For a given ID, Started
// always precedes Ended, and ConnectFailed is never paired with either.
type Event[M any] struct {
	Kind    EventKind
	ID      int
	Session *Session[M] // EventStarted only
	Err     error       // dial error, or the I/O error that ended the session
}
