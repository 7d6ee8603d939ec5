package registry

import (
	"encoding/json"
	"time"
)

type State int

const (
	Connecting State = iota
	Active
	Ended
	Failed
)

var stateNames = map[State]string{
	Connecting: "connecting",
	Active:     "active",
	Ended:      "ended",
	Failed:     "failed",
}

var stateFromName = map[string]State{
	"connecting": Connecting,
	"active":     Active,
	"ended":      Ended,
	"failed":     Failed,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}

// SessionInfo is the bookkeeping kept for one session id.
type SessionInfo struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Addr       string    `json:"addr"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
	MessagesIn int       `json:"messagesIn"`
	BytesIn    int       `json:"bytesIn"`
	BytesOut   int       `json:"bytesOut"`
	LastError  string    `json:"lastError,omitempty"`
}

// IsTerminal reports whether the session can no longer carry traffic.
func (s *SessionInfo) IsTerminal() bool {
	return s.State == Ended || s.State == Failed
}

// IsLive reports whether the id is connecting or connected.
func (s *SessionInfo) IsLive() bool {
	return s.State == Connecting || s.State == Active
}
