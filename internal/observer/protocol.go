package observer

import (
	"unicode/utf8"

	"github.com/agent-racer/tcpsess/internal/registry"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgSession  MessageType = "session"
	MsgMessage  MessageType = "message"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Sessions []*registry.SessionInfo `json:"sessions"`
}

// SessionPayload carries a lifecycle change for one session.
type SessionPayload struct {
	Event   string                `json:"event"`
	Session *registry.SessionInfo `json:"session"`
	Error   string                `json:"error,omitempty"`
}

// MessagePayload carries one decoded line. Data holds the exact bytes
// (base64 in JSON); Text repeats them when they are valid UTF-8.
type MessagePayload struct {
	ID   int    `json:"id"`
	Data []byte `json:"data"`
	Text string `json:"text,omitempty"`
}

func newMessagePayload(id int, data []byte) MessagePayload {
	p := MessagePayload{ID: id, Data: data}
	if utf8.Valid(data) {
		p.Text = string(data)
	}
	return p
}
