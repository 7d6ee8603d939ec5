package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// Feed is one decoded observer message. Exactly one payload field is set.
type Feed struct {
	Type     MessageType
	Snapshot *SnapshotPayload
	Session  *SessionPayload
	Message  *MessagePayload
}

// Client follows an observer feed, reconnecting with exponential backoff
// whenever the connection drops.
type Client struct {
	url   string
	token string

	baseDelay time.Duration
	maxDelay  time.Duration
}

func NewClient(url, token string) *Client {
	return &Client{
		url:       url,
		token:     token,
		baseDelay: reconnectBaseDelay,
		maxDelay:  reconnectMaxDelay,
	}
}

// Run delivers every feed message to handle until ctx is done. handle is
// called from Run's goroutine.
func (c *Client) Run(ctx context.Context, handle func(Feed)) error {
	delay := c.baseDelay
	for {
		connected, err := c.follow(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = c.baseDelay
		}
		log.Printf("observer: feed %s: %v (retry in %v)", c.url, err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxDelay)
	}
}

// follow reads one connection until it fails. connected reports whether the
// dial succeeded.
func (c *Client) follow(ctx context.Context, handle func(Feed)) (connected bool, err error) {
	header := http.Header{}
	if c.token != "" {
		header.Set(tokenHeader, c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ctx, done, conn)

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if f, ok := decodeFeed(data); ok {
			handle(f)
		}
	}
}

// pingLoop keeps the connection alive and closes it when ctx is done so a
// blocked read returns.
func (c *Client) pingLoop(ctx context.Context, done <-chan struct{}, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func decodeFeed(data []byte) (Feed, bool) {
	var raw struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Feed{}, false
	}

	f := Feed{Type: raw.Type}
	var err error
	switch raw.Type {
	case MsgSnapshot:
		f.Snapshot = &SnapshotPayload{}
		err = json.Unmarshal(raw.Payload, f.Snapshot)
	case MsgSession:
		f.Session = &SessionPayload{}
		err = json.Unmarshal(raw.Payload, f.Session)
	case MsgMessage:
		f.Message = &MessagePayload{}
		err = json.Unmarshal(raw.Payload, f.Message)
	default:
		return Feed{}, false
	}
	return f, err == nil
}
