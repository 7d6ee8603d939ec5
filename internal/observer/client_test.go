package observer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/agent-racer/tcpsess/internal/driver"
	"github.com/agent-racer/tcpsess/internal/registry"
)

func waitFeed(t *testing.T, feeds <-chan Feed, want MessageType) Feed {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f := <-feeds:
			if f.Type == want {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s message arrived", want)
			return Feed{}
		}
	}
}

func TestClient_FollowsFeed(t *testing.T) {
	srv, b, store := newTestServer(t, "secret")
	store.Update(&registry.SessionInfo{ID: 1, Name: "irc", State: registry.Active})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feeds := make(chan Feed, 16)
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "secret")
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, func(f Feed) { feeds <- f }) }()

	snap := waitFeed(t, feeds, MsgSnapshot)
	if len(snap.Snapshot.Sessions) != 1 || snap.Snapshot.Sessions[0].Name != "irc" {
		t.Fatalf("snapshot = %+v", snap.Snapshot)
	}

	b.Notify(driver.Update{Kind: driver.UpdateMessage, ID: 1, Data: []byte("hello")})
	msg := waitFeed(t, feeds, MsgMessage)
	if msg.Message.ID != 1 || msg.Message.Text != "hello" {
		t.Errorf("message = %+v", msg.Message)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

func TestClient_Reconnects(t *testing.T) {
	srv, b, _ := newTestServer(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feeds := make(chan Feed, 16)
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "")
	c.baseDelay = 10 * time.Millisecond
	go c.Run(ctx, func(f Feed) { feeds <- f })

	waitFeed(t, feeds, MsgSnapshot)

	// Dropping every client forces a reconnect, which starts with a snapshot.
	b.mu.Lock()
	for cl := range b.clients {
		delete(b.clients, cl)
		close(cl.send)
	}
	b.mu.Unlock()

	waitFeed(t, feeds, MsgSnapshot)
}

func TestDecodeFeed(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
		typ    MessageType
	}{
		{in: `{"type":"message","payload":{"id":3,"data":"eA==","text":"x"}}`, wantOK: true, typ: MsgMessage},
		{in: `{"type":"message","payload":{"id":3,"data":"not base64!"}}`},
		{in: `{"type":"session","payload":{"event":"ended","session":{"id":3}}}`, wantOK: true, typ: MsgSession},
		{in: `{"type":"snapshot","payload":{"sessions":[]}}`, wantOK: true, typ: MsgSnapshot},
		{in: `{"type":"unknown","payload":{}}`},
		{in: `not json`},
		{in: `{"type":"message","payload":"oops"}`},
	}
	for _, tt := range tests {
		f, ok := decodeFeed([]byte(tt.in))
		if ok != tt.wantOK {
			t.Errorf("decodeFeed(%s) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && f.Type != tt.typ {
			t.Errorf("decodeFeed(%s) type = %s", tt.in, f.Type)
		}
	}
}
