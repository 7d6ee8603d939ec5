package observer

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agent-racer/tcpsess/internal/driver"
	"github.com/agent-racer/tcpsess/internal/registry"
	"github.com/gorilla/websocket"
)

// dialTestWS creates a test HTTP server that upgrades to WebSocket and returns
// the server-side connection. The client side is closed immediately.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = clientConn.Close()

	select {
	case serverConn := <-connCh:
		return srv, serverConn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil
	}
}

// readMessage reads one JSON message from conn, decoding the payload into p.
func readMessage(t *testing.T, conn *websocket.Conn, p interface{}) MessageType {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if p != nil {
		if err := json.Unmarshal(raw.Payload, p); err != nil {
			t.Fatalf("unmarshal payload %s: %v", raw.Payload, err)
		}
	}
	return raw.Type
}

func TestAddClient_MaxConnections(t *testing.T) {
	const maxConns = 2
	b := NewBroadcaster(registry.NewStore(), time.Hour, maxConns)
	defer b.Stop()

	var clients []*client
	for i := 0; i < maxConns; i++ {
		_, conn := dialTestWS(t)
		c, err := b.AddClient(conn)
		if err != nil {
			t.Fatalf("AddClient[%d]: unexpected error: %v", i, err)
		}
		clients = append(clients, c)
	}

	_, conn := dialTestWS(t)
	if _, err := b.AddClient(conn); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}
	if got := b.ClientCount(); got != maxConns {
		t.Fatalf("expected %d clients after rejection, got %d", maxConns, got)
	}

	b.RemoveClient(clients[0])

	_, conn2 := dialTestWS(t)
	if _, err := b.AddClient(conn2); err != nil {
		t.Fatalf("AddClient after removal: unexpected error: %v", err)
	}
}

func TestAddClient_ZeroMaxConnections_Unlimited(t *testing.T) {
	b := NewBroadcaster(registry.NewStore(), time.Hour, 0)
	defer b.Stop()

	for i := 0; i < 10; i++ {
		_, conn := dialTestWS(t)
		if _, err := b.AddClient(conn); err != nil {
			t.Fatalf("AddClient[%d]: unexpected error with maxConns=0: %v", i, err)
		}
	}
	if got := b.ClientCount(); got != 10 {
		t.Fatalf("expected 10 clients, got %d", got)
	}
}

func TestClientIDsAreUnique(t *testing.T) {
	b := NewBroadcaster(registry.NewStore(), time.Hour, 0)
	defer b.Stop()

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		_, conn := dialTestWS(t)
		c, err := b.AddClient(conn)
		if err != nil {
			t.Fatalf("AddClient: %v", err)
		}
		if c.id == "" || seen[c.id] {
			t.Fatalf("client id %q is empty or repeated", c.id)
		}
		seen[c.id] = true
	}
}

func TestWritePump_RemovesClientOnWriteError(t *testing.T) {
	_, serverConn := dialTestWS(t)

	b := NewBroadcaster(registry.NewStore(), time.Hour, 0)
	defer b.Stop()

	c := &client{
		id:   "test",
		conn: serverConn,
		b:    b,
		send: make(chan []byte, clientSendBuffer),
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"test"}`)
	go c.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not removed after write error; ClientCount = %d", b.ClientCount())
}

func TestBroadcast_DisconnectsSlowClient(t *testing.T) {
	_, serverConn := dialTestWS(t)

	b := NewBroadcaster(registry.NewStore(), time.Hour, 0)
	defer b.Stop()

	// No write pump, so the buffer is never drained.
	c := &client{id: "slow", conn: serverConn, b: b, send: make(chan []byte, 1)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	b.Notify(driver.Update{Kind: driver.UpdateMessage, ID: 1, Data: []byte("a")})
	if got := b.ClientCount(); got != 1 {
		t.Fatalf("client removed before its buffer filled")
	}
	b.Notify(driver.Update{Kind: driver.UpdateMessage, ID: 1, Data: []byte("b")})
	if got := b.ClientCount(); got != 0 {
		t.Fatalf("slow client still registered; ClientCount = %d", got)
	}
}

func TestStop_DisconnectsClients(t *testing.T) {
	b := NewBroadcaster(registry.NewStore(), time.Hour, 0)
	_, conn := dialTestWS(t)
	if _, err := b.AddClient(conn); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	b.Stop()
	b.Stop()
	if got := b.ClientCount(); got != 0 {
		t.Fatalf("ClientCount after Stop = %d, want 0", got)
	}
}
