package observer

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/agent-racer/tcpsess/internal/driver"
	"github.com/agent-racer/tcpsess/internal/registry"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// has been reached.
var ErrTooManyConnections = errors.New("observer: too many connections")

const clientSendBuffer = 64

type client struct {
	id   string
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("observer: client %s write error: %v", c.id, err)
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans driver updates out to websocket clients. Notify never
// blocks: a client whose send buffer is full is disconnected.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	store    *registry.Store
	maxConns int

	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once
}

// NewBroadcaster starts a broadcaster that sends a full snapshot every
// snapshotInterval. maxConns <= 0 means unlimited.
func NewBroadcaster(store *registry.Store, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	if snapshotInterval <= 0 {
		snapshotInterval = 5 * time.Second
	}
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		store:          store,
		maxConns:       maxConns,
		snapshotTicker: time.NewTicker(snapshotInterval),
		stop:           make(chan struct{}),
	}
	go b.snapshotLoop()
	return b
}

// AddClient registers conn and queues an initial snapshot for it.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		b:    b,
		send: make(chan []byte, clientSendBuffer),
	}

	data, err := json.Marshal(b.snapshot())
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c.send <- data
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// Notify implements driver.Notifier.
func (b *Broadcaster) Notify(u driver.Update) {
	switch u.Kind {
	case driver.UpdateMessage:
		b.broadcast(WSMessage{
			Type:    MsgMessage,
			Payload: newMessagePayload(u.ID, u.Data),
		})
	default:
		p := SessionPayload{Event: u.Kind.String(), Session: u.Info}
		if u.Err != nil {
			p.Error = u.Err.Error()
		}
		b.broadcast(WSMessage{Type: MsgSession, Payload: p})
	}
}

// Stop halts the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.stop)

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}

func (b *Broadcaster) snapshot() WSMessage {
	return WSMessage{
		Type:    MsgSnapshot,
		Payload: SnapshotPayload{Sessions: b.store.GetAll()},
	}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshot())
		case <-b.stop:
			return
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("observer: marshal error: %v", err)
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.Printf("observer: client %s too slow, disconnecting", c.id)
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
