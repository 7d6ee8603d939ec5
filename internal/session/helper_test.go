package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/agent-racer/tcpsess/internal/codec"
)

// scriptedConn is a net.Conn whose reads replay a fixed script and then block
// until Close. Writes fail with writeErr when it is set.
type scriptedConn struct {
	mu       sync.Mutex
	reads    []readResult
	data     [][]byte
	writeErr error
	written  []byte
	closed   chan struct{}
	once     sync.Once
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{closed: make(chan struct{})}
}

func (c *scriptedConn) script(data string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, []byte(data))
	c.reads = append(c.reads, readResult{n: len(data), err: err})
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.reads) > 0 {
		r, d := c.reads[0], c.data[0]
		c.reads, c.data = c.reads[1:], c.data[1:]
		c.mu.Unlock()
		return copy(p, d), r.err
	}
	c.mu.Unlock()
	<-c.closed
	return 0, net.ErrClosed
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptedConn) LocalAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *scriptedConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9} }
func (c *scriptedConn) SetDeadline(time.Time) error { return nil }
func (c *scriptedConn) SetReadDeadline(time.Time) error { return nil }
func (c *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

// countingDecoder wraps a LineDecoder and counts Consume calls.
type countingDecoder struct {
	mu    sync.Mutex
	calls int
	inner codec.Decoder
}

func (d *countingDecoder) Consume(p []byte, err error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	d.inner.Consume(p, err)
}

func (d *countingDecoder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func startTest(t *testing.T, conn net.Conn, id int) (*Session[[]byte], chan Event[[]byte], *countingDecoder) {
	t.Helper()
	events := make(chan Event[[]byte], 8)
	dec := &countingDecoder{}
	factory := func(out chan<- []byte) codec.Decoder {
		dec.inner = codec.NewLineDecoder(out)
		return dec
	}
	s := Start(conn, id, "test", factory, DefaultConfig(), func(ev Event[[]byte]) { events <- ev })
	return s, events, dec
}

func waitEvent(t *testing.T, ch <-chan Event[[]byte]) Event[[]byte] {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event[[]byte]{}
	}
}

func waitDone(t *testing.T, s *Session[[]byte]) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker to stop")
	}
}

// drain reads every message until the channel is closed.
func drain(t *testing.T, s *Session[[]byte]) []string {
	t.Helper()
	var lines []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m, ok := <-s.Messages():
			if !ok {
				return lines
			}
			lines = append(lines, string(m))
		case <-timeout:
			t.Fatalf("timed out draining messages, got %q", lines)
			return nil
		}
	}
}
