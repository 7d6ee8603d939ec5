package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/agent-racer/tcpsess/internal/codec"
)

// Config fixes the channel capacities and read buffer of one session.
type Config struct {
	ControlQueue  int
	OutboundQueue int
	MessageBuffer int
	ReadBuffer    int
}

// DefaultConfig mirrors the capacities the manager uses when none are given.
func DefaultConfig() Config {
	return Config{
		ControlQueue:  32,
		OutboundQueue: 32,
		MessageBuffer: 512,
		ReadBuffer:    4096,
	}
}

// Connect dials addr and, on success, starts a worker for the connection.
// The worker publishes EventStarted before anything else. A dial error is
// returned to the caller and nothing is published.
func Connect[M any](ctx context.Context, d *net.Dialer, id int, name, addr string, factory codec.Factory[M], cfg Config, publish func(Event[M])) error {
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	Start(conn, id, name, factory, cfg, publish)
	return nil
}

// Start hands an established connection to a new worker and returns the handle
// that is also delivered with EventStarted.
func Start[M any](conn net.Conn, id int, name string, factory codec.Factory[M], cfg Config, publish func(Event[M])) *Session[M] {
	control := make(chan Command, cfg.ControlQueue)
	outbound := make(chan []byte, cfg.OutboundQueue)
	messages := make(chan M, cfg.MessageBuffer)
	done := make(chan struct{})

	s := &Session[M]{
		ID:       id,
		Name:     name,
		Addr:     conn.RemoteAddr().String(),
		control:  control,
		outbound: outbound,
		messages: messages,
		done:     done,
	}

	w := &worker[M]{
		id:       id,
		conn:     conn,
		dec:      factory(messages),
		buf:      make([]byte, cfg.ReadBuffer),
		control:  control,
		outbound: outbound,
		reads:    make(chan readResult),
		resume:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		messages: messages,
		done:     done,
		publish:  publish,
	}
	go w.run(s)
	return s
}

type readResult struct {
	n   int
	err error
}

// worker owns the socket and the decoder of one session. readLoop is the only
// other goroutine touching the socket, and it shares buf by handing off: it
// does not read again until the worker signals resume.
type worker[M any] struct {
	id   int
	conn net.Conn
	dec  codec.Decoder
	buf  []byte

	control  <-chan Command
	outbound <-chan []byte
	reads    chan readResult
	resume   chan struct{}
	stop     chan struct{}

	messages chan M
	done     chan struct{}
	publish  func(Event[M])
}

func (w *worker[M]) run(s *Session[M]) {
	w.publish(Event[M]{Kind: EventStarted, ID: w.id, Session: s})

	go w.readLoop()
	err := w.loop()
	if err != nil {
		log.Printf("session %d: %v", w.id, err)
	}
	w.shutdown()

	w.publish(Event[M]{Kind: EventEnded, ID: w.id, Err: err})
}

// loop waits on whichever source is ready first and handles exactly that one
// before waiting again. It returns nil when the peer closed the connection or
// a Close command was processed.
func (w *worker[M]) loop() error {
	for {
		select {
		case p := <-w.outbound:
			if err := w.write(p); err != nil {
				return err
			}

		case cmd := <-w.control:
			switch cmd {
			case CmdClose:
				log.Printf("session %d: close requested", w.id)
				return w.flush()
			default:
				log.Printf("session %d: ignoring unknown command %d", w.id, cmd)
			}

		case r := <-w.reads:
			if r.n == 0 && errors.Is(r.err, io.EOF) {
				log.Printf("session %d: peer closed connection", w.id)
				return nil
			}
			if r.n > 0 || r.err != nil {
				w.dec.Consume(w.buf[:r.n], r.err)
			}
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read: %w", r.err)
			}
			w.resume <- struct{}{}
		}
	}
}

func (w *worker[M]) readLoop() {
	for {
		n, err := w.conn.Read(w.buf)
		select {
		case w.reads <- readResult{n: n, err: err}:
		case <-w.stop:
			return
		}
		if err != nil {
			return
		}
		select {
		case <-w.resume:
		case <-w.stop:
			return
		}
	}
}

func (w *worker[M]) write(p []byte) error {
	if _, err := w.conn.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// flush writes the payloads already queued when Close arrived.
func (w *worker[M]) flush() error {
	for {
		select {
		case p := <-w.outbound:
			if err := w.write(p); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// shutdown closes the write half first so the peer sees a clean end of
// stream, then the read half, then the socket. Only the worker sends on
// messages, so closing it here is safe.
func (w *worker[M]) shutdown() {
	close(w.stop)
	if hc, ok := w.conn.(interface{ CloseWrite() error }); ok {
		_ = hc.CloseWrite()
	}
	if hc, ok := w.conn.(interface{ CloseRead() error }); ok {
		_ = hc.CloseRead()
	}
	if err := w.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("session %d: close: %v", w.id, err)
	}
	close(w.messages)
	close(w.done)
}
