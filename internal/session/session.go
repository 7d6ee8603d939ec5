// Package session implements the connection worker that owns one TCP socket,
// and the handle through which callers talk to it.
package session

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("session: not connected")
	ErrQueueFull    = errors.New("session: outbound queue full")
)

// Command is a control request for a running session.
type Command int

const (
	CmdClose Command = iota
)

func (c Command) String() string {
	if c == CmdClose {
		return "close"
	}
	return "unknown"
}

// Session is the caller's handle to one connection. It holds the caller-facing
// ends of the worker's control, outbound and message channels. Dropping a
// Session does not stop its worker; only Close or the peer does.
//
// All methods are safe for concurrent use.
type Session[M any] struct {
	ID   int
	Name string
	Addr string

	control  chan<- Command
	outbound chan<- []byte
	messages <-chan M
	done     <-chan struct{}
}

// Messages returns the channel decoded messages arrive on. It is closed once
// the worker has stopped; messages still buffered remain readable.
func (s *Session[M]) Messages() <-chan M {
	return s.messages
}

// Done is closed when the worker has stopped.
func (s *Session[M]) Done() <-chan struct{} {
	return s.done
}

// Close asks the worker to flush queued payloads, shut the socket down and
// stop. It never blocks. Closing a stopped session returns ErrNotConnected.
func (s *Session[M]) Close() error {
	if s.stopped() {
		return ErrNotConnected
	}
	select {
	case s.control <- CmdClose:
		return nil
	case <-s.done:
		return ErrNotConnected
	default:
		// Queue full: a close is already pending.
		return nil
	}
}

// Send queues p for writing, waiting for room in the outbound queue. The
// worker owns p once Send returns nil.
func (s *Session[M]) Send(ctx context.Context, p []byte) error {
	if s.stopped() {
		return ErrNotConnected
	}
	select {
	case s.outbound <- p:
		return nil
	case <-s.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues p without waiting. It returns ErrQueueFull when the outbound
// queue has no room.
func (s *Session[M]) TrySend(p []byte) error {
	if s.stopped() {
		return ErrNotConnected
	}
	select {
	case s.outbound <- p:
		return nil
	case <-s.done:
		return ErrNotConnected
	default:
		return ErrQueueFull
	}
}

func (s *Session[M]) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
