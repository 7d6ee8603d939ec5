// Package network is the control plane of the session manager. A Manager
// takes connect requests, starts one connection worker per successful dial and
// reports lifecycle events. It has no goroutine of its own: a single
// designated goroutine drives it by calling ProcessCommands and PollEvent.
package network

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"github.com/agent-racer/tcpsess/internal/codec"
	"github.com/agent-racer/tcpsess/internal/session"
)

// ErrQueueFull is returned by Submit when the command queue is saturated.
var ErrQueueFull = fmt.Errorf("network: command queue full: %w", iox.ErrWouldBlock)

// ConnectRequest asks the manager to open one session.
type ConnectRequest struct {
	ID   int
	Name string
	Addr string // host:port

	// Proxy and Encoding are accepted for callers that already carry them.
	// Neither is used yet: connections are always direct and payloads are
	// written as given.
	Proxy    string
	Encoding string
}

// Options fixes the queue capacities of the manager and of every session it
// starts. Zero values take the defaults.
type Options struct {
	CommandQueue  int
	EventQueue    int
	MessageBuffer int
	ControlQueue  int
	OutboundQueue int
	ReadBuffer    int
	DialTimeout   time.Duration // 0 waits for the OS
	KeepAlive     time.Duration // 0 uses the OS default, negative disables
}

func (o Options) withDefaults() Options {
	def := session.DefaultConfig()
	if o.CommandQueue <= 0 {
		o.CommandQueue = 32
	}
	o.CommandQueue = ceilPow2(o.CommandQueue)
	if o.EventQueue <= 0 {
		o.EventQueue = 32
	}
	if o.MessageBuffer <= 0 {
		o.MessageBuffer = def.MessageBuffer
	}
	if o.ControlQueue <= 0 {
		o.ControlQueue = def.ControlQueue
	}
	if o.OutboundQueue <= 0 {
		o.OutboundQueue = def.OutboundQueue
	}
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = def.ReadBuffer
	}
	return o
}

// ceilPow2 rounds n up to a power of two; lfq rings are sized that way.
func ceilPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Manager is the session manager. Submit, ProcessCommands and PollEvent must
// all be called from the same goroutine: the command queue is single-producer
// single-consumer and is not guarded otherwise.
type Manager[M any] struct {
	commands lfq.SPSC[ConnectRequest]
	events   chan session.Event[M]
	factory  codec.Factory[M]
	dialer   *net.Dialer
	cfg      session.Config
	dials    atomix.Uint32
}

// New returns a manager that builds one decoder per connection with factory.
func New[M any](factory codec.Factory[M], opts Options) *Manager[M] {
	opts = opts.withDefaults()
	m := &Manager[M]{
		events:  make(chan session.Event[M], opts.EventQueue),
		factory: factory,
		dialer: &net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: opts.KeepAlive,
		},
		cfg: session.Config{
			ControlQueue:  opts.ControlQueue,
			OutboundQueue: opts.OutboundQueue,
			MessageBuffer: opts.MessageBuffer,
			ReadBuffer:    opts.ReadBuffer,
		},
	}
	m.commands.Init(opts.CommandQueue)
	return m
}

// Submit queues a connect request and returns at once. Nothing is dialed
// until ProcessCommands picks the request up.
func (m *Manager[M]) Submit(req ConnectRequest) error {
	if err := m.commands.Enqueue(&req); err != nil {
		return ErrQueueFull
	}
	return nil
}

// ProcessCommands takes up to limit pending requests off the queue (one when
// limit <= 0) and starts an asynchronous connect for each. It never blocks and
// returns the number of connects it started.
func (m *Manager[M]) ProcessCommands(limit int) int {
	if limit <= 0 {
		limit = 1
	}
	started := 0
	for started < limit {
		req, err := m.commands.Dequeue()
		if err != nil {
			break
		}
		m.connect(req)
		started++
	}
	return started
}

// PollEvent returns the next lifecycle event, if one is pending.
func (m *Manager[M]) PollEvent() (session.Event[M], bool) {
	select {
	case ev := <-m.events:
		return ev, true
	default:
		return session.Event[M]{}, false
	}
}

// Dials reports how many connect attempts have been started.
func (m *Manager[M]) Dials() uint32 {
	return m.dials.Load()
}

func (m *Manager[M]) connect(req ConnectRequest) {
	m.dials.Add(1)
	if req.Proxy != "" {
		log.Printf("network: session %d: proxy %q is not supported, connecting directly", req.ID, req.Proxy)
	}
	log.Printf("network: session %d (%s): connecting to %s", req.ID, req.Name, req.Addr)

	go func() {
		err := session.Connect(context.Background(), m.dialer, req.ID, req.Name, req.Addr, m.factory, m.cfg, m.publish)
		if err != nil {
			log.Printf("network: session %d: connect failed: %v", req.ID, err)
			m.publish(session.Event[M]{Kind: session.EventConnectFailed, ID: req.ID, Err: err})
		}
	}()
}

// publish waits for room on the event queue, so lifecycle events are never
// lost; a caller that stops polling stalls workers at their next event.
func (m *Manager[M]) publish(ev session.Event[M]) {
	m.events <- ev
}
