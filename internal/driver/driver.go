// Package driver owns a session manager on behalf of a front end. A Driver is
// not safe for concurrent use: the goroutine that calls Step is the manager's
// designated goroutine, and every other method must be called from it too.
package driver

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"code.hybscloud.com/iox"
	"github.com/agent-racer/tcpsess/internal/codec"
	"github.com/agent-racer/tcpsess/internal/config"
	"github.com/agent-racer/tcpsess/internal/network"
	"github.com/agent-racer/tcpsess/internal/registry"
	"github.com/agent-racer/tcpsess/internal/session"
)

var (
	ErrDuplicateID    = errors.New("driver: session id already in use")
	ErrUnknownSession = errors.New("driver: unknown session")
)

type UpdateKind int

const (
	UpdateStarted UpdateKind = iota
	UpdateEnded
	UpdateFailed
	UpdateMessage
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateStarted:
		return "started"
	case UpdateEnded:
		return "ended"
	case UpdateFailed:
		return "failed"
	case UpdateMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Update is one observable change produced by Step.
type Update struct {
	Kind UpdateKind
	ID   int
	Info *registry.SessionInfo // registry entry after the change
	Data []byte                // UpdateMessage only
	Err  error
}

// Notifier receives every update Step produces, in order. Notify is called on
// the driver's goroutine and must not block.
type Notifier interface {
	Notify(u Update)
}

type Driver struct {
	mgr        *network.Manager[[]byte]
	store      *registry.Store
	notifier   Notifier
	maxPerCall int

	sessions map[int]*session.Session[[]byte]
	requests map[int]network.ConnectRequest
	endings  map[int]string
	closing  bool
}

// New builds a driver whose sessions split their input into lines.
func New(cfg *config.Config, store *registry.Store) *Driver {
	d := &Driver{
		mgr:        network.New(codec.NewLineFactory(), cfg.Network.Options()),
		store:      store,
		maxPerCall: cfg.Network.MaxPerCall,
		sessions:   make(map[int]*session.Session[[]byte]),
		requests:   make(map[int]network.ConnectRequest),
		endings:    make(map[int]string),
	}
	for _, s := range cfg.Sessions {
		d.endings[s.ID] = s.LineEnding
	}
	return d
}

// SetNotifier installs n; pass nil to remove it.
func (d *Driver) SetNotifier(n Notifier) {
	d.notifier = n
}

func (d *Driver) Store() *registry.Store {
	return d.store
}

// Sessions returns a snapshot of every known session, sorted by id.
func (d *Driver) Sessions() []*registry.SessionInfo {
	return d.store.GetAll()
}

// Connect submits req unless its id is already connecting or connected.
func (d *Driver) Connect(req network.ConnectRequest) error {
	if info, ok := d.store.Get(req.ID); ok && info.IsLive() {
		return ErrDuplicateID
	}
	if err := d.mgr.Submit(req); err != nil {
		return err
	}
	d.requests[req.ID] = req
	d.store.Update(&registry.SessionInfo{
		ID:    req.ID,
		Name:  req.Name,
		Addr:  req.Addr,
		State: registry.Connecting,
	})
	return nil
}

// Reconnect submits the last request made for id again. It is never done
// automatically.
func (d *Driver) Reconnect(id int) error {
	req, ok := d.requests[id]
	if !ok {
		return ErrUnknownSession
	}
	return d.Connect(req)
}

// Send queues payload on the session without waiting.
func (d *Driver) Send(id int, payload []byte) error {
	s, err := d.live(id)
	if err != nil {
		return err
	}
	if err := s.TrySend(payload); err != nil {
		return err
	}
	d.store.Mutate(id, func(info *registry.SessionInfo) { info.BytesOut += len(payload) })
	return nil
}

// SendLine sends text followed by the session's configured line ending.
func (d *Driver) SendLine(id int, text string) error {
	ending, ok := d.endings[id]
	if !ok {
		ending = config.DefaultLineEnding
	}
	return d.Send(id, []byte(text+ending))
}

// Close asks the session to stop. Closing a session that has already ended
// returns session.ErrNotConnected.
func (d *Driver) Close(id int) error {
	s, err := d.live(id)
	if err != nil {
		return err
	}
	return s.Close()
}

// CloseAll asks every connected session to stop.
func (d *Driver) CloseAll() {
	for id, s := range d.sessions {
		if err := s.Close(); err != nil && !errors.Is(err, session.ErrNotConnected) {
			log.Printf("driver: close session %d: %v", id, err)
		}
	}
}

// Shutdown closes every session and keeps stepping until none is connecting
// or connected, or ctx is done. Sessions whose dial completes during the
// shutdown are closed as soon as they start. It returns the updates produced
// on the way.
func (d *Driver) Shutdown(ctx context.Context) []Update {
	d.closing = true
	defer func() { d.closing = false }()

	d.CloseAll()
	var all []Update
	var bo iox.Backoff
	for d.pending() > 0 {
		if ctx.Err() != nil {
			log.Printf("driver: shutdown gave up with %d sessions pending", d.pending())
			break
		}
		updates := d.Step(-1)
		if len(updates) == 0 {
			bo.Wait()
			continue
		}
		bo.Reset()
		all = append(all, updates...)
	}
	return all
}

// Live returns the number of connected sessions.
func (d *Driver) Live() int {
	return len(d.sessions)
}

// pending counts sessions that are connecting or connected.
func (d *Driver) pending() int {
	n := 0
	for _, info := range d.store.GetAll() {
		if info.IsLive() {
			n++
		}
	}
	return n
}

func (d *Driver) live(id int) (*session.Session[[]byte], error) {
	if s, ok := d.sessions[id]; ok {
		return s, nil
	}
	if _, ok := d.store.Get(id); ok {
		return nil, session.ErrNotConnected
	}
	return nil, ErrUnknownSession
}

// Step runs one control-plane iteration: it starts pending connects, applies
// every pending lifecycle event and collects up to maxMessages decoded lines
// per session; a negative maxMessages drains everything pending. It never
// blocks.
func (d *Driver) Step(maxMessages int) []Update {
	d.mgr.ProcessCommands(d.maxPerCall)

	var updates []Update
	for {
		ev, ok := d.mgr.PollEvent()
		if !ok {
			break
		}
		updates = d.apply(updates, ev)
	}

	ids := make([]int, 0, len(d.sessions))
	for id := range d.sessions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		updates = d.collect(updates, id, d.sessions[id], maxMessages)
	}

	if d.notifier != nil {
		for _, u := range updates {
			d.notifier.Notify(u)
		}
	}
	return updates
}

func (d *Driver) apply(updates []Update, ev session.Event[[]byte]) []Update {
	switch ev.Kind {
	case session.EventStarted:
		d.sessions[ev.ID] = ev.Session
		info := d.mutate(ev.ID, ev.Session.Name, func(info *registry.SessionInfo) {
			info.State = registry.Active
			info.StartedAt = time.Now()
			info.EndedAt = time.Time{}
			info.LastError = ""
		})
		log.Printf("driver: session %d started (%s)", ev.ID, ev.Session.Addr)
		if d.closing {
			if err := ev.Session.Close(); err != nil && !errors.Is(err, session.ErrNotConnected) {
				log.Printf("driver: close session %d: %v", ev.ID, err)
			}
		}
		return append(updates, Update{Kind: UpdateStarted, ID: ev.ID, Info: info})

	case session.EventEnded:
		// The worker closed the message channel before publishing, so
		// whatever it decoded last is still buffered there.
		if s, ok := d.sessions[ev.ID]; ok {
			updates = d.collect(updates, ev.ID, s, -1)
			delete(d.sessions, ev.ID)
		}
		info := d.mutate(ev.ID, "", func(info *registry.SessionInfo) {
			info.State = registry.Ended
			info.EndedAt = time.Now()
			if ev.Err != nil {
				info.LastError = ev.Err.Error()
			}
		})
		log.Printf("driver: session %d ended", ev.ID)
		return append(updates, Update{Kind: UpdateEnded, ID: ev.ID, Info: info, Err: ev.Err})

	case session.EventConnectFailed:
		info := d.mutate(ev.ID, "", func(info *registry.SessionInfo) {
			info.State = registry.Failed
			info.EndedAt = time.Now()
			if ev.Err != nil {
				info.LastError = ev.Err.Error()
			}
		})
		return append(updates, Update{Kind: UpdateFailed, ID: ev.ID, Info: info, Err: ev.Err})
	}
	return updates
}

// collect drains up to limit messages from s; a negative limit drains until
// the channel is empty or closed.
func (d *Driver) collect(updates []Update, id int, s *session.Session[[]byte], limit int) []Update {
	for n := 0; limit < 0 || n < limit; n++ {
		select {
		case msg, ok := <-s.Messages():
			if !ok {
				return updates
			}
			info := d.mutate(id, "", func(info *registry.SessionInfo) {
				info.MessagesIn++
				info.BytesIn += len(msg)
			})
			updates = append(updates, Update{Kind: UpdateMessage, ID: id, Info: info, Data: msg})
		default:
			return updates
		}
	}
	return updates
}

// mutate updates the registry entry for id, creating it for sessions that
// were started without going through Connect.
func (d *Driver) mutate(id int, name string, fn func(*registry.SessionInfo)) *registry.SessionInfo {
	if info, ok := d.store.Mutate(id, fn); ok {
		return info
	}
	info := &registry.SessionInfo{ID: id, Name: name}
	fn(info)
	d.store.Update(info)
	return info
}
