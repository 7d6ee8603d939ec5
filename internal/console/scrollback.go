package console

import "github.com/eapache/queue"

// Scrollback keeps the most recent lines for one session. Older lines are
// evicted once the limit is reached.
type Scrollback struct {
	q     *queue.Queue
	limit int
}

func NewScrollback(limit int) *Scrollback {
	if limit <= 0 {
		limit = 500
	}
	return &Scrollback{q: queue.New(), limit: limit}
}

func (s *Scrollback) Push(l line) {
	if s.q.Length() == s.limit {
		s.q.Remove()
	}
	s.q.Add(l)
}

func (s *Scrollback) Len() int {
	return s.q.Length()
}

// Tail returns up to n of the newest lines, oldest first.
func (s *Scrollback) Tail(n int) []line {
	size := s.q.Length()
	if n > size || n < 0 {
		n = size
	}
	out := make([]line, 0, n)
	for i := size - n; i < size; i++ {
		out = append(out, s.q.Get(i).(line))
	}
	return out
}

type lineKind int

const (
	lineIn lineKind = iota
	lineOut
	lineNotice
)

type line struct {
	kind lineKind
	text string
}
