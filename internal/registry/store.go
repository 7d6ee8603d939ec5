package registry

import (
	"sort"
	"sync"
)

// Store keys SessionInfo by session id. Reads hand out copies, so callers may
// keep what they get.
type Store struct {
	mu       sync.RWMutex
	sessions map[int]*SessionInfo
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[int]*SessionInfo),
	}
}

func (s *Store) Get(id int) (*SessionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	copy := *info
	return &copy, true
}

// GetAll returns every session ordered by id.
func (s *Store) GetAll() []*SessionInfo {
	s.mu.RLock()
	result := make([]*SessionInfo, 0, len(s.sessions))
	for _, info := range s.sessions {
		copy := *info
		result = append(result, &copy)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *Store) Update(info *SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *info
	s.sessions[info.ID] = &copy
}

// Mutate applies fn to the stored entry under the write lock and returns a
// copy of the result. It reports false when id is unknown.
func (s *Store) Mutate(id int, fn func(*SessionInfo)) (*SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	fn(info)
	copy := *info
	return &copy, true
}

func (s *Store) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ActiveCount counts sessions that are connecting or connected.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, info := range s.sessions {
		if info.IsLive() {
			count++
		}
	}
	return count
}
