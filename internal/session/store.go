package session

import (
	"context"
	"sync"
	"time"

	"github.com/lessoncast/lessoncast/internal/content"
)

// MemoryStore keeps sessions in process memory. Get returns copies so callers
// never share mutable state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, lessonID string, fragmentIndex int, categories content.CategorySet) (*Session, error) {
	if err := validate(lessonID, fragmentIndex); err != nil {
		return nil, err
	}
	st := newSession(lessonID, fragmentIndex, categories, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[st.ID] = st
	return st.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryStore) UpdateFragmentIndex(_ context.Context, id string, fragmentIndex int) error {
	if fragmentIndex < 0 {
		return validate(id, fragmentIndex)
	}
	return s.write(id, func(st *Session) {
		st.FragmentIndex = fragmentIndex
	})
}

func (s *MemoryStore) Touch(_ context.Context, id string) error {
	return s.write(id, func(*Session) {})
}

func (s *MemoryStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if !st.Active {
		return nil
	}
	next := st.Clone()
	next.Active = false
	next.LastUpdatedAt = s.now()
	next.Revision++
	s.sessions[id] = next
	return nil
}

// write replaces the active record with a modified copy, bumping revision and
// timestamp.
func (s *MemoryStore) write(id string, mutate func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok || !st.Active {
		return ErrNotFound
	}
	next := st.Clone()
	mutate(next)
	next.LastUpdatedAt = s.now()
	next.Revision++
	s.sessions[id] = next
	return nil
}

func (s *MemoryStore) Expire(ctx context.Context, now time.Time, maxIdle time.Duration) ([]string, error) {
	s.mu.RLock()
	var idle []string
	for id, st := range s.sessions {
		if st.Active && now.Sub(st.LastUpdatedAt) > maxIdle {
			idle = append(idle, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range idle {
		if err := s.Deactivate(ctx, id); err != nil {
			return nil, err
		}
	}
	return idle, nil
}

// ActiveCount returns the number of active sessions.
func (s *MemoryStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, st := range s.sessions {
		if st.Active {
			count++
		}
	}
	return count
}
