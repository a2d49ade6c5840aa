package store

import (
	"context"
	"sync"

	"github.com/nchirkov/relay/internal/domain"
)

// ProfileStore keeps user profiles with per-user subscriptions.
type ProfileStore struct {
	mu   sync.RWMutex
	byID map[domain.UserID]domain.Profile
	subs map[domain.UserID]map[int]func(domain.Profile)
	next int
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		byID: make(map[domain.UserID]domain.Profile),
		subs: make(map[domain.UserID]map[int]func(domain.Profile)),
	}
}

// Profile returns (nil, nil) for an unknown user.
func (s *ProfileStore) Profile(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.byID[id]; ok {
		return &p, nil
	}
	return nil, nil
}

// Put stores the profile and fans the update out to subscribers.
func (s *ProfileStore) Put(p domain.Profile) error {
	if err := domain.ValidUsername(p.Username); err != nil {
		return err
	}
	s.mu.Lock()
	s.byID[p.ID] = p
	handlers := make([]func(domain.Profile), 0, len(s.subs[p.ID]))
	for _, h := range s.subs[p.ID] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(p)
	}
	return nil
}

// Subscribe delivers the current profile immediately when one is known,
// then every future update until cancelled.
func (s *ProfileStore) Subscribe(id domain.UserID, h func(domain.Profile)) (cancel func()) {
	s.mu.Lock()
	sid := s.next
	s.next++
	if s.subs[id] == nil {
		s.subs[id] = make(map[int]func(domain.Profile))
	}
	s.subs[id][sid] = h
	current, known := s.byID[id]
	s.mu.Unlock()

	if known {
		h(current)
	}
	return func() {
		s.mu.Lock()
		if m := s.subs[id]; m != nil {
			delete(m, sid)
			if len(m) == 0 {
				delete(s.subs, id)
			}
		}
		s.mu.Unlock()
	}
}
