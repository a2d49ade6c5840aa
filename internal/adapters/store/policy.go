// Package store holds the in-memory collaborator implementations:
// channel policies, user profiles and chat history. Each store pushes
// change notifications to subscribers, delivering the latest known
// value immediately on subscribe where one exists.
package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/domain"
)

// PolicyStore keeps channel policy snapshots. Put replaces the whole
// snapshot; consumers never see partial edits.
type PolicyStore struct {
	mu   sync.RWMutex
	byID map[domain.ChannelID]*domain.ChannelPolicy
	subs map[int]func(domain.ChannelID)
	next int
}

func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		byID: make(map[domain.ChannelID]*domain.ChannelPolicy),
		subs: make(map[int]func(domain.ChannelID)),
	}
}

func (s *PolicyStore) Policy(ctx context.Context, id domain.ChannelID) (*domain.ChannelPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id], nil
}

// Put installs a replacement snapshot and notifies subscribers.
func (s *PolicyStore) Put(p *domain.ChannelPolicy) {
	s.mu.Lock()
	s.byID[p.ID] = p
	s.mu.Unlock()
	log.Info().Str("module", "store.policy").Str("channel", string(p.ID)).Msg("policy replaced")
	s.notify(p.ID)
}

// Delete removes the policy entirely; members get evicted downstream.
func (s *PolicyStore) Delete(id domain.ChannelID) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
	log.Info().Str("module", "store.policy").Str("channel", string(id)).Msg("policy deleted")
	s.notify(id)
}

func (s *PolicyStore) SubscribeChanges(h func(domain.ChannelID)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = h
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *PolicyStore) notify(ch domain.ChannelID) {
	s.mu.RLock()
	handlers := make([]func(domain.ChannelID), 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()
	for _, h := range handlers {
		h(ch)
	}
}
