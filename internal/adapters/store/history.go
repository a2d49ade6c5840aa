package store

import (
	"context"
	"sync"

	"github.com/nchirkov/relay/internal/domain"
)

// maxPerChannel bounds in-memory history; older messages fall off.
const maxPerChannel = 1000

// ChatStore keeps per-channel message history in append order.
type ChatStore struct {
	mu        sync.RWMutex
	byChannel map[domain.ChannelID][]domain.ChatMessage
}

func NewChatStore() *ChatStore {
	return &ChatStore{byChannel: make(map[domain.ChannelID][]domain.ChatMessage)}
}

func (s *ChatStore) Persist(ctx context.Context, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.byChannel[msg.ChannelID], msg)
	if len(msgs) > maxPerChannel {
		msgs = msgs[len(msgs)-maxPerChannel:]
	}
	s.byChannel[msg.ChannelID] = msgs
	return nil
}

// Recent returns up to limit messages with Ts < beforeTs, oldest first.
// beforeTs == 0 asks for the newest page.
func (s *ChatStore) Recent(ctx context.Context, ch domain.ChannelID, limit int, beforeTs int64) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.byChannel[ch]

	end := len(msgs)
	if beforeTs > 0 {
		for end > 0 && msgs[end-1].Ts >= beforeTs {
			end--
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.ChatMessage, end-start)
	copy(out, msgs[start:end])
	return out, nil
}
