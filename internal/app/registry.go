// Package app holds the relay core: connection registry, access policy
// enforcement, signal buffering and point-to-point signal routing.
package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

// Registry is the authoritative in-memory map of channel → connections.
// Per-channel slices keep join order; over-capacity eviction trims from
// the tail and FindReachable picks the first open connection so results
// stay deterministic.
type Registry struct {
	mu       sync.RWMutex
	channels map[domain.ChannelID][]*core.Conn
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[domain.ChannelID][]*core.Conn)}
}

// Register appends the connection to the channel's membership.
// No-op on an empty channel id.
func (r *Registry) Register(ch domain.ChannelID, c *core.Conn) {
	if ch == "" {
		return
	}
	r.mu.Lock()
	r.channels[ch] = append(r.channels[ch], c)
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(c.SID)).Str("channel", string(ch)).Msg("registered")
}

// Unregister removes the connection from its channel, deleting the
// membership entry once empty. Idempotent.
func (r *Registry) Unregister(c *core.Conn) {
	ch := c.ChannelID()
	if ch == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.channels[ch]
	if !ok {
		return
	}
	for i, other := range conns {
		if other == c {
			conns = append(conns[:i], conns[i+1:]...)
			if len(conns) == 0 {
				delete(r.channels, ch)
			} else {
				r.channels[ch] = conns
			}
			log.Info().Str("module", "app.registry").Str("sid", string(c.SID)).Str("channel", string(ch)).Msg("unregistered")
			return
		}
	}
}

// Count reports current membership size.
func (r *Registry) Count(ch domain.ChannelID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[ch])
}

// Members is a presence snapshot in join order.
func (r *Registry) Members(ch domain.ChannelID) []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.channels[ch]
	out := make([]domain.User, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.User())
	}
	return out
}

// Snapshot copies the membership slice for iteration outside the lock.
func (r *Registry) Snapshot(ch domain.ChannelID) []*core.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.channels[ch]
	out := make([]*core.Conn, len(conns))
	copy(out, conns)
	return out
}

// FindReachable returns the first open connection for the user in the
// channel, or nil. First-in-join-order keeps reconnect races
// deterministic.
func (r *Registry) FindReachable(ch domain.ChannelID, uid domain.UserID) *core.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.channels[ch] {
		if c.UserID() == uid && c.Sig.IsOpen() {
			return c
		}
	}
	return nil
}

// Broadcast sends the payload to every open connection in the channel.
// Closed or backpressured connections are skipped, not errors.
func (r *Registry) Broadcast(ch domain.ChannelID, payload core.Frame) {
	r.broadcast(ch, nil, payload)
}

// BroadcastExcept is Broadcast minus one connection (presence events
// are not echoed to the member they describe).
func (r *Registry) BroadcastExcept(ch domain.ChannelID, except *core.Conn, payload core.Frame) {
	r.broadcast(ch, except, payload)
}

func (r *Registry) broadcast(ch domain.ChannelID, except *core.Conn, payload core.Frame) {
	for _, c := range r.Snapshot(ch) {
		if c == except || !c.Sig.IsOpen() {
			continue
		}
		if err := c.Sig.TrySend(payload); err != nil {
			log.Debug().Str("module", "app.registry").Str("sid", string(c.SID)).Err(err).Msg("broadcast skip")
		}
	}
}

// ChannelInfo is a read-only view for the channel-list API.
type ChannelInfo struct {
	ID          domain.ChannelID `json:"channelId"`
	MemberCount int              `json:"memberCount"`
}

func (r *Registry) Channels() []ChannelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ChannelInfo, 0, len(r.channels))
	for ch, conns := range r.channels {
		out = append(out, ChannelInfo{ID: ch, MemberCount: len(conns)})
	}
	return out
}
