package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

// Hub wires the relay core together and owns connection lifecycle:
// admission, presence, eviction and teardown. Joins and policy
// reconciliation serialize on one mutex so a policy push fully lands
// (evictions and role changes applied) before any later join, and so
// capacity checks cannot race each other.
type Hub struct {
	Registry *Registry
	Buffer   *SignalBuffer
	Relay    *Relay
	Access   *Enforcer

	Verifier core.CredentialVerifier
	Policies core.PolicyStore
	Profiles core.ProfileStore
	Chats    core.ChatStore

	HistoryLimit int

	mu sync.Mutex
}

func NewHub(verifier core.CredentialVerifier, policies core.PolicyStore, profiles core.ProfileStore, chats core.ChatStore) *Hub {
	reg := NewRegistry()
	buf := NewSignalBuffer()
	h := &Hub{
		Registry:     reg,
		Buffer:       buf,
		Relay:        &Relay{Registry: reg, Buffer: buf},
		Verifier:     verifier,
		Policies:     policies,
		Profiles:     profiles,
		Chats:        chats,
		HistoryLimit: 50,
	}
	h.Access = &Enforcer{Registry: reg, Policies: policies, Evictor: h}
	return h
}

// Start subscribes the hub to policy change notifications. The returned
// cancel releases the subscription.
func (h *Hub) Start(ctx context.Context) (cancel func()) {
	return h.Policies.SubscribeChanges(func(ch domain.ChannelID) {
		log.Info().Str("module", "app.hub").Str("channel", string(ch)).Msg("policy changed, reconciling")
		h.mu.Lock()
		defer h.mu.Unlock()
		h.Access.Reconcile(ctx, ch)
	})
}

// Join runs the full admission sequence for a connection: verify the
// credential, resolve profile and policy, admit, register and announce.
// Collaborator calls happen before the hub lock is taken; connection
// state is re-checked afterwards, so a join finishing after transport
// close never registers.
func (h *Hub) Join(ctx context.Context, c *core.Conn, ch domain.ChannelID, token string) error {
	if !c.BeginJoin() {
		if c.State() == core.StateMember {
			return &core.ProtocolError{Text: "already joined a channel"}
		}
		return core.ErrConnClosed
	}

	id, err := h.Verifier.Verify(ctx, token)
	if err != nil {
		c.AbortJoin()
		return err
	}

	username := id.Username
	if prof, err := h.Profiles.Profile(ctx, id.UserID); err != nil {
		// Fall back to the credential's display name hint.
		log.Warn().Err(err).Str("module", "app.hub").Str("user", string(id.UserID)).Msg("profile fetch failed")
	} else if prof != nil && prof.Username != "" {
		username = prof.Username
	}

	pol, err := h.Policies.Policy(ctx, ch)
	if err != nil {
		c.AbortJoin()
		return err
	}
	if pol == nil {
		c.AbortJoin()
		return &core.ChannelUnavailable{Channel: ch}
	}

	h.mu.Lock()
	adm := EvaluateAdmission(pol, id.UserID, id.GlobalAdmin)
	if !adm.Allow {
		h.mu.Unlock()
		c.AbortJoin()
		return &core.AccessDenied{Reason: adm.Reason}
	}
	if !EvaluateCapacity(pol, h.Registry.Count(ch)) {
		h.mu.Unlock()
		c.AbortJoin()
		return &core.AccessDenied{Reason: ReasonCapacity}
	}
	if !c.PromoteToMember(id.UserID, username, id.GlobalAdmin, ch, adm.Role) {
		// Transport closed while we were awaiting collaborators.
		h.mu.Unlock()
		return core.ErrConnClosed
	}
	h.Registry.Register(ch, c)
	h.mu.Unlock()

	c.SetProfileCancel(h.Profiles.Subscribe(id.UserID, func(p domain.Profile) {
		h.onProfileUpdate(c, p)
	}))

	h.announce(ch, "user-joined", c)
	log.Info().Str("module", "app.hub").Str("sid", string(c.SID)).Str("channel", string(ch)).
		Str("user", string(id.UserID)).Str("role", string(adm.Role)).Msg("joined")
	return nil
}

// Leave removes a member from its channel without touching the
// transport. A connection belongs to at most one channel for its
// lifetime, so after leaving it cannot join again.
func (h *Hub) Leave(c *core.Conn) {
	if c.State() != core.StateMember {
		return
	}
	log.Info().Str("module", "app.hub").Str("sid", string(c.SID)).Str("channel", string(c.ChannelID())).Msg("left")
	h.Teardown(c)
}

// Teardown releases everything a connection owns: profile subscription,
// registry membership, presence. Idempotent; called on transport close
// and on voluntary leave. Takes the hub lock so it cannot interleave
// with a join completing for the same connection.
func (h *Hub) Teardown(c *core.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.teardownLocked(c)
}

func (h *Hub) teardownLocked(c *core.Conn) {
	wasMember := c.State() == core.StateMember
	ch := c.ChannelID()
	c.SetState(core.StateClosed)
	c.ReleaseProfile()
	if wasMember {
		h.Registry.Unregister(c)
		h.announce(ch, "user-left", c)
	}
	c.ClearMembership()
}

// Evict closes a connection for a policy reason: explicit error first
// so the client can show it, then a policy-violation close. Runs under
// the hub lock (reconciliation holds it through the Evictor).
func (h *Hub) Evict(c *core.Conn, reason string) {
	log.Info().Str("module", "app.hub").Str("sid", string(c.SID)).Str("reason", reason).Msg("evicting")
	_ = c.Sig.TrySend(ErrorFrame(reason))
	h.teardownLocked(c)
	c.Sig.CloseWithReason(websocket.ClosePolicyViolation, reason)
}

// Chat validates, broadcasts and persists one channel message.
// Observers cannot speak. Persistence failures are logged, never
// surfaced: the message already reached the room.
func (h *Hub) Chat(ctx context.Context, c *core.Conn, text string) error {
	if text == "" {
		return &core.ProtocolError{Text: "empty chat text"}
	}
	if c.Role() == domain.RoleObserver {
		return &core.ProtocolError{Text: "observers cannot send chat"}
	}
	ch := c.ChannelID()
	msg := domain.ChatMessage{
		ID:        uuid.NewString(),
		ChannelID: ch,
		UserID:    c.UserID(),
		From:      c.Username(),
		Text:      text,
		Ts:        time.Now().UnixMilli(),
	}
	h.Registry.Broadcast(ch, marshalFrame(struct {
		Type      string           `json:"type"`
		ChannelID domain.ChannelID `json:"channelId"`
		From      string           `json:"from"`
		Text      string           `json:"text"`
		Ts        int64            `json:"ts"`
	}{"chat", ch, msg.From, msg.Text, msg.Ts}))

	if err := h.Chats.Persist(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("channel", string(ch)).Msg("chat persist failed")
	}
	return nil
}

// History returns a page of messages older than beforeTs for the
// connection's own channel. Store failures degrade to an empty page.
func (h *Hub) History(ctx context.Context, c *core.Conn, ch domain.ChannelID, beforeTs int64) []domain.ChatMessage {
	if ch == "" {
		ch = c.ChannelID()
	}
	msgs, err := h.Chats.Recent(ctx, ch, h.HistoryLimit, beforeTs)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("channel", string(ch)).Msg("history fetch failed")
		return nil
	}
	return msgs
}

// onProfileUpdate applies an externally pushed profile change and lets
// the channel know the display name moved.
func (h *Hub) onProfileUpdate(c *core.Conn, p domain.Profile) {
	if c.State() != core.StateMember || p.Username == "" || p.Username == c.Username() {
		return
	}
	c.SetUsername(p.Username)
	ch := c.ChannelID()
	if ch == "" {
		return
	}
	h.announce(ch, "user-updated", c)
}

// announce broadcasts a presence event, skipping its subject.
func (h *Hub) announce(ch domain.ChannelID, typ string, c *core.Conn) {
	u := c.User()
	h.Registry.BroadcastExcept(ch, c, marshalFrame(struct {
		Type      string           `json:"type"`
		ChannelID domain.ChannelID `json:"channelId"`
		Username  string           `json:"username"`
		UserID    domain.UserID    `json:"userId"`
	}{typ, ch, u.Username, u.ID}))
}

// ErrorFrame is the protocol error payload.
func ErrorFrame(text string) core.Frame {
	return marshalFrame(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{"error", text})
}
