package core

import (
	"sync"

	"github.com/nchirkov/relay/internal/domain"
)

// Frame is a raw wire payload.
type Frame []byte

// SessionID identifies one transport session for logging and dedup.
type SessionID string

// SignalConnection abstracts the messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	IsOpen() bool
	// CloseWithReason sends a close frame with a code and a
	// human-readable reason before tearing the transport down.
	CloseWithReason(code int, reason string)
}

// ConnState is the per-connection protocol state machine tag.
type ConnState int

const (
	StateUnauthenticated ConnState = iota
	StateJoining
	StateMember
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateJoining:
		return "joining"
	case StateMember:
		return "member"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is the registry's view of one live transport session. All fields
// that change after admission are guarded by the embedded mutex;
// channelID and role are set and cleared together so a role can never
// outlive the membership it was granted for.
type Conn struct {
	SID SessionID
	Sig SignalConnection

	mu          sync.RWMutex
	state       ConnState
	userID      domain.UserID
	username    string
	channelID   domain.ChannelID
	role        domain.Role
	globalAdmin bool

	profileCancel func()
}

func NewConn(sid SessionID, sig SignalConnection) *Conn {
	return &Conn{SID: sid, Sig: sig}
}

func (c *Conn) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) SetState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// BeginJoin moves unauthenticated → joining. Reports false when the
// connection is in any other state.
func (c *Conn) BeginJoin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUnauthenticated {
		return false
	}
	c.state = StateJoining
	return true
}

// AbortJoin returns a failed join to unauthenticated unless the
// connection was closed underneath it.
func (c *Conn) AbortJoin() {
	c.mu.Lock()
	if c.state == StateJoining {
		c.state = StateUnauthenticated
	}
	c.mu.Unlock()
}

// PromoteToMember atomically completes a join: identity, membership and
// state flip together, and only if the join was not cancelled by a
// concurrent close. A join finishing after teardown must not register.
func (c *Conn) PromoteToMember(id domain.UserID, username string, globalAdmin bool, ch domain.ChannelID, role domain.Role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateJoining {
		return false
	}
	c.userID = id
	c.username = username
	c.globalAdmin = globalAdmin
	c.channelID = ch
	c.role = role
	c.state = StateMember
	return true
}

func (c *Conn) UserID() domain.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Conn) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Conn) SetUsername(name string) {
	c.mu.Lock()
	c.username = name
	c.mu.Unlock()
}

func (c *Conn) GlobalAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.globalAdmin
}

func (c *Conn) ChannelID() domain.ChannelID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channelID
}

func (c *Conn) Role() domain.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// SetRole reassigns the channel role in place (policy reconciliation).
// No-op for a connection that is not a member of any channel.
func (c *Conn) SetRole(role domain.Role) {
	c.mu.Lock()
	if c.channelID != "" {
		c.role = role
	}
	c.mu.Unlock()
}

// ClearMembership drops channel and role together.
func (c *Conn) ClearMembership() {
	c.mu.Lock()
	c.channelID = ""
	c.role = ""
	c.mu.Unlock()
}

// SetProfileCancel hands the connection ownership of its profile
// subscription. A subscription attached after the connection already
// closed is cancelled on the spot instead of stored.
func (c *Conn) SetProfileCancel(cancel func()) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.profileCancel = cancel
	c.mu.Unlock()
}

// ReleaseProfile cancels the profile subscription exactly once. Safe to
// call again, from eviction and from transport close alike.
func (c *Conn) ReleaseProfile() {
	c.mu.Lock()
	cancel := c.profileCancel
	c.profileCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// User is a read-only view for presence payloads.
func (c *Conn) User() domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.User{ID: c.userID, Username: c.username}
}
