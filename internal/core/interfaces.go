// Package core holds the connection model, the error taxonomy and the
// interfaces of the external collaborators the relay depends on.
// Collaborator implementations live in adapters.
package core

import (
	"context"

	"github.com/nchirkov/relay/internal/domain"
)

// Identity is the verified result of a credential check.
type Identity struct {
	UserID      domain.UserID
	Username    string
	GlobalAdmin bool
}

// CredentialVerifier turns an opaque credential into a verified
// identity. Failures are reported as *AuthError.
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// PolicyStore serves channel policy snapshots and pushes change
// notifications. Policy returns (nil, nil) when the channel has no
// policy at all.
type PolicyStore interface {
	Policy(ctx context.Context, id domain.ChannelID) (*domain.ChannelPolicy, error)
	// SubscribeChanges registers a handler invoked with the channel id
	// on every policy replacement or removal.
	SubscribeChanges(h func(domain.ChannelID)) (cancel func())
}

// ProfileStore serves user profiles and per-user change subscriptions.
// Subscribe delivers the latest known profile immediately, then every
// future update, until cancelled.
type ProfileStore interface {
	Profile(ctx context.Context, id domain.UserID) (*domain.Profile, error)
	Subscribe(id domain.UserID, h func(domain.Profile)) (cancel func())
}

// ChatStore persists channel messages and serves history pages.
type ChatStore interface {
	Persist(ctx context.Context, msg domain.ChatMessage) error
	// Recent returns up to limit messages older than beforeTs
	// (beforeTs == 0 means newest first page), oldest first.
	Recent(ctx context.Context, ch domain.ChannelID, limit int, beforeTs int64) ([]domain.ChatMessage, error)
}
