package core

import (
	"errors"
	"fmt"

	"github.com/nchirkov/relay/internal/domain"
)

// ErrConnClosed aborts work whose connection went away mid-flight.
var ErrConnClosed = errors.New("connection closed")

// ErrTargetUnreachable reports a signal target with no open connection.
// Call-control senders are told; media signals are buffered silently.
var ErrTargetUnreachable = errors.New("target unreachable")

// AuthError: the credential could not be verified.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// AccessDenied carries the admission refusal reason ("blocked",
// "capacity", "not authorized"). The connection is closed after the
// error is surfaced.
type AccessDenied struct {
	Reason string
}

func (e *AccessDenied) Error() string {
	return "access denied: " + e.Reason
}

// ChannelUnavailable: the channel has no policy anymore (or never had one).
type ChannelUnavailable struct {
	Channel domain.ChannelID
}

func (e *ChannelUnavailable) Error() string {
	return fmt.Sprintf("channel %q no longer available", e.Channel)
}

// ProtocolError: malformed or out-of-place client message. The
// connection stays open.
type ProtocolError struct {
	Text string
}

func (e *ProtocolError) Error() string { return e.Text }
