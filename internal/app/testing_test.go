package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

// fakeSig records frames instead of writing to a socket.
type fakeSig struct {
	mu          sync.Mutex
	open        bool
	rejectSends bool
	frames      []core.Frame
	closeCode   int
	closeReason string
}

func newFakeSig() *fakeSig {
	return &fakeSig{open: true}
}

func (s *fakeSig) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || s.rejectSends {
		return ErrSendFailed
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSig) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSig) CloseWithReason(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.closeCode = code
	s.closeReason = reason
}

func (s *fakeSig) sent() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.frames))
	for _, f := range s.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSig) sentTypes() []string {
	var types []string
	for _, m := range s.sent() {
		if t, ok := m["type"].(string); ok {
			types = append(types, t)
		}
	}
	return types
}

// ErrSendFailed is what fakeSig reports for a closed/overloaded peer.
var ErrSendFailed = &core.ProtocolError{Text: "send failed"}

// memberConn builds a connection that already completed join.
func memberConn(t *testing.T, sid string, uid domain.UserID, name string, ch domain.ChannelID, role domain.Role) (*core.Conn, *fakeSig) {
	t.Helper()
	sig := newFakeSig()
	c := core.NewConn(core.SessionID(sid), sig)
	if !c.BeginJoin() {
		t.Fatalf("BeginJoin failed for %s", sid)
	}
	if !c.PromoteToMember(uid, name, false, ch, role) {
		t.Fatalf("PromoteToMember failed for %s", sid)
	}
	return c, sig
}
