package app

import (
	"testing"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

func TestRegisterAndMembersKeepJoinOrder(t *testing.T) {
	r := NewRegistry()
	a, _ := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	b, _ := memberConn(t, "s2", "bob", "Bob", "c1", domain.RoleStaff)
	r.Register("c1", a)
	r.Register("c1", b)

	members := r.Members("c1")
	if len(members) != 2 {
		t.Fatalf("want 2 members, got %d", len(members))
	}
	if members[0].ID != "alice" || members[1].ID != "bob" {
		t.Errorf("join order not preserved: %+v", members)
	}
}

func TestRegisterEmptyChannelIsNoop(t *testing.T) {
	r := NewRegistry()
	c, _ := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	r.Register("", c)
	if got := len(r.Channels()); got != 0 {
		t.Errorf("empty channel id registered anyway: %d channels", got)
	}
}

func TestUnregisterIsIdempotentAndDeletesEmptyChannel(t *testing.T) {
	r := NewRegistry()
	c, _ := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	r.Register("c1", c)

	r.Unregister(c)
	if n := r.Count("c1"); n != 0 {
		t.Fatalf("want empty channel, got %d", n)
	}
	if len(r.Channels()) != 0 {
		t.Error("empty membership entry not deleted")
	}
	// Second unregister must be a no-op.
	r.Unregister(c)
}

func TestFindReachablePicksFirstOpen(t *testing.T) {
	r := NewRegistry()
	first, firstSig := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	second, _ := memberConn(t, "s2", "alice", "Alice", "c1", domain.RoleStaff)
	r.Register("c1", first)
	r.Register("c1", second)

	if got := r.FindReachable("c1", "alice"); got != first {
		t.Error("expected the earliest open connection")
	}

	firstSig.CloseWithReason(1000, "bye")
	if got := r.FindReachable("c1", "alice"); got != second {
		t.Error("expected fallback to the next open connection")
	}
}

func TestFindReachableMissingUser(t *testing.T) {
	r := NewRegistry()
	if r.FindReachable("c1", "ghost") != nil {
		t.Error("found a connection in an empty channel")
	}
}

func TestBroadcastSkipsClosedConnections(t *testing.T) {
	r := NewRegistry()
	a, aSig := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	b, bSig := memberConn(t, "s2", "bob", "Bob", "c1", domain.RoleStaff)
	r.Register("c1", a)
	r.Register("c1", b)
	bSig.CloseWithReason(1000, "gone")

	r.Broadcast("c1", core.Frame(`{"type":"chat"}`))

	if len(aSig.frames) != 1 {
		t.Errorf("open connection missed broadcast: %d frames", len(aSig.frames))
	}
	if len(bSig.frames) != 0 {
		t.Errorf("closed connection received broadcast")
	}
}

func TestBroadcastExceptSkipsSubject(t *testing.T) {
	r := NewRegistry()
	a, aSig := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	b, bSig := memberConn(t, "s2", "bob", "Bob", "c1", domain.RoleStaff)
	r.Register("c1", a)
	r.Register("c1", b)

	r.BroadcastExcept("c1", a, core.Frame(`{"type":"user-joined"}`))

	if len(aSig.frames) != 0 {
		t.Error("subject received its own presence event")
	}
	if len(bSig.frames) != 1 {
		t.Error("other member missed presence event")
	}
}
