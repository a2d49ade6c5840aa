package app

import (
	"errors"
	"testing"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

func testRelay() *Relay {
	return &Relay{Registry: NewRegistry(), Buffer: NewSignalBuffer()}
}

func TestRelayMediaForwardsToReachableTarget(t *testing.T) {
	r := testRelay()
	sender, _ := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	target, targetSig := memberConn(t, "s2", "bob", "Bob", "c1", domain.RoleStaff)
	r.Registry.Register("c1", sender)
	r.Registry.Register("c1", target)

	err := r.RelayMedia(sender, SignalMessage{Type: SignalOffer, TargetID: "bob", SDP: "v=0"})
	if err != nil {
		t.Fatalf("RelayMedia: %v", err)
	}

	sent := targetSig.sent()
	if len(sent) != 1 {
		t.Fatalf("target got %d frames, want 1", len(sent))
	}
	fw := sent[0]
	if fw["type"] != "offer" || fw["channelId"] != "c1" || fw["sdp"] != "v=0" {
		t.Errorf("unexpected forward: %v", fw)
	}
	if fw["from"] != "alice" || fw["senderId"] != "alice" {
		t.Errorf("sender id missing from forward: %v", fw)
	}
	if fw["username"] != "Alice" || fw["targetUserId"] != "bob" {
		t.Errorf("presentation fields wrong: %v", fw)
	}
}

func TestRelayMediaObserverCannotOffer(t *testing.T) {
	r := testRelay()
	sender, _ := memberConn(t, "s1", "olga", "Olga", "c1", domain.RoleObserver)
	target, targetSig := memberConn(t, "s2", "bob", "Bob", "c1", domain.RoleStaff)
	r.Registry.Register("c1", sender)
	r.Registry.Register("c1", target)

	err := r.RelayMedia(sender, SignalMessage{Type: SignalOffer, TargetID: "bob"})
	var pe *core.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("want protocol error, got %v", err)
	}
	if len(targetSig.frames) != 0 {
		t.Error("rejected offer was forwarded anyway")
	}

	// Observers may still answer and trickle candidates.
	if err := r.RelayMedia(sender, SignalMessage{Type: SignalAnswer, TargetID: "bob", SDP: "v=0"}); err != nil {
		t.Errorf("observer answer rejected: %v", err)
	}
	if err := r.RelayMedia(sender, SignalMessage{Type: SignalCandidate, TargetID: "bob"}); err != nil {
		t.Errorf("observer candidate rejected: %v", err)
	}
}

func TestRelayCrossChannelForbidden(t *testing.T) {
	r := testRelay()
	sender, _ := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	r.Registry.Register("c1", sender)

	err := r.RelayMedia(sender, SignalMessage{Type: SignalOffer, ChannelID: "c2", TargetID: "bob"})
	var pe *core.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("want protocol error for cross-channel signal, got %v", err)
	}
}

func TestRelayMissingTarget(t *testing.T) {
	r := testRelay()
	sender, _ := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	r.Registry.Register("c1", sender)

	var pe *core.ProtocolError
	if err := r.RelayMedia(sender, SignalMessage{Type: SignalOffer}); !errors.As(err, &pe) {
		t.Errorf("media without target: got %v", err)
	}
	if err := r.RelayControl(sender, SignalMessage{Type: SignalEnded}); !errors.As(err, &pe) {
		t.Errorf("control without target: got %v", err)
	}
}

func TestRelayMediaBuffersSilentlyWhenTargetAbsent(t *testing.T) {
	r := testRelay()
	sender, senderSig := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	r.Registry.Register("c1", sender)

	err := r.RelayMedia(sender, SignalMessage{Type: SignalCandidate, TargetID: "bob"})
	if err != nil {
		t.Fatalf("buffered media signal reported failure: %v", err)
	}
	if r.Buffer.Pending("c1", "bob") != 1 {
		t.Error("signal not buffered for absent target")
	}
	if len(senderSig.frames) != 0 {
		t.Error("sender was notified about buffered media signal")
	}
}

func TestRelayControlNotifiesSenderWhenTargetAbsent(t *testing.T) {
	r := testRelay()
	sender, _ := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	r.Registry.Register("c1", sender)

	err := r.RelayControl(sender, SignalMessage{Type: SignalCancelled, TargetID: "bob"})
	if !errors.Is(err, core.ErrTargetUnreachable) {
		t.Fatalf("want ErrTargetUnreachable, got %v", err)
	}
	if r.Buffer.Pending("c1", "bob") != 1 {
		t.Error("control signal not buffered")
	}
}

func TestFlushToDeliversBufferedSignalsOnJoin(t *testing.T) {
	r := testRelay()
	sender, _ := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	r.Registry.Register("c1", sender)

	_ = r.RelayMedia(sender, SignalMessage{Type: SignalCandidate, TargetID: "bob", SDP: "a"})
	_ = r.RelayMedia(sender, SignalMessage{Type: SignalCandidate, TargetID: "bob", SDP: "b"})

	joiner, joinerSig := memberConn(t, "s2", "bob", "Bob", "c1", domain.RoleStaff)
	r.Registry.Register("c1", joiner)
	r.FlushTo(joiner)

	sent := joinerSig.sent()
	if len(sent) != 2 {
		t.Fatalf("flushed %d signals, want 2", len(sent))
	}
	if sent[0]["sdp"] != "a" || sent[1]["sdp"] != "b" {
		t.Errorf("enqueue order not preserved: %v", sent)
	}
	if r.Buffer.Pending("c1", "bob") != 0 {
		t.Error("queue not drained after flush")
	}
}

func TestFlushToRetainsWhenJoinerUnreachable(t *testing.T) {
	r := testRelay()
	sender, _ := memberConn(t, "s1", "alice", "Alice", "c1", domain.RoleStaff)
	r.Registry.Register("c1", sender)
	_ = r.RelayMedia(sender, SignalMessage{Type: SignalCandidate, TargetID: "bob"})

	joiner, joinerSig := memberConn(t, "s2", "bob", "Bob", "c1", domain.RoleStaff)
	joinerSig.rejectSends = true
	r.Registry.Register("c1", joiner)
	r.FlushTo(joiner)

	if r.Buffer.Pending("c1", "bob") != 1 {
		t.Error("signal dropped although delivery failed")
	}
}
