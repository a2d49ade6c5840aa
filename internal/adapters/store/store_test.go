package store

import (
	"context"
	"testing"

	"github.com/nchirkov/relay/internal/domain"
)

func TestPolicyStoreReturnsNilForUnknownChannel(t *testing.T) {
	s := NewPolicyStore()
	pol, err := s.Policy(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if pol != nil {
		t.Errorf("want nil policy, got %+v", pol)
	}
}

func TestPolicyStoreNotifiesOnPutAndDelete(t *testing.T) {
	s := NewPolicyStore()
	var changes []domain.ChannelID
	cancel := s.SubscribeChanges(func(ch domain.ChannelID) {
		changes = append(changes, ch)
	})

	s.Put(&domain.ChannelPolicy{ID: "c1", Name: "one", Public: true})
	s.Delete("c1")

	if len(changes) != 2 || changes[0] != "c1" || changes[1] != "c1" {
		t.Fatalf("changes = %v, want [c1 c1]", changes)
	}

	cancel()
	s.Put(&domain.ChannelPolicy{ID: "c2", Name: "two"})
	if len(changes) != 2 {
		t.Error("cancelled subscription still notified")
	}
}

func TestProfileSubscribeDeliversCurrentValueFirst(t *testing.T) {
	s := NewProfileStore()
	if err := s.Put(domain.Profile{ID: "alice", Username: "Alice"}); err != nil {
		t.Fatal(err)
	}

	var seen []string
	cancel := s.Subscribe("alice", func(p domain.Profile) {
		seen = append(seen, p.Username)
	})
	defer cancel()

	if len(seen) != 1 || seen[0] != "Alice" {
		t.Fatalf("immediate delivery = %v, want current value", seen)
	}

	if err := s.Put(domain.Profile{ID: "alice", Username: "Alicia"}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[1] != "Alicia" {
		t.Errorf("update delivery = %v", seen)
	}
}

func TestProfileSubscribeUnknownUserDeliversNothingImmediately(t *testing.T) {
	s := NewProfileStore()
	calls := 0
	cancel := s.Subscribe("ghost", func(domain.Profile) { calls++ })
	defer cancel()
	if calls != 0 {
		t.Errorf("delivered %d values for unknown user", calls)
	}
}

func TestProfilePutRejectsInvalidNames(t *testing.T) {
	s := NewProfileStore()
	if err := s.Put(domain.Profile{ID: "alice"}); err == nil {
		t.Error("empty username accepted")
	}
}

func TestChatRecentPagination(t *testing.T) {
	s := NewChatStore()
	for i := 1; i <= 5; i++ {
		err := s.Persist(context.Background(), domain.ChatMessage{
			ID: string(rune('0' + i)), ChannelID: "c1", Text: "m", Ts: int64(i * 100),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// Newest page.
	page, err := s.Recent(context.Background(), "c1", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Ts != 400 || page[1].Ts != 500 {
		t.Fatalf("newest page = %+v", page)
	}

	// Page strictly older than the previous one.
	page, err = s.Recent(context.Background(), "c1", 2, 400)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Ts != 200 || page[1].Ts != 300 {
		t.Fatalf("older page = %+v", page)
	}

	// Exhausted history.
	page, _ = s.Recent(context.Background(), "c1", 2, 100)
	if len(page) != 0 {
		t.Errorf("want empty page past the oldest message, got %+v", page)
	}
}
