package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

// SignalTTL is how long a signal waits for its target to come back.
const SignalTTL = 10 * time.Second

type bufferKey struct {
	Channel domain.ChannelID
	User    domain.UserID
}

type bufferedSignal struct {
	payload   core.Frame
	expiresAt time.Time
}

// SignalBuffer holds pending signals for channel members with no open
// connection. Expiry is enforced lazily at flush time; no background
// sweep. Queues are deleted as soon as they drain.
type SignalBuffer struct {
	mu     sync.Mutex
	queues map[bufferKey][]bufferedSignal
	now    func() time.Time
	ttl    time.Duration
}

func NewSignalBuffer() *SignalBuffer {
	return &SignalBuffer{
		queues: make(map[bufferKey][]bufferedSignal),
		now:    time.Now,
		ttl:    SignalTTL,
	}
}

// Enqueue appends the payload to the target's queue with a fresh TTL.
func (b *SignalBuffer) Enqueue(ch domain.ChannelID, target domain.UserID, payload core.Frame) {
	key := bufferKey{Channel: ch, User: target}
	b.mu.Lock()
	b.queues[key] = append(b.queues[key], bufferedSignal{
		payload:   payload,
		expiresAt: b.now().Add(b.ttl),
	})
	n := len(b.queues[key])
	b.mu.Unlock()
	log.Debug().Str("module", "app.buffer").Str("channel", string(ch)).
		Str("target", string(target)).Int("queued", n).Msg("signal buffered")
}

// Flush walks the target's queue in enqueue order. Expired entries are
// discarded; deliver is called for the rest. Entries whose delivery
// reports the recipient unreachable are retained for a later attempt.
func (b *SignalBuffer) Flush(ch domain.ChannelID, target domain.UserID, deliver func(core.Frame) bool) {
	key := bufferKey{Channel: ch, User: target}

	b.mu.Lock()
	queue, ok := b.queues[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.queues, key)
	b.mu.Unlock()

	now := b.now()
	var retained []bufferedSignal
	delivered, expired := 0, 0
	for _, s := range queue {
		if now.After(s.expiresAt) {
			expired++
			continue
		}
		if !deliver(s.payload) {
			retained = append(retained, s)
			continue
		}
		delivered++
	}

	if len(retained) > 0 {
		b.mu.Lock()
		// Keep retained entries ahead of anything enqueued mid-flush.
		b.queues[key] = append(retained, b.queues[key]...)
		b.mu.Unlock()
	}

	if delivered+expired > 0 {
		log.Debug().Str("module", "app.buffer").Str("channel", string(ch)).Str("target", string(target)).
			Int("delivered", delivered).Int("expired", expired).Int("retained", len(retained)).Msg("flush")
	}
}

// Pending reports the queue length for a key (test and introspection aid).
func (b *SignalBuffer) Pending(ch domain.ChannelID, target domain.UserID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[bufferKey{Channel: ch, User: target}])
}
