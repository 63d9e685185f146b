package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"
)

// Message is one item in a Subscription's lazy sequence: the raw bytes
// published on Topic (which may differ from the subscription's pattern
// when the pattern is a wildcard), plus the publish timestamp.
type Message struct {
	Topic     string
	Data      []byte
	Timestamp time.Time
}

// Subscription is a finite, restartable pull loop over messages matching
// one channel pattern. Callers obtain one from Bus.Subscribe and drain it
// with Recv until it reports ok=false (cancelled or the Bus closed).
type Subscription struct {
	pattern string
	ch      chan Message
	done    chan struct{}
	cancel  func()

	lastTopic atomic.Pointer[string]
}

func newSubscription(pattern string, buffer int, cancel func()) *Subscription {
	return &Subscription{
		pattern: pattern,
		ch:      make(chan Message, buffer),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
}

// Pattern returns the channel pattern this subscription was opened with.
func (s *Subscription) Pattern() string { return s.pattern }

// Recv blocks until a message is available, ctx is done, or the
// subscription is closed. ok is false only in the latter two cases —
// Subscribe/Recv never surface deserialization errors here; decoding
// happens in Receive, which returns the error to its caller.
func (s *Subscription) Recv(ctx context.Context) (Message, bool) {
	select {
	case m, open := <-s.ch:
		if !open {
			return Message{}, false
		}
		topic := m.Topic
		s.lastTopic.Store(&topic)
		return m, true
	case <-s.done:
		return Message{}, false
	case <-ctx.Done():
		return Message{}, false
	}
}

// LastTopic returns the actual matched topic for the most recently
// received item on this subscription — the per-caller state the spec
// calls "thread-local to the caller", modeled here as subscription-scoped
// state since each Go caller owns its own Subscription value.
func (s *Subscription) LastTopic() string {
	if p := s.lastTopic.Load(); p != nil {
		return *p
	}
	return ""
}

// Close terminates the subscription, causing any blocked or future Recv
// to return ok=false. Safe to call more than once.
func (s *Subscription) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Subscription) deliver(m Message) {
	select {
	case s.ch <- m:
	case <-s.done:
	}
}

// Receive pulls the next message from sub and JSON-decodes it into T.
// Deserialization errors are returned to the caller (with ok=true) rather
// than silently skipped here; the malformed message has already been
// consumed, so the caller can skip it and call Receive again.
func Receive[T any](ctx context.Context, sub *Subscription) (T, bool, error) {
	var zero T
	msg, ok := sub.Recv(ctx)
	if !ok {
		return zero, false, nil
	}
	var out T
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		return zero, true, err
	}
	return out, true, nil
}
