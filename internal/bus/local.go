package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jlabarca/ghost/internal/cache"
	"github.com/jlabarca/ghost/internal/ghosterr"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// subscriberBuffer bounds how far a single slow subscriber can lag behind
// a fast publisher before Publish blocks delivering to it.
const subscriberBuffer = 256

// Local is the Cache-backed Bus implementation: publish persists to
// Cache under message:{channel}:{uuid} and fans out synchronously (in
// publish order) to every matching in-process Subscription.
type Local struct {
	cache cache.Cache

	mu       sync.RWMutex
	subs     map[string][]*Subscription // keyed by pattern
	channels map[string]struct{}        // literal channels ever published to
	keys     map[string][]string        // channel -> persisted message keys
	closed   bool
}

// NewLocal creates a Local bus backed by c for message persistence.
func NewLocal(c cache.Cache) *Local {
	return &Local{
		cache:    c,
		subs:     make(map[string][]*Subscription),
		channels: make(map[string]struct{}),
		keys:     make(map[string][]string),
	}
}

func (b *Local) Publish(ctx context.Context, channel string, message any, ttl time.Duration) error {
	return b.publish(ctx, channel, message, ttl)
}

func (b *Local) PublishWithPriority(ctx context.Context, channel string, message any, _ ghosttypes.Priority) error {
	// Local has no priority-aware delivery path; degrade to Publish per
	// spec.md §4.2.
	return b.publish(ctx, channel, message, 0)
}

func (b *Local) publish(ctx context.Context, channel string, message any, ttl time.Duration) error {
	data, err := json.Marshal(message)
	if err != nil {
		return ghosterr.Wrap(ghosterr.ValidationError, "marshal bus message", err)
	}

	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}
	key := "message:" + channel + ":" + uuid.NewString()
	if b.cache != nil {
		if err := b.cache.Set(ctx, key, message, ttl); err != nil {
			return ghosterr.Wrap(ghosterr.StorageOperationFailed, "persist bus message", err)
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ghosterr.Wrap(ghosterr.InvalidOperation, "publish on closed bus", nil)
	}
	b.channels[channel] = struct{}{}
	b.keys[channel] = append(b.keys[channel], key)
	var targets []*Subscription
	for pattern, subs := range b.subs {
		if MatchesPattern(pattern, channel) {
			targets = append(targets, subs...)
		}
	}
	b.mu.Unlock()

	msg := Message{Topic: channel, Data: data, Timestamp: time.Now().UTC()}
	for _, sub := range targets {
		sub.deliver(msg)
	}
	return nil
}

func (b *Local) Subscribe(ctx context.Context, channelPattern string) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ghosterr.Wrap(ghosterr.InvalidOperation, "subscribe on closed bus", nil)
	}
	sub := newSubscription(channelPattern, subscriberBuffer, nil)
	b.subs[channelPattern] = append(b.subs[channelPattern], sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.detach(sub)
		sub.Close()
	}()

	return sub, nil
}

func (b *Local) detach(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[target.pattern]
	for i, s := range subs {
		if s == target {
			b.subs[target.pattern] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Local) Unsubscribe(channel string) {
	b.mu.Lock()
	subs := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

func (b *Local) GetSubscriberCount(channel string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var n int64
	for pattern, subs := range b.subs {
		if MatchesPattern(pattern, channel) {
			n += int64(len(subs))
		}
	}
	return n
}

func (b *Local) GetActiveChannels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.channels))
	for c := range b.channels {
		out = append(out, c)
	}
	return out
}

func (b *Local) ClearChannel(ctx context.Context, channel string) error {
	b.mu.Lock()
	keys := b.keys[channel]
	delete(b.keys, channel)
	delete(b.channels, channel)
	subs := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	if b.cache != nil {
		for _, key := range keys {
			if _, err := b.cache.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Local) IsAvailable(ctx context.Context) bool {
	if b.cache == nil {
		return true
	}
	return b.cache.IsAvailable(ctx)
}

func (b *Local) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	return nil
}
