package bus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jlabarca/ghost/internal/ghosterr"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// Remote is the full server-side pattern subscription Bus backend,
// grounded on sawpanic-cryptorun's go-redis stack: PSUBSCRIBE does the
// prefix:* wildcard matching on the broker itself, so Remote needs no
// local fan-out table (unlike Local).
type Remote struct {
	client *goredis.Client

	mu     sync.Mutex
	closed bool
	subs   []*remoteSub
}

type remoteSub struct {
	pubsub *goredis.PubSub
	sub    *Subscription
}

// NewRemote wraps an existing *goredis.Client as a Bus.
func NewRemote(client *goredis.Client) *Remote {
	return &Remote{client: client}
}

// redisPattern converts our "prefix:*" wildcard syntax (matching one or
// more trailing segments) to a glob Redis understands. A literal channel
// pattern is passed through unchanged.
func redisPattern(pattern string) string {
	if strings.HasSuffix(pattern, ":*") {
		return pattern + "?*"
	}
	return pattern
}

func (b *Remote) Publish(ctx context.Context, channel string, message any, ttl time.Duration) error {
	return b.publish(ctx, channel, message, ttl)
}

func (b *Remote) PublishWithPriority(ctx context.Context, channel string, message any, priority ghosttypes.Priority) error {
	// Redis Pub/Sub has no native priority lane; the priority is not
	// written into the published payload, and delivery order is not
	// reordered.
	return b.publish(ctx, channel, message, ttl(priority))
}

func ttl(_ ghosttypes.Priority) time.Duration { return 0 }

func (b *Remote) publish(ctx context.Context, channel string, message any, ttlOverride time.Duration) error {
	data, err := json.Marshal(message)
	if err != nil {
		return ghosterr.Wrap(ghosterr.ValidationError, "marshal bus message", err)
	}

	if ttlOverride <= 0 {
		ttlOverride = DefaultMessageTTL
	}
	key := "message:" + channel + ":" + uuid.NewString()
	if err := b.client.Set(ctx, key, data, ttlOverride).Err(); err != nil {
		return ghosterr.Wrap(ghosterr.StorageConnectionFailed, "persist bus message", err)
	}
	if err := b.client.SAdd(ctx, "active_channels", channel).Err(); err != nil {
		return ghosterr.Wrap(ghosterr.StorageConnectionFailed, "record active channel", err)
	}

	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return ghosterr.Wrap(ghosterr.StorageConnectionFailed, "publish to redis", err)
	}
	return nil
}

func (b *Remote) Subscribe(ctx context.Context, channelPattern string) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ghosterr.Wrap(ghosterr.InvalidOperation, "subscribe on closed bus", nil)
	}
	b.mu.Unlock()

	var pubsub *goredis.PubSub
	if strings.HasSuffix(channelPattern, ":*") {
		pubsub = b.client.PSubscribe(ctx, redisPattern(channelPattern))
	} else {
		pubsub = b.client.Subscribe(ctx, channelPattern)
	}

	sub := newSubscription(channelPattern, subscriberBuffer, func() { _ = pubsub.Close() })
	rs := &remoteSub{pubsub: pubsub, sub: sub}

	b.mu.Lock()
	b.subs = append(b.subs, rs)
	b.mu.Unlock()

	go b.pump(ctx, rs)
	return sub, nil
}

func (b *Remote) pump(ctx context.Context, rs *remoteSub) {
	ch := rs.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			rs.sub.Close()
			return
		case m, ok := <-ch:
			if !ok {
				rs.sub.Close()
				return
			}
			rs.sub.deliver(Message{
				Topic:     m.Channel,
				Data:      []byte(m.Payload),
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func (b *Remote) Unsubscribe(channel string) {
	b.mu.Lock()
	var remaining []*remoteSub
	var toClose []*remoteSub
	for _, rs := range b.subs {
		if rs.sub.Pattern() == channel {
			toClose = append(toClose, rs)
		} else {
			remaining = append(remaining, rs)
		}
	}
	b.subs = remaining
	b.mu.Unlock()

	for _, rs := range toClose {
		rs.sub.Close()
	}
}

func (b *Remote) GetSubscriberCount(channel string) int64 {
	ctx := context.Background()
	n, err := b.client.PubSubNumSub(ctx, channel).Result()
	if err != nil {
		return 0
	}
	return n[channel]
}

func (b *Remote) GetActiveChannels() []string {
	ctx := context.Background()
	out, err := b.client.SMembers(ctx, "active_channels").Result()
	if err != nil {
		return nil
	}
	return out
}

func (b *Remote) ClearChannel(ctx context.Context, channel string) error {
	if err := b.client.SRem(ctx, "active_channels", channel).Err(); err != nil {
		return ghosterr.Wrap(ghosterr.StorageConnectionFailed, "clear active channel", err)
	}
	b.Unsubscribe(channel)
	return nil
}

func (b *Remote) IsAvailable(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return b.client.Ping(pingCtx).Err() == nil
}

func (b *Remote) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, rs := range subs {
		rs.sub.Close()
	}
	return b.client.Close()
}
