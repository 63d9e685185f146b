package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jlabarca/ghost/internal/ghosterr"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// Redis is the remote-broker-backed Cache, grounded on
// sawpanic-cryptorun's data/cache/cache.go redisCache adapter. Selected
// when RedisConnection/GHOST_REDIS_CONNECTION is configured; it also
// backs the Bus's remote mode and the Data decorator stack's Core/Cached
// layers for the KV half of IData.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already-constructed *redis.Client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// DialRedis parses addr (a redis:// URL or host:port) and connects.
func DialRedis(addr string) (*Redis, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	return NewRedis(redis.NewClient(opts)), nil
}

func (r *Redis) Get(ctx context.Context, key string, out any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis get", err)
	}
	var entry ghosttypes.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return false, ghosterr.Wrap(ghosterr.StorageOperationFailed, "decode redis entry", err)
	}
	// Redis enforces the key's TTL itself, including one changed by
	// Expire, so the ExpiresAt stamped by Set is not consulted here.
	entry.ExpiresAt = nil
	return decodeEntry(entry, out, time.Now())
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	entry, err := encodeEntry(value, ttl)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return ghosterr.Wrap(ghosterr.StorageOperationFailed, "encode redis entry", err)
	}
	// redis TTL of 0 means "no expiry", matching our ttl<=0 contract.
	redisTTL := ttl
	if redisTTL < 0 {
		redisTTL = 0
	}
	if err := r.client.Set(ctx, key, data, redisTTL).Err(); err != nil {
		return ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis set", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis del", err)
	}
	return n > 0, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis exists", err)
	}
	return n > 0, nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return r.client.Persist(ctx, key).Result()
	}
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis expire", err)
	}
	return ok, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis flushdb", err)
	}
	return nil
}

func (r *Redis) IsAvailable(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return r.client.Ping(pingCtx).Err() == nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Client exposes the underlying *redis.Client for components (Bus remote
// mode) that need Pub/Sub beyond the Cache contract.
func (r *Redis) Client() *redis.Client { return r.client }
