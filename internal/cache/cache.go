// Package cache implements C1: a key/value store with optional per-key
// TTL, used by the Bus for at-rest message persistence and by the Data
// decorator stack's Cached layer.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jlabarca/ghost/internal/ghosterr"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// Cache is the contract every backend (memory, disk, redis) implements.
// Get/Set are generic over the caller's value type at the call site via
// json (de)serialization internally; the Go interface itself stays on
// []byte + TypeName, matching ghosttypes.CacheEntry.
type Cache interface {
	// Get returns the decoded value for key, or ok=false if absent or
	// expired. It never creates an entry.
	Get(ctx context.Context, key string, out any) (ok bool, err error)

	// Set upserts key, overwriting any previous value and TTL. ttl <= 0
	// means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes key and reports whether a value existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists is a presence test that does not deserialize the value.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire re-stamps key's TTL, returning false if key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// IsAvailable is a liveness probe; always true for in-process backends.
	IsAvailable(ctx context.Context) bool

	// Close releases backend resources (sweep goroutines, file handles,
	// network connections). Idempotent.
	Close() error
}

// encodeEntry marshals value into a ghosttypes.CacheEntry ready for a
// backend to persist.
func encodeEntry(value any, ttl time.Duration) (ghosttypes.CacheEntry, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return ghosttypes.CacheEntry{}, ghosterr.Wrap(ghosterr.StorageOperationFailed, "encode cache value", err)
	}
	entry := ghosttypes.CacheEntry{
		Value:    data,
		TypeName: typeName(value),
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		entry.ExpiresAt = &exp
	}
	return entry, nil
}

// decodeEntry unmarshals entry.Value into out, returning ok=false (no
// error) if entry is expired.
func decodeEntry(entry ghosttypes.CacheEntry, out any, now time.Time) (bool, error) {
	if entry.IsExpired(now) {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return false, ghosterr.Wrap(ghosterr.StorageOperationFailed, "decode cache value", err)
	}
	return true, nil
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}
