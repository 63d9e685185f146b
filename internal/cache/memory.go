package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// Memory is a concurrent in-process map-backed Cache. Grounded on the
// teacher's in-process map-of-structs-with-mutex idiom used throughout
// internal/storage for non-durable state.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]ghosttypes.CacheEntry
}

// NewMemory creates an empty in-memory Cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]ghosttypes.CacheEntry)}
}

func (m *Memory) Get(_ context.Context, key string, out any) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	found, err := decodeEntry(entry, out, time.Now())
	if err != nil {
		return false, err
	}
	if !found {
		// Opportunistically drop the expired entry.
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
	}
	return found, nil
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	entry, err := encodeEntry(value, ttl)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return !entry.IsExpired(time.Now()), nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		entry.ExpiresAt = &exp
	} else {
		entry.ExpiresAt = nil
	}
	m.entries[key] = entry
	return true, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]ghosttypes.CacheEntry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) IsAvailable(_ context.Context) bool { return true }

func (m *Memory) Close() error { return nil }
