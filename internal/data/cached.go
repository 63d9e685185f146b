package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jlabarca/ghost/internal/cache"
)

// Cached is an L1 read-through cache in front of an inner IData, reusing
// the Cache abstraction (C1) so its backend selection (memory/disk/
// redis) flows from the same configuration, per spec.md §3.
type Cached struct {
	inner IData
	c     cache.Cache
	ttl   time.Duration
}

// NewCached wraps inner with c as the L1, caching entries for ttl.
func NewCached(inner IData, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{inner: inner, c: c, ttl: ttl}
}

func (d *Cached) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cacheKey := "data:kv:" + key
	var cached []byte
	if found, err := d.c.Get(ctx, cacheKey, &cached); err == nil && found {
		return cached, true, nil
	}
	val, found, err := d.inner.Get(ctx, key)
	if err != nil || !found {
		return val, found, err
	}
	_ = d.c.Set(ctx, cacheKey, val, d.ttl)
	return val, true, nil
}

func (d *Cached) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := d.inner.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_, err := d.c.Delete(ctx, "data:kv:"+key)
	return err
}

func (d *Cached) Delete(ctx context.Context, key string) error {
	if err := d.inner.Delete(ctx, key); err != nil {
		return err
	}
	_, err := d.c.Delete(ctx, "data:kv:"+key)
	return err
}

func (d *Cached) Exists(ctx context.Context, key string) (bool, error) {
	cacheKey := "data:exists:" + key
	var cached bool
	if found, err := d.c.Get(ctx, cacheKey, &cached); err == nil && found {
		return cached, nil
	}
	exists, err := d.inner.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	_ = d.c.Set(ctx, cacheKey, exists, d.ttl)
	return exists, nil
}

func (d *Cached) GetBatch(ctx context.Context, keys []string) ([]KVEntry, error) {
	// Batch reads bypass the L1 individually rather than pipelining cache
	// lookups; the hit rate for bulk reads is typically low enough that the
	// simpler pass-through is the right default.
	return d.inner.GetBatch(ctx, keys)
}

func (d *Cached) SetBatch(ctx context.Context, entries []KVEntry, ttl time.Duration) error {
	if err := d.inner.SetBatch(ctx, entries, ttl); err != nil {
		return err
	}
	for _, e := range entries {
		_, _ = d.c.Delete(ctx, "data:kv:"+e.Key)
	}
	return nil
}

func (d *Cached) QuerySingle(ctx context.Context, sql string, args ...any) (Row, error) {
	cacheKey := queryCacheKey("single", sql, args)
	var cached Row
	if found, err := d.c.Get(ctx, cacheKey, &cached); err == nil && found {
		return cached, nil
	}
	row, err := d.inner.QuerySingle(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	_ = d.c.Set(ctx, cacheKey, row, d.ttl)
	return row, nil
}

func (d *Cached) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	cacheKey := queryCacheKey("many", sql, args)
	var cached []Row
	if found, err := d.c.Get(ctx, cacheKey, &cached); err == nil && found {
		return cached, nil
	}
	rows, err := d.inner.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	_ = d.c.Set(ctx, cacheKey, rows, d.ttl)
	return rows, nil
}

// isMutatingSQL heuristically classifies sql as data-mutating, per
// spec.md §9's acknowledgment that this classifier is left abstract.
func isMutatingSQL(sql string) bool {
	trimmed := strings.TrimSpace(strings.ToUpper(sql))
	for _, verb := range []string{"INSERT", "UPDATE", "DELETE", "TRUNCATE", "ALTER", "CREATE", "DROP"} {
		if strings.HasPrefix(trimmed, verb) {
			return true
		}
	}
	return false
}

func (d *Cached) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	n, err := d.inner.Execute(ctx, sql, args...)
	if err == nil && isMutatingSQL(sql) {
		d.invalidateQueryCache(ctx)
	}
	return n, err
}

func (d *Cached) ExecuteBatch(ctx context.Context, statements []string, args [][]any) (int64, error) {
	n, err := d.inner.ExecuteBatch(ctx, statements, args)
	if err == nil {
		for _, s := range statements {
			if isMutatingSQL(s) {
				d.invalidateQueryCache(ctx)
				break
			}
		}
	}
	return n, err
}

// invalidateQueryCache drops the whole SQL-result cache namespace after a
// recognized mutation, since per-statement invalidation would require
// tracking which cached queries read which tables.
func (d *Cached) invalidateQueryCache(ctx context.Context) {
	_ = d.c.Clear(ctx)
}

func (d *Cached) Begin(ctx context.Context) (Tx, error) {
	// Transactions bypass Cached: Begin is delegated straight to the inner
	// layer, and neither the statements run inside the transaction nor
	// its Commit invalidate the L1 cache.
	return d.inner.Begin(ctx)
}

func (d *Cached) TableExists(ctx context.Context, table string) (bool, error) {
	return d.inner.TableExists(ctx, table)
}

func (d *Cached) GetTableNames(ctx context.Context) ([]string, error) {
	return d.inner.GetTableNames(ctx)
}

func (d *Cached) GetDatabaseClient() any { return d.inner.GetDatabaseClient() }

func (d *Cached) Layers() []string { return append([]string{"Cached"}, d.inner.Layers()...) }

func (d *Cached) Close() error { return d.inner.Close() }

func queryCacheKey(kind, sql string, args []any) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte(sql))
	if encoded, err := json.Marshal(args); err == nil {
		h.Write(encoded)
	}
	return fmt.Sprintf("data:query:%s", hex.EncodeToString(h.Sum(nil)))
}
