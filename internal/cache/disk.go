package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jlabarca/ghost/internal/ghosterr"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// sweepInterval is how often Disk's background goroutine removes expired
// entries and unused per-key locks, per spec.md §4.1.
const sweepInterval = 5 * time.Minute

// Disk is a one-file-per-key Cache backend. Each key's filename is the
// URL-safe base64 of its SHA-256 digest; writes go through a temporary
// file then an atomic rename, grounded on the teacher's
// internal/storage/dolt/bootstrap.go temp-then-rename idiom for durable
// writes.
type Disk struct {
	dir string

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex

	closeOnce sync.Once
	stopSweep chan struct{}
}

// NewDisk creates a Disk cache rooted at dir, creating it if necessary,
// and starts the periodic sweep goroutine.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ghosterr.Wrap(ghosterr.StorageOperationFailed, "create cache dir", err)
	}
	d := &Disk{
		dir:       dir,
		keyLocks:  make(map[string]*sync.Mutex),
		stopSweep: make(chan struct{}),
	}
	go d.sweepLoop()
	return d, nil
}

func (d *Disk) filename(key string) string {
	sum := sha256.Sum256([]byte(key))
	return base64.URLEncoding.EncodeToString(sum[:])
}

func (d *Disk) path(key string) string {
	return filepath.Join(d.dir, d.filename(key))
}

func (d *Disk) lockFor(key string) *sync.Mutex {
	d.keyLocksMu.Lock()
	defer d.keyLocksMu.Unlock()
	l, ok := d.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		d.keyLocks[key] = l
	}
	return l
}

func (d *Disk) readEntry(key string) (ghosttypes.CacheEntry, bool, error) {
	data, err := os.ReadFile(d.path(key))
	if os.IsNotExist(err) {
		return ghosttypes.CacheEntry{}, false, nil
	}
	if err != nil {
		return ghosttypes.CacheEntry{}, false, ghosterr.Wrap(ghosterr.StorageOperationFailed, "read cache entry", err)
	}
	var entry ghosttypes.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return ghosttypes.CacheEntry{}, false, ghosterr.Wrap(ghosterr.StorageOperationFailed, "decode cache entry", err)
	}
	return entry, true, nil
}

func (d *Disk) writeEntry(key string, entry ghosttypes.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return ghosterr.Wrap(ghosterr.StorageOperationFailed, "encode cache entry", err)
	}

	final := d.path(key)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return ghosterr.Wrap(ghosterr.StorageOperationFailed, "write cache temp file", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return ghosterr.Wrap(ghosterr.StorageOperationFailed, "rename cache temp file", err)
	}
	return nil
}

func (d *Disk) Get(_ context.Context, key string, out any) (bool, error) {
	lock := d.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	entry, ok, err := d.readEntry(key)
	if err != nil || !ok {
		return false, err
	}
	found, err := decodeEntry(entry, out, time.Now())
	if err != nil {
		return false, err
	}
	if !found {
		_ = os.Remove(d.path(key))
	}
	return found, nil
}

func (d *Disk) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	entry, err := encodeEntry(value, ttl)
	if err != nil {
		return err
	}
	lock := d.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return d.writeEntry(key, entry)
}

func (d *Disk) Delete(_ context.Context, key string) (bool, error) {
	lock := d.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	_, err := os.Stat(d.path(key))
	existed := err == nil
	if existed {
		if rmErr := os.Remove(d.path(key)); rmErr != nil {
			return false, ghosterr.Wrap(ghosterr.StorageOperationFailed, "delete cache entry", rmErr)
		}
	}
	return existed, nil
}

func (d *Disk) Exists(_ context.Context, key string) (bool, error) {
	lock := d.lockFor(key)
	lock.Lock()
	entry, ok, err := d.readEntry(key)
	lock.Unlock()
	if err != nil || !ok {
		return false, err
	}
	return !entry.IsExpired(time.Now()), nil
}

func (d *Disk) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	lock := d.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	entry, ok, err := d.readEntry(key)
	if err != nil || !ok {
		return false, err
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		entry.ExpiresAt = &exp
	} else {
		entry.ExpiresAt = nil
	}
	return true, d.writeEntry(key, entry)
}

func (d *Disk) Clear(_ context.Context) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return ghosterr.Wrap(ghosterr.StorageOperationFailed, "list cache dir", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		_ = os.Remove(filepath.Join(d.dir, e.Name()))
	}
	return nil
}

func (d *Disk) IsAvailable(_ context.Context) bool {
	_, err := os.Stat(d.dir)
	return err == nil
}

// Close stops the sweep goroutine. Idempotent.
func (d *Disk) Close() error {
	d.closeOnce.Do(func() { close(d.stopSweep) })
	return nil
}

func (d *Disk) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopSweep:
			return
		case <-ticker.C:
			d.sweepOnce()
		}
	}
}

// sweepOnce deletes expired entries and drops per-key locks for files that
// no longer exist, as required by spec.md §4.1.
func (d *Disk) sweepOnce() {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return
	}
	now := time.Now()
	live := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		path := filepath.Join(d.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry ghosttypes.CacheEntry
		if json.Unmarshal(data, &entry) != nil {
			continue
		}
		if entry.IsExpired(now) {
			_ = os.Remove(path)
			continue
		}
		live[e.Name()] = struct{}{}
	}

	d.keyLocksMu.Lock()
	for key := range d.keyLocks {
		if _, ok := live[d.filename(key)]; !ok {
			delete(d.keyLocks, key)
		}
	}
	d.keyLocksMu.Unlock()
}
