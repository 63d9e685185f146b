package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jlabarca/ghost/internal/cache"
)

// fakeCore is an in-memory IData good enough to exercise every
// decorator layer without a real Postgres/Redis connection.
type fakeCore struct {
	mu   sync.Mutex
	kv   map[string][]byte
	rows []Row

	executeCalls int
}

func newFakeCore() *fakeCore {
	return &fakeCore{kv: map[string][]byte{}}
}

func (f *fakeCore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	return v, ok, nil
}

func (f *fakeCore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeCore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.kv, key)
	return nil
}

func (f *fakeCore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.kv[key]
	return ok, nil
}

func (f *fakeCore) GetBatch(ctx context.Context, keys []string) ([]KVEntry, error) {
	out := make([]KVEntry, 0, len(keys))
	for _, k := range keys {
		v, ok, _ := f.Get(ctx, k)
		out = append(out, KVEntry{Key: k, Value: v, Found: ok})
	}
	return out, nil
}

func (f *fakeCore) SetBatch(ctx context.Context, entries []KVEntry, ttl time.Duration) error {
	for _, e := range entries {
		if err := f.Set(ctx, e.Key, e.Value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeCore) QuerySingle(ctx context.Context, sql string, args ...any) (Row, error) {
	rows, err := f.Query(ctx, sql, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (f *fakeCore) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, nil
}

func (f *fakeCore) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	f.mu.Lock()
	f.executeCalls++
	f.mu.Unlock()
	return 1, nil
}

func (f *fakeCore) ExecuteBatch(ctx context.Context, statements []string, args [][]any) (int64, error) {
	var total int64
	for _, s := range statements {
		n, err := f.Execute(ctx, s)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (f *fakeCore) Begin(ctx context.Context) (Tx, error) { return &fakeTx{}, nil }

func (f *fakeCore) TableExists(ctx context.Context, table string) (bool, error) { return true, nil }

func (f *fakeCore) GetTableNames(ctx context.Context) ([]string, error) { return []string{"t"}, nil }

func (f *fakeCore) GetDatabaseClient() any { return f }

func (f *fakeCore) Layers() []string { return []string{"Core"} }

func (f *fakeCore) Close() error { return nil }

type fakeTx struct{ done bool }

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) ([]Row, error) { return nil, nil }
func (t *fakeTx) QuerySingle(ctx context.Context, sql string, args ...any) (Row, error) {
	return nil, nil
}
func (t *fakeTx) Execute(ctx context.Context, sql string, args ...any) (int64, error) { return 0, nil }
func (t *fakeTx) Commit(ctx context.Context) error {
	if t.done {
		return errAlreadyDone
	}
	t.done = true
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return errAlreadyDone
	}
	t.done = true
	return nil
}

var errAlreadyDone = &testErr{"transaction already completed"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func TestEncryptedRoundTrips(t *testing.T) {
	core := newFakeCore()
	enc, err := NewEncrypted(core, []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewEncrypted: %v", err)
	}

	ctx := context.Background()
	if err := enc.Set(ctx, "k", []byte("hello"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, _, _ := core.Get(ctx, "k")
	if string(raw) == "hello" {
		t.Fatal("expected the inner core to store ciphertext, not plaintext")
	}

	got, found, err := enc.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestEncryptedRejectsCorruptCiphertext(t *testing.T) {
	core := newFakeCore()
	core.kv["k"] = []byte("not-valid-aesgcm-ciphertext")
	enc, err := NewEncrypted(core, []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewEncrypted: %v", err)
	}
	if _, _, err := enc.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected an error decrypting corrupt ciphertext")
	}
}

func TestCachedServesReadsFromL1(t *testing.T) {
	core := newFakeCore()
	core.kv["k"] = []byte("v1")
	cached := NewCached(core, cache.NewMemory(), time.Minute)

	ctx := context.Background()
	got, found, err := cached.Get(ctx, "k")
	if err != nil || !found || string(got) != "v1" {
		t.Fatalf("first Get: got=%q found=%v err=%v", got, found, err)
	}

	core.mu.Lock()
	core.kv["k"] = []byte("v2-bypassed-cache")
	core.mu.Unlock()

	got, found, err = cached.Get(ctx, "k")
	if err != nil || !found || string(got) != "v1" {
		t.Fatalf("second Get should be served from L1 cache; got=%q found=%v err=%v", got, found, err)
	}
}

func TestCachedInvalidatesOnSet(t *testing.T) {
	core := newFakeCore()
	cached := NewCached(core, cache.NewMemory(), time.Minute)
	ctx := context.Background()

	if err := cached.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, found, err := cached.Get(ctx, "k")
	if err != nil || !found || string(got) != "v1" {
		t.Fatalf("Get after Set: got=%q found=%v err=%v", got, found, err)
	}

	if err := cached.Set(ctx, "k", []byte("v2"), 0); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	got, found, err = cached.Get(ctx, "k")
	if err != nil || !found || string(got) != "v2" {
		t.Fatalf("Get after second Set should see v2; got=%q found=%v err=%v", got, found, err)
	}
}

func TestBuildReportsLayersOutermostFirst(t *testing.T) {
	core := newFakeCore()
	built, err := Build(Config{
		EncryptionKey:       []byte("0123456789abcdef"),
		Cache:               cache.NewMemory(),
		DisableInstrumented: true,
	}, core)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []string{"Resilient", "Cached", "Encrypted", "Core"}
	got := built.Layers()
	if len(got) != len(want) {
		t.Fatalf("Layers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Layers() = %v, want %v", got, want)
		}
	}
}

func TestBuildWithNoOptionalLayersIsJustCore(t *testing.T) {
	core := newFakeCore()
	built, err := Build(Config{DisableResilient: true, DisableInstrumented: true}, core)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := built.Layers(); len(got) != 1 || got[0] != "Core" {
		t.Fatalf("Layers() = %v, want [Core]", got)
	}
}

func TestDoubleCommitFails(t *testing.T) {
	tx := &fakeTx{}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if err := tx.Commit(context.Background()); err == nil {
		t.Fatal("expected second Commit to fail")
	}
}
