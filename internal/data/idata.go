// Package data implements C6: the composable IData decorator stack —
// Instrumented → Resilient → Cached → Encrypted → Core — providing both
// a key/value store and a SQL client behind one interface, per
// spec.md §3/§4.4.
package data

import (
	"context"
	"time"
)

// Row is one SQL result row, column name to driver value.
type Row map[string]any

// KVEntry pairs a key with its raw (post-decryption) value, returned by
// batch KV reads.
type KVEntry struct {
	Key   string
	Value []byte
	Found bool
}

// Tx is a scoped transaction handle returned by Begin. Commit/Rollback
// are terminal: calling either a second time is an InvalidOperation
// (spec.md §3's "double-commit is a contract violation").
type Tx interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
	QuerySingle(ctx context.Context, sql string, args ...any) (Row, error)
	Execute(ctx context.Context, sql string, args ...any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// IData is the contract every layer of the decorator stack implements
// and wraps, per spec.md §3.
type IData interface {
	// KV operations.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetBatch(ctx context.Context, keys []string) ([]KVEntry, error)
	SetBatch(ctx context.Context, entries []KVEntry, ttl time.Duration) error

	// SQL operations.
	QuerySingle(ctx context.Context, sql string, args ...any) (Row, error)
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
	Execute(ctx context.Context, sql string, args ...any) (int64, error)
	ExecuteBatch(ctx context.Context, statements []string, args [][]any) (int64, error)

	// Transactions. Begin returns Core's handle: Resilient retries Begin
	// itself but not Commit, and Cached and Encrypted pass Begin straight
	// through.
	Begin(ctx context.Context) (Tx, error)

	// Schema helpers.
	TableExists(ctx context.Context, table string) (bool, error)
	GetTableNames(ctx context.Context) ([]string, error)
	GetDatabaseClient() any

	// Layers reports the wrapping order outermost-first, e.g.
	// ["Instrumented", "Resilient", "Cached", "Encrypted", "Core"] —
	// the documented introspection the REDESIGN FLAGS ask for instead of
	// reflecting over the decorator chain.
	Layers() []string

	// Close releases the innermost Core's resources. Idempotent.
	Close() error
}
