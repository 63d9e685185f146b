package data

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/jlabarca/ghost/internal/ghosterr"
)

// Encrypted wraps an inner IData, AES-GCM-encrypting KV values on Set
// and decrypting on Get. SQL values pass through untouched — the caller
// owns column-level encryption if it wants any, per spec.md §3. Kept on
// the standard library deliberately: see DESIGN.md.
type Encrypted struct {
	inner IData
	gcm   cipher.AEAD
}

// NewEncrypted wraps inner with AES-GCM keyed by key, which must be 16,
// 24, or 32 bytes (AES-128/192/256).
func NewEncrypted(inner IData, key []byte) (*Encrypted, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ghosterr.Wrap(ghosterr.ConfigurationError, "construct AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ghosterr.Wrap(ghosterr.ConfigurationError, "construct AES-GCM", err)
	}
	return &Encrypted{inner: inner, gcm: gcm}, nil
}

func (e *Encrypted) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, ghosterr.Wrap(ghosterr.Unknown, "generate nonce", err)
	}
	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *Encrypted) open(ciphertext []byte) ([]byte, error) {
	ns := e.gcm.NonceSize()
	if len(ciphertext) < ns {
		return nil, ghosterr.Wrap(ghosterr.ValidationError, "decrypt value", fmt.Errorf("ciphertext shorter than nonce"))
	}
	nonce, body := ciphertext[:ns], ciphertext[ns:]
	plain, err := e.gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ghosterr.Wrap(ghosterr.ValidationError, "decrypt value", err)
	}
	return plain, nil
}

func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, found, err := e.inner.Get(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	plain, err := e.open(raw)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (e *Encrypted) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	sealed, err := e.seal(value)
	if err != nil {
		return err
	}
	return e.inner.Set(ctx, key, sealed, ttl)
}

func (e *Encrypted) Delete(ctx context.Context, key string) error { return e.inner.Delete(ctx, key) }

func (e *Encrypted) Exists(ctx context.Context, key string) (bool, error) {
	return e.inner.Exists(ctx, key)
}

func (e *Encrypted) GetBatch(ctx context.Context, keys []string) ([]KVEntry, error) {
	entries, err := e.inner.GetBatch(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]KVEntry, len(entries))
	for i, ent := range entries {
		out[i] = ent
		if ent.Found {
			plain, err := e.open(ent.Value)
			if err != nil {
				return nil, err
			}
			out[i].Value = plain
		}
	}
	return out, nil
}

func (e *Encrypted) SetBatch(ctx context.Context, entries []KVEntry, ttl time.Duration) error {
	sealed := make([]KVEntry, len(entries))
	for i, ent := range entries {
		s, err := e.seal(ent.Value)
		if err != nil {
			return err
		}
		sealed[i] = KVEntry{Key: ent.Key, Value: s}
	}
	return e.inner.SetBatch(ctx, sealed, ttl)
}

func (e *Encrypted) QuerySingle(ctx context.Context, sql string, args ...any) (Row, error) {
	return e.inner.QuerySingle(ctx, sql, args...)
}

func (e *Encrypted) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	return e.inner.Query(ctx, sql, args...)
}

func (e *Encrypted) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	return e.inner.Execute(ctx, sql, args...)
}

func (e *Encrypted) ExecuteBatch(ctx context.Context, statements []string, args [][]any) (int64, error) {
	return e.inner.ExecuteBatch(ctx, statements, args)
}

func (e *Encrypted) Begin(ctx context.Context) (Tx, error) { return e.inner.Begin(ctx) }

func (e *Encrypted) TableExists(ctx context.Context, table string) (bool, error) {
	return e.inner.TableExists(ctx, table)
}

func (e *Encrypted) GetTableNames(ctx context.Context) ([]string, error) {
	return e.inner.GetTableNames(ctx)
}

func (e *Encrypted) GetDatabaseClient() any { return e.inner.GetDatabaseClient() }

func (e *Encrypted) Layers() []string { return append([]string{"Encrypted"}, e.inner.Layers()...) }

func (e *Encrypted) Close() error { return e.inner.Close() }
