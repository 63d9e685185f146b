package data

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/jlabarca/ghost/internal/ghosterr"
)

// Resilient wraps an inner IData with a circuit breaker per operation
// category (KV vs SQL), composed with an exponential-backoff retry loop
// around each breaker-guarded call. Grounded on sawpanic-cryptorun's
// infra/breakers/breakers.go gobreaker wrapper. Retries only transient
// errors; never retries validation errors or ExecuteBatch/Execute writes
// that are not explicitly marked idempotent, per spec.md §3.
type Resilient struct {
	inner  IData
	kvCB   *gobreaker.CircuitBreaker
	sqlCB  *gobreaker.CircuitBreaker
	maxTry uint64
}

// NewResilient wraps inner with independent breakers for the KV and SQL
// operation categories.
func NewResilient(inner IData) *Resilient {
	return &Resilient{
		inner:  inner,
		kvCB:   newBreaker("data-kv"),
		sqlCB:  newBreaker("data-sql"),
		maxTry: 3,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 5 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.25
	}
	return gobreaker.NewCircuitBreaker(st)
}

// call runs fn through cb, retrying with exponential backoff while fn's
// error is a transient ghosterr.Kind.
func (r *Resilient) call(ctx context.Context, cb *gobreaker.CircuitBreaker, fn func() (any, error)) (any, error) {
	b := backoff.WithContext(boundedBackoff(r.maxTry), ctx)

	var result any
	err := backoff.Retry(func() error {
		out, cbErr := cb.Execute(func() (any, error) { return fn() })
		if cbErr != nil {
			if !isRetryable(cbErr) {
				return backoff.Permanent(cbErr)
			}
			return cbErr
		}
		result = out
		return nil
	}, b)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func boundedBackoff(maxTry uint64) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(eb, maxTry)
}

func isRetryable(err error) bool {
	return ghosterr.Is(err, ghosterr.StorageConnectionFailed)
}

func (r *Resilient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	type result struct {
		val   []byte
		found bool
	}
	out, err := r.call(ctx, r.kvCB, func() (any, error) {
		val, found, err := r.inner.Get(ctx, key)
		return result{val, found}, err
	})
	if err != nil {
		return nil, false, err
	}
	res := out.(result)
	return res.val, res.found, nil
}

func (r *Resilient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := r.call(ctx, r.kvCB, func() (any, error) { return nil, r.inner.Set(ctx, key, value, ttl) })
	return err
}

func (r *Resilient) Delete(ctx context.Context, key string) error {
	// Delete is idempotent (deleting twice is a no-op), so it is safe to
	// retry even though it is a write.
	_, err := r.call(ctx, r.kvCB, func() (any, error) { return nil, r.inner.Delete(ctx, key) })
	return err
}

func (r *Resilient) Exists(ctx context.Context, key string) (bool, error) {
	out, err := r.call(ctx, r.kvCB, func() (any, error) { return r.inner.Exists(ctx, key) })
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (r *Resilient) GetBatch(ctx context.Context, keys []string) ([]KVEntry, error) {
	out, err := r.call(ctx, r.kvCB, func() (any, error) { return r.inner.GetBatch(ctx, keys) })
	if err != nil {
		return nil, err
	}
	return out.([]KVEntry), nil
}

func (r *Resilient) SetBatch(ctx context.Context, entries []KVEntry, ttl time.Duration) error {
	_, err := r.call(ctx, r.kvCB, func() (any, error) { return nil, r.inner.SetBatch(ctx, entries, ttl) })
	return err
}

func (r *Resilient) QuerySingle(ctx context.Context, sql string, args ...any) (Row, error) {
	out, err := r.call(ctx, r.sqlCB, func() (any, error) { return r.inner.QuerySingle(ctx, sql, args...) })
	if err != nil {
		return nil, err
	}
	row, _ := out.(Row)
	return row, nil
}

func (r *Resilient) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	out, err := r.call(ctx, r.sqlCB, func() (any, error) { return r.inner.Query(ctx, sql, args...) })
	if err != nil {
		return nil, err
	}
	rows, _ := out.([]Row)
	return rows, nil
}

// Execute is not retried: it is a write whose idempotency this layer
// cannot verify from the raw SQL string alone, per spec.md §3's "never
// retries writes that are not idempotent unless explicitly marked".
func (r *Resilient) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	out, err := r.sqlCB.Execute(func() (any, error) { return r.inner.Execute(ctx, sql, args...) })
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

func (r *Resilient) ExecuteBatch(ctx context.Context, statements []string, args [][]any) (int64, error) {
	out, err := r.sqlCB.Execute(func() (any, error) { return r.inner.ExecuteBatch(ctx, statements, args) })
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

// Begin is retried (a failed Begin has made no durable changes). The
// returned Tx is the inner layer's handle, unwrapped: its Commit and
// Rollback are neither retried nor guarded by a breaker.
func (r *Resilient) Begin(ctx context.Context) (Tx, error) {
	out, err := r.call(ctx, r.sqlCB, func() (any, error) { return r.inner.Begin(ctx) })
	if err != nil {
		return nil, err
	}
	return out.(Tx), nil
}

func (r *Resilient) TableExists(ctx context.Context, table string) (bool, error) {
	out, err := r.call(ctx, r.sqlCB, func() (any, error) { return r.inner.TableExists(ctx, table) })
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (r *Resilient) GetTableNames(ctx context.Context) ([]string, error) {
	out, err := r.call(ctx, r.sqlCB, func() (any, error) { return r.inner.GetTableNames(ctx) })
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

func (r *Resilient) GetDatabaseClient() any { return r.inner.GetDatabaseClient() }

func (r *Resilient) Layers() []string { return append([]string{"Resilient"}, r.inner.Layers()...) }

func (r *Resilient) Close() error { return r.inner.Close() }
