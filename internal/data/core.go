package data

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/jlabarca/ghost/internal/ghosterr"
)

// Core is the bottom of the decorator stack: a real PostgreSQL client
// (sqlx over lib/pq, grounded on sawpanic-cryptorun's sqlx+lib/pq stack)
// for SQL operations and a Redis client for KV operations. Either half
// may be nil if the caller only needs the other.
type Core struct {
	db  *sqlx.DB
	kv  *redis.Client
}

// NewCore opens db (a PostgreSQL DSN, GHOST_POSTGRES_CONNECTION) and kv
// (a Redis client), either of which may be nil to disable that half.
func NewCore(ctx context.Context, postgresDSN string, kv *redis.Client) (*Core, error) {
	c := &Core{kv: kv}
	if postgresDSN != "" {
		db, err := sqlx.ConnectContext(ctx, "postgres", postgresDSN)
		if err != nil {
			return nil, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "connect postgres", err)
		}
		c.db = db
	}
	return c, nil
}

func (c *Core) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.kv == nil {
		return nil, false, ghosterr.Wrap(ghosterr.InvalidOperation, "Get", fmt.Errorf("no KV backend configured"))
	}
	val, err := c.kv.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis GET", err)
	}
	return val, true, nil
}

func (c *Core) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.kv == nil {
		return ghosterr.Wrap(ghosterr.InvalidOperation, "Set", fmt.Errorf("no KV backend configured"))
	}
	if err := c.kv.Set(ctx, key, value, ttl).Err(); err != nil {
		return ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis SET", err)
	}
	return nil
}

func (c *Core) Delete(ctx context.Context, key string) error {
	if c.kv == nil {
		return ghosterr.Wrap(ghosterr.InvalidOperation, "Delete", fmt.Errorf("no KV backend configured"))
	}
	if err := c.kv.Del(ctx, key).Err(); err != nil {
		return ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis DEL", err)
	}
	return nil
}

func (c *Core) Exists(ctx context.Context, key string) (bool, error) {
	if c.kv == nil {
		return false, ghosterr.Wrap(ghosterr.InvalidOperation, "Exists", fmt.Errorf("no KV backend configured"))
	}
	n, err := c.kv.Exists(ctx, key).Result()
	if err != nil {
		return false, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "redis EXISTS", err)
	}
	return n > 0, nil
}

func (c *Core) GetBatch(ctx context.Context, keys []string) ([]KVEntry, error) {
	out := make([]KVEntry, 0, len(keys))
	for _, k := range keys {
		v, found, err := c.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, KVEntry{Key: k, Value: v, Found: found})
	}
	return out, nil
}

func (c *Core) SetBatch(ctx context.Context, entries []KVEntry, ttl time.Duration) error {
	for _, e := range entries {
		if err := c.Set(ctx, e.Key, e.Value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (c *Core) QuerySingle(ctx context.Context, sql string, args ...any) (Row, error) {
	rows, err := c.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (c *Core) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	if c.db == nil {
		return nil, ghosterr.Wrap(ghosterr.InvalidOperation, "Query", fmt.Errorf("no SQL backend configured"))
	}
	rows, err := c.db.QueryxContext(ctx, sql, args...)
	if err != nil {
		return nil, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "query", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "scan row", err)
		}
		out = append(out, Row(m))
	}
	return out, rows.Err()
}

func (c *Core) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	if c.db == nil {
		return 0, ghosterr.Wrap(ghosterr.InvalidOperation, "Execute", fmt.Errorf("no SQL backend configured"))
	}
	res, err := c.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "execute", err)
	}
	return res.RowsAffected()
}

func (c *Core) ExecuteBatch(ctx context.Context, statements []string, args [][]any) (int64, error) {
	var total int64
	for i, stmt := range statements {
		var a []any
		if i < len(args) {
			a = args[i]
		}
		n, err := c.Execute(ctx, stmt, a...)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *Core) Begin(ctx context.Context) (Tx, error) {
	if c.db == nil {
		return nil, ghosterr.Wrap(ghosterr.InvalidOperation, "Begin", fmt.Errorf("no SQL backend configured"))
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "begin transaction", err)
	}
	return &coreTx{tx: tx}, nil
}

func (c *Core) TableExists(ctx context.Context, table string) (bool, error) {
	row, err := c.QuerySingle(ctx, `SELECT to_regclass($1) IS NOT NULL AS exists_`, table)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	exists, _ := row["exists_"].(bool)
	return exists, nil
}

func (c *Core) GetTableNames(ctx context.Context) ([]string, error) {
	rows, err := c.Query(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'`)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if name, ok := r["table_name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *Core) GetDatabaseClient() any {
	if c.db != nil {
		return c.db
	}
	return c.kv
}

func (c *Core) Layers() []string { return []string{"Core"} }

func (c *Core) Close() error {
	var err error
	if c.db != nil {
		err = c.db.Close()
	}
	if c.kv != nil {
		if kerr := c.kv.Close(); kerr != nil && err == nil {
			err = kerr
		}
	}
	return err
}

// coreTx wraps *sqlx.Tx to satisfy Tx, guarding against double-commit
// per spec.md §3.
type coreTx struct {
	tx   *sqlx.Tx
	done bool
}

func (t *coreTx) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := t.tx.QueryxContext(ctx, sql, args...)
	if err != nil {
		return nil, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "tx query", err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "tx scan row", err)
		}
		out = append(out, Row(m))
	}
	return out, rows.Err()
}

func (t *coreTx) QuerySingle(ctx context.Context, sql string, args ...any) (Row, error) {
	rows, err := t.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (t *coreTx) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, ghosterr.Wrap(ghosterr.StorageConnectionFailed, "tx execute", err)
	}
	return res.RowsAffected()
}

func (t *coreTx) Commit(ctx context.Context) error {
	if t.done {
		return ghosterr.Wrap(ghosterr.InvalidOperation, "Commit", fmt.Errorf("transaction already completed"))
	}
	t.done = true
	return t.tx.Commit()
}

func (t *coreTx) Rollback(ctx context.Context) error {
	if t.done {
		return ghosterr.Wrap(ghosterr.InvalidOperation, "Rollback", fmt.Errorf("transaction already completed"))
	}
	t.done = true
	return t.tx.Rollback()
}
