package data

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented is the outermost layer: every call is timed into a
// Prometheus histogram and wrapped in an OpenTelemetry span, grounded on
// sawpanic-cryptorun's prometheus wiring and the teacher's own otel
// dependency (spec.md's "metrics collector" plus a tracing span).
type Instrumented struct {
	inner   IData
	tracer  trace.Tracer
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
}

// NewInstrumented wraps inner, registering its metrics on reg (pass
// prometheus.DefaultRegisterer-backed registry, or nil to use the
// default registerer directly).
func NewInstrumented(inner IData, reg prometheus.Registerer) *Instrumented {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Instrumented{
		inner:  inner,
		tracer: otel.Tracer("ghost/data"),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ghost_data_operation_duration_seconds",
			Help:    "Latency of IData operations by name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ghost_data_operation_errors_total",
			Help: "Count of failed IData operations by name.",
		}, []string{"operation"}),
	}
}

func (d *Instrumented) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := d.tracer.Start(ctx, "data."+op, trace.WithAttributes(attribute.String("ghost.data.operation", op)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	d.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		d.errors.WithLabelValues(op).Inc()
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	var found bool
	err := d.observe(ctx, "Get", func(ctx context.Context) error {
		v, f, err := d.inner.Get(ctx, key)
		val, found = v, f
		return err
	})
	return val, found, err
}

func (d *Instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return d.observe(ctx, "Set", func(ctx context.Context) error { return d.inner.Set(ctx, key, value, ttl) })
}

func (d *Instrumented) Delete(ctx context.Context, key string) error {
	return d.observe(ctx, "Delete", func(ctx context.Context) error { return d.inner.Delete(ctx, key) })
}

func (d *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := d.observe(ctx, "Exists", func(ctx context.Context) error {
		e, err := d.inner.Exists(ctx, key)
		exists = e
		return err
	})
	return exists, err
}

func (d *Instrumented) GetBatch(ctx context.Context, keys []string) ([]KVEntry, error) {
	var out []KVEntry
	err := d.observe(ctx, "GetBatch", func(ctx context.Context) error {
		entries, err := d.inner.GetBatch(ctx, keys)
		out = entries
		return err
	})
	return out, err
}

func (d *Instrumented) SetBatch(ctx context.Context, entries []KVEntry, ttl time.Duration) error {
	return d.observe(ctx, "SetBatch", func(ctx context.Context) error { return d.inner.SetBatch(ctx, entries, ttl) })
}

func (d *Instrumented) QuerySingle(ctx context.Context, sql string, args ...any) (Row, error) {
	var row Row
	err := d.observe(ctx, "QuerySingle", func(ctx context.Context) error {
		r, err := d.inner.QuerySingle(ctx, sql, args...)
		row = r
		return err
	})
	return row, err
}

func (d *Instrumented) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	var rows []Row
	err := d.observe(ctx, "Query", func(ctx context.Context) error {
		r, err := d.inner.Query(ctx, sql, args...)
		rows = r
		return err
	})
	return rows, err
}

func (d *Instrumented) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	var n int64
	err := d.observe(ctx, "Execute", func(ctx context.Context) error {
		v, err := d.inner.Execute(ctx, sql, args...)
		n = v
		return err
	})
	return n, err
}

func (d *Instrumented) ExecuteBatch(ctx context.Context, statements []string, args [][]any) (int64, error) {
	var n int64
	err := d.observe(ctx, "ExecuteBatch", func(ctx context.Context) error {
		v, err := d.inner.ExecuteBatch(ctx, statements, args)
		n = v
		return err
	})
	return n, err
}

func (d *Instrumented) Begin(ctx context.Context) (Tx, error) {
	var tx Tx
	err := d.observe(ctx, "Begin", func(ctx context.Context) error {
		t, err := d.inner.Begin(ctx)
		tx = t
		return err
	})
	return tx, err
}

func (d *Instrumented) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := d.observe(ctx, "TableExists", func(ctx context.Context) error {
		e, err := d.inner.TableExists(ctx, table)
		exists = e
		return err
	})
	return exists, err
}

func (d *Instrumented) GetTableNames(ctx context.Context) ([]string, error) {
	var names []string
	err := d.observe(ctx, "GetTableNames", func(ctx context.Context) error {
		n, err := d.inner.GetTableNames(ctx)
		names = n
		return err
	})
	return names, err
}

func (d *Instrumented) GetDatabaseClient() any { return d.inner.GetDatabaseClient() }

func (d *Instrumented) Layers() []string { return append([]string{"Instrumented"}, d.inner.Layers()...) }

func (d *Instrumented) Close() error { return d.inner.Close() }
