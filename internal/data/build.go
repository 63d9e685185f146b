package data

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jlabarca/ghost/internal/cache"
)

// Config selects which optional layers Build wraps around Core, per
// spec.md §9's "explicit builder instead of reflection" REDESIGN FLAG.
type Config struct {
	// EncryptionKey enables the Encrypted layer when non-empty (16, 24,
	// or 32 bytes).
	EncryptionKey []byte

	// Cache, when non-nil, enables the Cached layer using it as the L1.
	Cache    cache.Cache
	CacheTTL time.Duration

	// DisableResilient skips the Resilient layer (circuit breaker +
	// retry); ghostd sets it when retries are turned off in its config,
	// and tests use it to exercise Core directly.
	DisableResilient bool

	// DisableInstrumented skips the Instrumented layer; ghostd sets it
	// when metrics are turned off in its config, and tests use it to
	// avoid double-registering Prometheus collectors.
	DisableInstrumented bool
	Registerer          prometheus.Registerer
}

// Build assembles the decorator chain Instrumented → Resilient → Cached
// → Encrypted → Core around core, per spec.md §3/§4.4, applying only the
// layers cfg enables. The returned IData's Layers() reports the actual
// wrapping order outermost-first.
func Build(cfg Config, core IData) (IData, error) {
	var d IData = core

	if len(cfg.EncryptionKey) > 0 {
		enc, err := NewEncrypted(d, cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		d = enc
	}

	if cfg.Cache != nil {
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		d = NewCached(d, cfg.Cache, ttl)
	}

	if !cfg.DisableResilient {
		d = NewResilient(d)
	}

	if !cfg.DisableInstrumented {
		d = NewInstrumented(d, cfg.Registerer)
	}

	return d, nil
}
