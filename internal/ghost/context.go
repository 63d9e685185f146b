// Package ghost assembles the service container threaded explicitly
// through ghostd/ghost's main functions, replacing the package-level
// mutable singletons the REDESIGN FLAGS call out (spec.md §9).
package ghost

import (
	"context"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/cache"
	"github.com/jlabarca/ghost/internal/connection"
	"github.com/jlabarca/ghost/internal/data"
	"github.com/jlabarca/ghost/internal/ghostconfig"
	"github.com/jlabarca/ghost/internal/processmanager"
)

// Context is the one service container constructed in main and passed
// down explicitly to every component that needs it.
type Context struct {
	Config  ghostconfig.Config
	Cache   cache.Cache
	Bus     bus.Bus
	Data    data.IData
	Manager *processmanager.Manager
	Conn    *connection.Connection
}

// Close disposes every owned component in reverse construction order.
// Safe to call once; components' own Close/Dispose are each idempotent.
func (c *Context) Close(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.Conn != nil {
		record(c.Conn.Dispose())
	}
	if c.Manager != nil {
		record(c.Manager.Close())
	}
	if c.Data != nil {
		record(c.Data.Close())
	}
	if c.Bus != nil {
		record(c.Bus.Close())
	}
	if c.Cache != nil {
		record(c.Cache.Close())
	}
	return firstErr
}
