package ghost

import (
	"context"
	"testing"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/cache"
	"github.com/jlabarca/ghost/internal/connection"
)

func TestContextCloseTearsDownEveryComponent(t *testing.T) {
	c := cache.NewMemory()
	b := bus.NewLocal(c)
	conn := connection.New(connection.Options{DaemonSelf: true, Bus: b})

	ctx := &Context{Cache: c, Bus: b, Conn: conn}
	if err := ctx.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if conn.State() != connection.StateDisposed {
		t.Fatalf("expected Conn to be disposed, got %s", conn.State())
	}
}

func TestContextCloseIsSafeWithNoComponents(t *testing.T) {
	ctx := &Context{}
	if err := ctx.Close(context.Background()); err != nil {
		t.Fatalf("Close on an empty Context should be a no-op, got %v", err)
	}
}

func TestContextCloseDisposesReportingConn(t *testing.T) {
	// A Conn that has started reporting is disposed by Close. (Close tears
	// Conn down before the Bus; this test does not observe that order.)
	c := cache.NewMemory()
	b := bus.NewLocal(c)
	conn := connection.New(connection.Options{Bus: b})
	conn.StartReporting(context.Background())

	ctx := &Context{Cache: c, Bus: b, Conn: conn}
	if err := ctx.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if conn.State() != connection.StateDisposed {
		t.Fatalf("expected Conn to be disposed, got %s", conn.State())
	}
}
