package connection

import (
	"context"
	"testing"
	"time"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/cache"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// newTestBus returns a real Local bus (Cache-backed, in-memory) — good
// enough to exercise Connection's ping/command/publish paths without a
// real broker, and avoids depending on any of bus's unexported types.
func newTestBus() *bus.Local {
	return bus.NewLocal(cache.NewMemory())
}

// respondToCommands answers every SystemCommand published on
// ghost:commands with resp, until ctx is done.
func respondToCommands(ctx context.Context, t *testing.T, b *bus.Local, respond func(ghosttypes.SystemCommand) (ghosttypes.CommandResponse, bool)) {
	t.Helper()
	sub, err := b.Subscribe(ctx, "ghost:commands")
	if err != nil {
		t.Fatalf("subscribe to ghost:commands: %v", err)
	}
	go func() {
		defer sub.Close()
		for {
			cmd, ok, err := bus.Receive[ghosttypes.SystemCommand](ctx, sub)
			if !ok {
				return
			}
			if err != nil {
				continue
			}
			if resp, handle := respond(cmd); handle {
				_ = b.Publish(ctx, cmd.ResponseChannel(), resp, 0)
			}
		}
	}()
}

func TestDaemonSelfStartReportingSkipsConnect(t *testing.T) {
	c := New(Options{DaemonSelf: true, Bus: newTestBus()})
	c.StartReporting(context.Background())

	if c.State() != StateConnected {
		t.Fatalf("daemon-self connection should start Connected, got %s", c.State())
	}
}

func TestCheckConnectionSucceedsOnPingResponse(t *testing.T) {
	b := newTestBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	respondToCommands(ctx, t, b, func(cmd ghosttypes.SystemCommand) (ghosttypes.CommandResponse, bool) {
		if cmd.CommandType != ghosttypes.CommandPing {
			return ghosttypes.CommandResponse{}, false
		}
		return ghosttypes.CommandResponse{CommandID: cmd.CommandID, Success: true, Timestamp: time.Now().UTC()}, true
	})

	c := New(Options{Bus: b})
	if !c.CheckConnection(ctx) {
		t.Fatal("expected CheckConnection to succeed against a bus that answers ping")
	}
	if c.UsingFallback() {
		t.Fatal("a successful bus ping should not mark UsingFallback")
	}
}

func TestCheckConnectionFailsWithNoResponder(t *testing.T) {
	c := New(Options{Bus: newTestBus()})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if c.CheckConnection(ctx) {
		t.Fatal("expected CheckConnection to fail when nothing answers the ping")
	}
}

func TestSendCommandTimesOutWithoutResponder(t *testing.T) {
	c := New(Options{Bus: newTestBus()})
	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	resp := c.SendCommand(ctx, ghosttypes.SystemCommand{CommandType: ghosttypes.CommandPing})
	if resp.Success {
		t.Fatal("expected a failed/timed-out response")
	}
	if resp.Error == "" {
		t.Fatal("expected TimedOut to set Error")
	}
}

func TestSendCommandReturnsMatchingResponse(t *testing.T) {
	b := newTestBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	respondToCommands(ctx, t, b, func(cmd ghosttypes.SystemCommand) (ghosttypes.CommandResponse, bool) {
		return ghosttypes.CommandResponse{CommandID: cmd.CommandID, Success: true, Timestamp: time.Now().UTC(), Data: ghosttypes.StringData("pong")}, true
	})

	c := New(Options{Bus: b})
	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()

	resp := c.SendCommand(ctx, ghosttypes.SystemCommand{CommandType: ghosttypes.CommandPing})
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.Data == nil || resp.Data.String != "pong" {
		t.Fatalf("expected response data %q, got %+v", "pong", resp.Data)
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	c := New(Options{DaemonSelf: true, Bus: newTestBus()})
	if err := c.Dispose(); err != nil {
		t.Fatalf("first Dispose: %v", err)
	}
	if err := c.Dispose(); err != nil {
		t.Fatalf("second Dispose should be a no-op, got: %v", err)
	}
	if c.State() != StateDisposed {
		t.Fatalf("expected Disposed, got %s", c.State())
	}
}

func TestEnqueueCountsDropsWhenQueueFull(t *testing.T) {
	c := New(Options{Bus: newTestBus()})
	c.queue = &outgoingQueue{ch: make(chan ghosttypes.MessageEnvelope, 1)}

	c.enqueue(ghosttypes.MessageEnvelope{Channel: "a"})
	c.enqueue(ghosttypes.MessageEnvelope{Channel: "b"})

	if got := c.Statistics().TotalMessagesDropped; got != 1 {
		t.Fatalf("expected 1 dropped message, got %d", got)
	}
}
