package connection

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/ghosttypes"
	"github.com/jlabarca/ghost/internal/wire"
)

const (
	heartbeatInterval   = 30 * time.Second
	metricsInterval     = 5 * time.Second
	diagnosticsInterval = 5 * time.Minute
	pingDeadline        = 5 * time.Second
)

// StartReporting acquires the single-flight start lock and brings the
// Connection up, per spec.md §4.3. Safe to call more than once; only the
// first call does anything.
func (c *Connection) StartReporting(ctx context.Context) {
	c.startOnce.Do(func() {
		c.mu.Lock()
		if c.daemonSelf {
			c.setState(StateConnected)
			c.usingFallback = false
			c.stats.LastConnectedAt = time.Now().UTC()
			c.mu.Unlock()
			c.startTimers(ctx, c.beginSession())
			return
		}
		c.setState(StateConnecting)
		c.mu.Unlock()

		go c.connectLoop(ctx)
	})
}

func (c *Connection) connectLoop(ctx context.Context) {
	if c.CheckConnection(ctx) {
		c.register(ctx)
		c.mu.Lock()
		c.setState(StateConnected)
		c.stats.LastConnectedAt = time.Now().UTC()
		c.mu.Unlock()
		gen := c.beginSession()
		c.startTimers(ctx, gen)
		c.notifyStatus(true, "connected")
		go c.readOutgoing(ctx, gen)
		return
	}

	c.mu.Lock()
	c.setState(StateReconnecting)
	c.stats.LastDisconnectedAt = time.Now().UTC()
	c.mu.Unlock()
	c.notifyStatus(false, "initial connection failed")
	go c.reconnectLoop(ctx)
}

// CheckConnection implements spec.md §4.3's bus-ping-then-fallback probe.
func (c *Connection) CheckConnection(ctx context.Context) bool {
	if c.b != nil && c.b.IsAvailable(ctx) {
		if c.pingBus(ctx) {
			c.mu.Lock()
			c.usingFallback = false
			c.mu.Unlock()
			return true
		}
	}

	if c.enableFallback && c.fallback != nil {
		pctx, cancel := context.WithTimeout(ctx, pingDeadline)
		ok := c.fallback.TestConnection(pctx)
		cancel()
		if ok {
			c.mu.Lock()
			c.usingFallback = true
			c.mu.Unlock()
			return true
		}
	}

	return false
}

func (c *Connection) pingBus(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, pingDeadline)
	defer cancel()

	responseChannel := "ghost:responses:" + c.id + ":" + uuid.NewString()
	sub, err := c.b.Subscribe(pctx, responseChannel)
	if err != nil {
		return false
	}
	defer sub.Close()

	cmd := ghosttypes.SystemCommand{
		CommandID:   uuid.NewString(),
		CommandType: ghosttypes.CommandPing,
		Timestamp:   time.Now().UTC(),
		Parameters:  map[string]string{ghosttypes.ResponseChannelParam: responseChannel},
	}
	if err := c.b.PublishWithPriority(pctx, "ghost:commands", cmd, ghosttypes.PriorityHigh); err != nil {
		return false
	}

	for {
		resp, ok, err := bus.Receive[ghosttypes.CommandResponse](pctx, sub)
		if !ok {
			return false
		}
		if err != nil {
			continue
		}
		if resp.CommandID == cmd.CommandID && resp.Success {
			return true
		}
	}
}

// register publishes this Connection's ProcessRegistration to the
// daemon's command dispatcher. Best-effort: a failure here does not
// prevent reaching StateConnected, since the registration itself carries
// no correctness obligation beyond discoverability (spec.md §4.2).
func (c *Connection) register(ctx context.Context) {
	if c.b == nil || c.daemonSelf {
		return
	}
	info := c.processInfo
	reg := ghosttypes.ProcessRegistration{
		ID:               info.ID,
		Name:             info.Metadata.Name,
		Type:             info.Metadata.Type,
		Version:          info.Metadata.Version,
		ExecutablePath:   info.ExecutablePath,
		Arguments:        info.Arguments,
		WorkingDirectory: info.WorkingDirectory,
		Environment:      info.Metadata.Environment,
		Configuration:    info.Metadata.Configuration,
	}
	payload, err := wire.Encode(reg)
	if err != nil {
		return
	}
	_ = c.b.PublishWithPriority(ctx, "ghost:commands", ghosttypes.SystemCommand{
		CommandID:   uuid.NewString(),
		CommandType: ghosttypes.CommandRegister,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}, ghosttypes.PriorityHigh)

	c.publishEvent(ctx, ghosttypes.ProcessEvent{
		Type:       ghosttypes.EventProcessRegistered,
		Registered: &reg,
	}, info.ID)
	c.publishEvent(ctx, ghosttypes.ProcessEvent{
		Type:    ghosttypes.EventProcessStarted,
		Started: &ghosttypes.ProcessStarted{ID: info.ID, Timestamp: time.Now().UTC()},
	}, info.ID)
}

// publishEvent serializes evt and publishes it on both the global
// ghost:events channel and the per-process ghost:events:{id} channel, per
// spec.md §4.3's registration/start event requirements. Best-effort, like
// register itself.
func (c *Connection) publishEvent(ctx context.Context, evt ghosttypes.ProcessEvent, processID string) {
	sysEvt, err := evt.ToSystemEvent(processID)
	if err != nil {
		return
	}
	_ = c.b.Publish(ctx, "ghost:events", sysEvt, 0)
	_ = c.b.Publish(ctx, "ghost:events:"+processID, sysEvt, 0)
}

// Dispose tears down timers and the fallback transport and marks the
// Connection Disposed. The outgoing queue is not closed; its reader
// returns at the top of its next pass, once its session is no longer
// current. Idempotent.
func (c *Connection) Dispose() error {
	if c.tryLockWithTimeout(5 * time.Second) {
		defer c.mu.Unlock()
	}

	if c.disposed {
		return nil
	}
	c.disposed = true
	c.setState(StateDisposed)
	c.stopTimersLocked()

	if c.fallback != nil {
		_ = c.fallback.Close()
	}
	return nil
}

// tryLockWithTimeout mirrors process.Process's helper: on timeout the
// eventual successful Lock is released back immediately so no later
// caller wedges behind an abandoned acquisition.
func (c *Connection) tryLockWithTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		go func() {
			<-done
			c.mu.Unlock()
		}()
		return false
	}
}
