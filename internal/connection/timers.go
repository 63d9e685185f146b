package connection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jlabarca/ghost/internal/diagnostics"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// beginSession starts a new connected session: it bumps sessionGen and
// returns the new value, to be threaded through startTimers/readOutgoing
// so the previous session's loops (if still running) recognize they have
// been superseded and exit, per spec.md §5's single-reader invariant.
func (c *Connection) beginSession() int {
	c.mu.Lock()
	c.sessionGen++
	gen := c.sessionGen
	c.mu.Unlock()
	return gen
}

// startTimers begins the three periodic reporting loops named in
// spec.md §4.3, scoped to gen (see beginSession).
func (c *Connection) startTimers(ctx context.Context, gen int) {
	go c.heartbeatLoop(ctx, gen)
	go c.metricsLoop(ctx, gen)
	if c.enableDiagnostics {
		go c.diagnosticsLoop(ctx, gen)
	}
}

func (c *Connection) stopTimersLocked() {
	// Timers are plain goroutine loops gated on sessionGen rather than
	// time.Timer handles, so there is nothing to Stop() here: the next
	// session bump (or tick, for the reader) is what retires them.
}

func (c *Connection) stillConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disposed && c.state == StateConnected
}

// activeSession reports whether gen is still the current session and the
// Connection is Connected — the gate periodic senders check before every
// tick.
func (c *Connection) activeSession(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disposed && c.state == StateConnected && c.sessionGen == gen
}

// sessionCurrent reports whether gen is still the current session,
// regardless of connection state — the gate readOutgoing checks, since it
// must keep draining (into requeue) while Reconnecting.
func (c *Connection) sessionCurrent(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disposed && c.sessionGen == gen
}

func (c *Connection) heartbeatLoop(ctx context.Context, gen int) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.activeSession(gen) {
				return
			}
			c.sendHeartbeat(ctx)
		}
	}
}

func (c *Connection) sendHeartbeat(ctx context.Context) {
	hb := ghosttypes.HeartbeatMessage{
		ID:        c.processInfo.ID,
		Status:    string(ghosttypes.StatusRunning),
		Timestamp: time.Now().UTC(),
		AppType:   string(c.processInfo.Metadata.Type),
	}
	payload, err := json.Marshal(hb)
	if err != nil {
		return
	}
	c.enqueue(ghosttypes.MessageEnvelope{
		Channel:     "ghost:health:" + c.processInfo.ID,
		Message:     payload,
		MessageType: ghosttypes.MessageTypeHeartbeat,
		Priority:    ghosttypes.PriorityNormal,
		Timestamp:   time.Now().UTC(),
		MaxRetries:  ghosttypes.PriorityNormal.MaxRetries(),
	})
	c.mu.Lock()
	c.stats.LastHeartbeatAt = time.Now().UTC()
	c.mu.Unlock()
}

func (c *Connection) metricsLoop(ctx context.Context, gen int) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.activeSession(gen) {
				return
			}
			c.sendMetrics(ctx)
		}
	}
}

func (c *Connection) sendMetrics(ctx context.Context) {
	sample := c.cpuSampler.Sample(c.processInfo.ID)
	payload, err := json.Marshal(sample)
	if err != nil {
		return
	}
	c.enqueue(ghosttypes.MessageEnvelope{
		Channel:     "ghost:metrics:" + c.processInfo.ID,
		Message:     payload,
		MessageType: ghosttypes.MessageTypeMetrics,
		Priority:    ghosttypes.PriorityLow,
		Timestamp:   time.Now().UTC(),
		MaxRetries:  ghosttypes.PriorityLow.MaxRetries(),
	})
	c.mu.Lock()
	c.stats.LastMetricsAt = time.Now().UTC()
	c.mu.Unlock()
}

func (c *Connection) diagnosticsLoop(ctx context.Context, gen int) {
	ticker := time.NewTicker(diagnosticsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.activeSession(gen) {
				return
			}
			c.sendDiagnostics(ctx)
		}
	}
}

func (c *Connection) sendDiagnostics(ctx context.Context) {
	results := diagnostics.RunDiagnostics(ctx, diagnostics.Request{
		Bus:              c.b,
		LockFilePath:     c.lockFilePath,
		GhostdPath:       c.ghostdPath,
		FallbackEnabled:  c.enableFallback,
		AutoStartAllowed: c.autoStartDaemon,
	})
	payload, err := json.Marshal(results)
	if err != nil {
		return
	}
	c.enqueue(ghosttypes.MessageEnvelope{
		Channel:     "ghost:diagnostics:" + c.processInfo.ID,
		Message:     payload,
		MessageType: ghosttypes.MessageTypeDiagnostics,
		Priority:    ghosttypes.PriorityLow,
		Timestamp:   time.Now().UTC(),
		MaxRetries:  ghosttypes.PriorityLow.MaxRetries(),
	})
}
