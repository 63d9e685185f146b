package connection

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// slowCadenceAfter is the failure count after which reconnect backoff is
// capped at a slow, low-noise retry cadence rather than continuing to
// grow, per spec.md §4.3.
const (
	slowCadenceAfter    = 5
	slowCadenceInterval = 60 * time.Second
)

// reconnectLoop retries CheckConnection with exponential backoff and
// jitter, switching to a flat slow cadence after slowCadenceAfter
// consecutive failures. It exits once connected or the Connection is
// disposed.
func (c *Connection) reconnectLoop(ctx context.Context) {
	c.mu.Lock()
	c.reconnectGen++
	gen := c.reconnectGen
	c.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.15
	b.MaxInterval = 120 * time.Second
	b.MaxElapsedTime = 0 // retry forever; StartReporting's caller controls lifetime via ctx
	b.Reset()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		disposed := c.disposed
		stillCurrent := c.reconnectGen == gen
		c.mu.Unlock()
		if disposed || !stillCurrent {
			return
		}

		c.mu.Lock()
		c.stats.TotalReconnectAttempts++
		c.mu.Unlock()

		if c.CheckConnection(ctx) {
			c.register(ctx)
			c.mu.Lock()
			c.setState(StateConnected)
			c.stats.LastConnectedAt = time.Now().UTC()
			c.mu.Unlock()
			sessionGen := c.beginSession()
			c.startTimers(ctx, sessionGen)
			c.notifyStatus(true, "reconnected")
			go c.readOutgoing(ctx, sessionGen)
			return
		}

		failures++
		var wait time.Duration
		if failures > slowCadenceAfter {
			wait = slowCadenceInterval
		} else {
			wait = b.NextBackOff()
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// triggerReconnect transitions to Reconnecting and starts a fresh
// reconnectLoop, invalidating any loop already in flight.
func (c *Connection) triggerReconnect(ctx context.Context) {
	c.mu.Lock()
	if c.disposed || c.state == StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.setState(StateReconnecting)
	c.stats.LastDisconnectedAt = time.Now().UTC()
	c.stopTimersLocked()
	c.mu.Unlock()
	c.notifyStatus(false, "connection lost")
	go c.reconnectLoop(ctx)
}
