package connection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// commandDeadline bounds how long SendCommand waits for a matching
// CommandResponse, per spec.md §4.3.
const commandDeadline = 30 * time.Second

// disconnectedPaceInterval is how long readOutgoing waits before
// re-checking after finding itself disconnected, per spec.md §4.3 ("waits
// 1 s before re-checking") — without it, a disconnected reader would spin
// requeue-then-immediately-redeliver and burn an envelope's entire retry
// budget in microseconds.
const disconnectedPaceInterval = 1 * time.Second

// enqueue pushes env onto the outgoing queue, counting a drop against
// TotalMessagesDropped if the queue was full.
func (c *Connection) enqueue(env ghosttypes.MessageEnvelope) {
	dropped := c.queue.push(env)
	if dropped {
		c.mu.Lock()
		c.stats.TotalMessagesDropped++
		c.mu.Unlock()
	}
}

// readOutgoing is the single reader goroutine draining the outgoing
// queue, scoped to gen (see Connection.beginSession): once a newer
// session has started, this loop exits rather than keep pulling
// alongside the new session's reader, per spec.md §5's single-reader
// invariant. A publish failure requeues the envelope (if it still has
// retry budget) or drops it and counts the drop, per spec.md §8. While
// disconnected, each pass is paced by disconnectedPaceInterval so a
// down bus doesn't spin the reader hot against its own requeues.
func (c *Connection) readOutgoing(ctx context.Context, gen int) {
	for {
		if !c.sessionCurrent(gen) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.queue.recv():
			if !ok {
				return
			}
			c.publishEnvelope(ctx, env)
			if !c.stillConnected() {
				timer := time.NewTimer(disconnectedPaceInterval)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return
				}
			}
		}
	}
}

func (c *Connection) publishEnvelope(ctx context.Context, env ghosttypes.MessageEnvelope) {
	if c.b == nil || !c.stillConnected() {
		c.requeueWhileDisconnected(env)
		return
	}
	if err := c.b.PublishWithPriority(ctx, env.Channel, json.RawMessage(env.Message), env.Priority); err != nil {
		c.requeueOrDrop(env)
		if !c.b.IsAvailable(ctx) {
			c.triggerReconnect(ctx)
		}
		return
	}
	c.mu.Lock()
	c.stats.TotalMessagesSent++
	c.mu.Unlock()
}

func (c *Connection) requeueOrDrop(env ghosttypes.MessageEnvelope) {
	if !env.CanRetry() {
		c.mu.Lock()
		c.stats.TotalMessagesDropped++
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.stats.TotalMessagesRequeued++
	c.mu.Unlock()
	c.enqueue(env.Requeued())
}

// requeueWhileDisconnected re-enqueues env for a later publish attempt.
// Per spec.md §4.3, High/Critical envelopes are "always requeued until
// MaxRetries reached even across reconnects" — being unreachable isn't a
// failed delivery attempt for them, so their RetryCount is left alone.
// Normal/Low envelopes instead consume retry budget at the normal rate,
// so low-priority traffic backs off faster under a sustained outage.
func (c *Connection) requeueWhileDisconnected(env ghosttypes.MessageEnvelope) {
	if env.Priority < ghosttypes.PriorityHigh {
		c.requeueOrDrop(env)
		return
	}
	if !env.CanRetry() {
		c.mu.Lock()
		c.stats.TotalMessagesDropped++
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.stats.TotalMessagesRequeued++
	c.mu.Unlock()
	c.enqueue(env)
}

// SendCommand publishes cmd on ghost:commands (or the DirectCommunication
// fallback when UsingFallback) and waits up to commandDeadline for its
// response, returning a synthetic TimedOut response if none arrives.
func (c *Connection) SendCommand(ctx context.Context, cmd ghosttypes.SystemCommand) ghosttypes.CommandResponse {
	if cmd.CommandID == "" {
		cmd.CommandID = uuid.NewString()
	}
	cmd.Timestamp = time.Now().UTC()

	c.mu.Lock()
	c.stats.TotalCommandsSent++
	usingFallback := c.usingFallback
	c.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, commandDeadline)
	defer cancel()

	if usingFallback && c.fallback != nil {
		resp, err := c.fallback.SendCommandWithResponse(cctx, cmd)
		if err != nil {
			c.mu.Lock()
			c.stats.TotalCommandTimeouts++
			c.mu.Unlock()
			return ghosttypes.TimedOut(cmd.CommandID)
		}
		return resp
	}

	if c.b == nil {
		return ghosttypes.TimedOut(cmd.CommandID)
	}

	responseChannel := "ghost:responses:" + c.id + ":" + uuid.NewString()
	if cmd.Parameters == nil {
		cmd.Parameters = map[string]string{}
	}
	cmd.Parameters[ghosttypes.ResponseChannelParam] = responseChannel

	sub, err := c.b.Subscribe(cctx, responseChannel)
	if err != nil {
		return ghosttypes.TimedOut(cmd.CommandID)
	}
	defer sub.Close()

	priority := ghosttypes.PriorityNormal
	switch cmd.CommandType {
	case ghosttypes.CommandPing, ghosttypes.CommandRegister, ghosttypes.CommandStop:
		priority = ghosttypes.PriorityHigh
	}
	if err := c.b.PublishWithPriority(cctx, "ghost:commands", cmd, priority); err != nil {
		return ghosttypes.TimedOut(cmd.CommandID)
	}

	for {
		resp, ok, err := bus.Receive[ghosttypes.CommandResponse](cctx, sub)
		if !ok {
			c.mu.Lock()
			c.stats.TotalCommandTimeouts++
			c.mu.Unlock()
			return ghosttypes.TimedOut(cmd.CommandID)
		}
		if err != nil {
			continue
		}
		if resp.CommandID == cmd.CommandID {
			return resp
		}
	}
}
