package connection

import "github.com/jlabarca/ghost/internal/ghosttypes"

// queueCapacity is the outgoing queue's bound, per spec.md §4.3.
const queueCapacity = 1000

// outgoingQueue is a bounded, drop-oldest FIFO of MessageEnvelope. It is
// Connection's single writer-fair reader; multiple goroutines may push.
type outgoingQueue struct {
	ch chan ghosttypes.MessageEnvelope
}

func newOutgoingQueue() *outgoingQueue {
	return &outgoingQueue{ch: make(chan ghosttypes.MessageEnvelope, queueCapacity)}
}

// push enqueues env, dropping the oldest queued envelope if the queue is
// already at capacity (spec.md §8's drop-oldest invariant).
func (q *outgoingQueue) push(env ghosttypes.MessageEnvelope) (dropped bool) {
	select {
	case q.ch <- env:
		return false
	default:
	}

	// Full: drop the oldest and retry once. Another producer may win the
	// race for the freed slot; this push is then lost (rare, under heavy
	// concurrent contention) rather than spinning.
	select {
	case <-q.ch:
		dropped = true
	default:
	}
	select {
	case q.ch <- env:
	default:
	}
	return dropped
}

// recv returns the channel to range over in the single reader goroutine.
func (q *outgoingQueue) recv() <-chan ghosttypes.MessageEnvelope { return q.ch }

// close completes the channel; safe to call once.
func (q *outgoingQueue) close() { close(q.ch) }
