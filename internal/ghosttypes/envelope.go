package ghosttypes

import "time"

// Priority orders retry/requeue policy for outgoing messages. It does not,
// by itself, reorder the outgoing queue — see MessageEnvelope.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// MaxRetries returns the retry budget for envelopes at this priority,
// per spec.md §4.3.
func (p Priority) MaxRetries() int {
	switch p {
	case PriorityLow:
		return 2
	case PriorityNormal:
		return 5
	case PriorityHigh:
		return 10
	case PriorityCritical:
		return 20
	default:
		return 5
	}
}

// MessageType tags the payload carried by a MessageEnvelope so the queue
// reader can dispatch it without a type switch on an empty interface.
type MessageType string

const (
	MessageTypeCommand     MessageType = "command"
	MessageTypeEvent       MessageType = "event"
	MessageTypeHeartbeat   MessageType = "heartbeat"
	MessageTypeMetrics     MessageType = "metrics"
	MessageTypeDiagnostics MessageType = "diagnostics"
	MessageTypeRaw         MessageType = "raw"
)

// MessageEnvelope is the Connection's outgoing-queue-internal record.
// Invariant: RetryCount <= MaxRetries.
type MessageEnvelope struct {
	Channel     string
	Message     []byte
	MessageType MessageType
	Priority    Priority
	Timestamp   time.Time
	RetryCount  int
	MaxRetries  int
}

// CanRetry reports whether the envelope may be requeued again.
func (e MessageEnvelope) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// Requeued returns a copy of e with RetryCount incremented, clamped at
// MaxRetries so the invariant in spec.md §3 never breaks.
func (e MessageEnvelope) Requeued() MessageEnvelope {
	next := e
	if next.RetryCount < next.MaxRetries {
		next.RetryCount++
	}
	return next
}

// ConnectionStatistics holds the monotonic counters and timestamps
// mutated only by the owning Connection.
type ConnectionStatistics struct {
	TotalMessagesSent      uint64
	TotalMessagesDropped   uint64
	TotalMessagesRequeued  uint64
	TotalReconnectAttempts uint64
	TotalCommandsSent      uint64
	TotalCommandTimeouts   uint64
	LastHeartbeatAt        time.Time
	LastMetricsAt          time.Time
	LastConnectedAt        time.Time
	LastDisconnectedAt     time.Time
}
