// Package connection implements C3: the per-process duplex link between
// a managed application and the daemon — bounded queueing,
// prioritization, retries, reconnection with backoff, and a pluggable
// fallback transport.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// State is one of Connection's lifecycle states.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReconnecting:
		return "Reconnecting"
	case StateDisposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// StatusChangedEvent is delivered to StatusChangedFunc on every connect/
// disconnect transition.
type StatusChangedEvent struct {
	Connected bool
	UsingFallback bool
	Reason    string
	At        time.Time
}

// StatusChangedFunc observes ConnectionStatusChanged events.
type StatusChangedFunc func(StatusChangedEvent)

// DirectCommunication is the pluggable fallback transport used when the
// Bus is unreachable, per spec.md §4.3.
type DirectCommunication interface {
	TestConnection(ctx context.Context) bool
	SendCommandWithResponse(ctx context.Context, cmd ghosttypes.SystemCommand) (ghosttypes.CommandResponse, error)
	Close() error
}

// Options configures a Connection at construction time.
type Options struct {
	// DaemonSelf short-circuits the state machine directly to Connected,
	// for the Connection instance living inside the daemon itself.
	DaemonSelf bool

	Bus      bus.Bus
	Fallback DirectCommunication

	ProcessInfo ghosttypes.ProcessInfo

	// EnableDiagnostics / EnableFallback mirror the configuration options
	// named in spec.md §6.
	EnableDiagnostics bool
	EnableFallback    bool

	// AutoStartDaemon permits TryStartDaemon from the diagnostics probe.
	AutoStartDaemon bool

	// LockFilePath / GhostdPath are passed straight through to the
	// diagnostics probe; see package diagnostics.
	LockFilePath string
	GhostdPath   string

	OnStatusChanged StatusChangedFunc
}

// Connection maintains a duplex link to the daemon over the Bus, with
// fallback. It exclusively owns its outgoing queue, its three periodic
// timers, and its CPU-sampling baseline (spec.md §3).
type Connection struct {
	id         string
	daemonSelf bool

	b        bus.Bus
	fallback DirectCommunication

	mu            sync.Mutex
	state         State
	usingFallback bool
	processInfo   ghosttypes.ProcessInfo
	lastError     error

	startOnce    sync.Once
	reconnectGen int

	// sessionGen increments every time a fresh Connected session starts
	// (initial connect, DaemonSelf init, or a successful reconnect). The
	// timers and readOutgoing spawned for a session capture their gen and
	// exit once a newer session has started, so a fast reconnect never
	// leaves a prior session's loops running alongside the new ones.
	sessionGen int

	queue *outgoingQueue

	stats ghosttypes.ConnectionStatistics

	cpuSampler *cpuSampler

	enableDiagnostics bool
	enableFallback    bool
	autoStartDaemon   bool
	lockFilePath      string
	ghostdPath        string

	onStatusChanged StatusChangedFunc

	disposed bool
}

// New constructs a Connection. The caller must call StartReporting to
// begin timers and, unless DaemonSelf, attempt the initial connection.
func New(opts Options) *Connection {
	c := &Connection{
		id:                "app-" + uuid.NewString(),
		daemonSelf:        opts.DaemonSelf,
		b:                 opts.Bus,
		fallback:          opts.Fallback,
		processInfo:       opts.ProcessInfo,
		queue:             newOutgoingQueue(),
		cpuSampler:        newCPUSampler(),
		enableDiagnostics: opts.EnableDiagnostics,
		enableFallback:    opts.EnableFallback,
		autoStartDaemon:   opts.AutoStartDaemon,
		lockFilePath:      opts.LockFilePath,
		ghostdPath:        opts.GhostdPath,
		onStatusChanged:   opts.OnStatusChanged,
	}
	if opts.DaemonSelf {
		c.state = StateConnected
	} else {
		c.state = StateIdle
	}
	return c
}

// ID returns this Connection's app-{uuid} identifier.
func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UsingFallback reports whether DirectCommunication is currently in use
// instead of the Bus.
func (c *Connection) UsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usingFallback
}

// Statistics returns a snapshot of the monotonic counters.
func (c *Connection) Statistics() ghosttypes.ConnectionStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LastError returns the most recent send/connect error observed, or nil.
func (c *Connection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Connection) setState(next State) {
	c.state = next
}

func (c *Connection) notifyStatus(connected bool, reason string) {
	if c.onStatusChanged == nil {
		return
	}
	c.mu.Lock()
	fallback := c.usingFallback
	c.mu.Unlock()
	go c.onStatusChanged(StatusChangedEvent{Connected: connected, UsingFallback: fallback, Reason: reason, At: time.Now().UTC()})
}
