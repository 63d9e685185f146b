// Package processmanager implements C5: the daemon-side authoritative
// registry of ProcessInfos, routing commands/events between the Bus and
// the supervised Process instances, and deciding restarts.
package processmanager

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/ghosterr"
	"github.com/jlabarca/ghost/internal/ghosttypes"
	"github.com/jlabarca/ghost/internal/process"
)

// DefaultStalledThreshold is the liveness sweep interval/threshold from
// spec.md §4.5.
const DefaultStalledThreshold = 10 * time.Second

// DefaultRestartDelay is the restart-policy base delay when a
// registration omits RestartDelayMs.
const DefaultRestartDelay = 5 * time.Second

// entry bundles a supervised Process with the manager-owned liveness and
// restart-policy state the Process itself has no business tracking.
type entry struct {
	proc *process.Process

	isService          bool
	autoRestart        bool
	maxRestartAttempts int
	restartDelay       time.Duration

	lastSeen    time.Time
	lastMetrics *ghosttypes.ProcessMetrics
	endOverride *time.Time

	runStartedAt time.Time
}

// Manager is the registry of ProcessInfos on the daemon side.
type Manager struct {
	b bus.Bus

	mu               sync.RWMutex
	entries          map[string]*entry
	stalledThreshold time.Duration

	stopSweep chan struct{}
	closeOnce sync.Once
}

// New creates a Manager publishing to and consuming from b.
func New(b bus.Bus) *Manager {
	return &Manager{
		b:                b,
		entries:          make(map[string]*entry),
		stalledThreshold: DefaultStalledThreshold,
		stopSweep:        make(chan struct{}),
	}
}

// Run starts the manager's background loops (liveness tracking, the
// stalled-process sweeper, and the command dispatcher) and blocks until
// ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); m.trackLiveness(ctx) }()
	go func() { defer wg.Done(); m.sweepStalled(ctx) }()
	go func() { defer wg.Done(); m.dispatchCommands(ctx) }()
	<-ctx.Done()
	wg.Wait()
	return nil
}

// Close stops background loops owned directly by Manager (the sweeper
// ticker); the dispatcher/liveness loops stop via their own ctx from Run.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.stopSweep) })
	return nil
}

// Register materializes a new or refreshed ProcessInfo from reg and
// emits process.registered. Idempotent: registering the same Id again
// updates only its restart policy (AutoRestart, MaxRestartAttempts,
// RestartDelayMs); the stored ProcessInfo and any running Process are
// left as they are.
func (m *Manager) Register(ctx context.Context, reg ghosttypes.ProcessRegistration) (ghosttypes.ProcessInfo, error) {
	autoRestart := reg.Configuration["AutoRestart"] == "true"
	maxAttempts, _ := strconv.Atoi(reg.Configuration["MaxRestartAttempts"])
	restartDelay := DefaultRestartDelay
	if ms, err := strconv.Atoi(reg.Configuration["RestartDelayMs"]); err == nil && ms > 0 {
		restartDelay = time.Duration(ms) * time.Millisecond
	}

	m.mu.Lock()
	e, exists := m.entries[reg.ID]
	if !exists {
		info := ghosttypes.ProcessInfo{
			ID:               reg.ID,
			Metadata:         ghosttypes.ProcessMetadata{Name: reg.Name, Type: reg.Type, Version: reg.Version, Environment: reg.Environment, Configuration: reg.Configuration},
			ExecutablePath:   reg.ExecutablePath,
			Arguments:        reg.Arguments,
			WorkingDirectory: reg.WorkingDirectory,
			MaxBufferSize:    4096,
		}
		id := reg.ID
		e = &entry{
			isService:          reg.Type == ghosttypes.ProcessTypeService,
			autoRestart:        autoRestart,
			maxRestartAttempts: maxAttempts,
			restartDelay:       restartDelay,
		}
		e.proc = process.New(info, func(old, next ghosttypes.ProcessStatus, at time.Time) {
			m.handleStatusChanged(id, old, next, at)
		}, nil, nil)
		m.entries[reg.ID] = e
	} else {
		e.autoRestart = autoRestart
		e.maxRestartAttempts = maxAttempts
		e.restartDelay = restartDelay
	}
	info := e.proc.Info()
	m.mu.Unlock()

	event := ghosttypes.ProcessEvent{Type: ghosttypes.EventProcessRegistered, Registered: &reg}
	m.publishEvent(ctx, reg.ID, event)

	return info, nil
}

// Start spawns the process identified by id.
func (m *Manager) Start(ctx context.Context, id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := e.proc.Start(); err != nil {
		return err
	}
	m.mu.Lock()
	e.runStartedAt = time.Now().UTC()
	e.lastSeen = e.runStartedAt
	m.mu.Unlock()

	m.publishEvent(ctx, id, ghosttypes.ProcessEvent{Type: ghosttypes.EventProcessStarted, Started: &ghosttypes.ProcessStarted{ID: id, Timestamp: time.Now().UTC()}})
	return nil
}

// Stop gracefully stops the process identified by id.
func (m *Manager) Stop(ctx context.Context, id string, timeout time.Duration) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := e.proc.Stop(timeout); err != nil {
		return err
	}
	m.publishEvent(ctx, id, ghosttypes.ProcessEvent{Type: ghosttypes.EventProcessStopped, Stopped: &ghosttypes.ProcessStopped{ID: id, Timestamp: time.Now().UTC()}})
	return nil
}

// Restart stops then starts the process identified by id.
func (m *Manager) Restart(ctx context.Context, id string, timeout time.Duration) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := e.proc.Restart(timeout); err != nil {
		return err
	}
	m.mu.Lock()
	e.runStartedAt = time.Now().UTC()
	e.lastSeen = e.runStartedAt
	count := e.proc.Info().RestartCount
	m.mu.Unlock()

	m.publishEvent(ctx, id, ghosttypes.ProcessEvent{Type: ghosttypes.EventProcessRestarted, Restarted: &ghosttypes.ProcessRestarted{ID: id, RestartCount: count}})
	return nil
}

// List returns a snapshot of every registered process, per spec.md §4.5.
func (m *Manager) List() []ghosttypes.ProcessState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ghosttypes.ProcessState, 0, len(m.entries))
	now := time.Now().UTC()
	for id, e := range m.entries {
		out = append(out, m.snapshotLocked(id, e, now))
	}
	return out
}

// Find returns the ProcessInfo for id, or ok=false if unregistered.
func (m *Manager) Find(id string) (ghosttypes.ProcessInfo, bool) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return ghosttypes.ProcessInfo{}, false
	}
	return e.proc.Info(), true
}

// Logs returns the stdout and stderr ring buffer contents captured for
// id, concatenated: every stdout line first, then every stderr line.
func (m *Manager) Logs(id string) ([]string, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	lines := append([]string{}, e.proc.Stdout()...)
	lines = append(lines, e.proc.Stderr()...)
	return lines, nil
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ghosterr.Wrap(ghosterr.ValidationError, fmt.Sprintf("unknown process %q", id), nil)
	}
	return e, nil
}

// snapshotLocked must be called with at least a read lock held.
func (m *Manager) snapshotLocked(id string, e *entry, now time.Time) ghosttypes.ProcessState {
	info := e.proc.Info()
	stalled := e.endOverride != nil
	endTime := info.StopTime
	if stalled {
		endTime = e.endOverride
	}
	isRunning := info.Status == ghosttypes.StatusRunning && !stalled
	return ghosttypes.ProcessState{
		ID:          id,
		Name:        info.Metadata.Name,
		IsRunning:   isRunning,
		IsService:   e.isService,
		StartTime:   info.StartTime,
		EndTime:     endTime,
		LastMetrics: e.lastMetrics,
		LastSeen:    e.lastSeen,
	}
}

func (m *Manager) publishEvent(ctx context.Context, processID string, evt ghosttypes.ProcessEvent) {
	sysEvent, err := evt.ToSystemEvent(processID)
	if err != nil || m.b == nil {
		return
	}
	_ = m.b.Publish(ctx, "ghost:events", sysEvent, 0)
	_ = m.b.Publish(ctx, "ghost:events:"+processID, sysEvent, 0)
}
