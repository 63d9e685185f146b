package processmanager

import (
	"context"
	"math/rand"
	"time"

	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// maxRestartBackoff caps the per-attempt exponential backoff used when
// scheduling a crash restart, per spec.md §4.5.
const maxRestartBackoff = 30 * time.Second

// longRunThreshold: if the crashed run lasted longer than this, the
// restart-attempt counter resets to 1 before counting the current
// attempt, so a process that ran stably for hours and then crashed once
// is not treated as crash-looping.
const longRunThreshold = 5 * time.Minute

// handleStatusChanged is the Process.StatusChangedFunc wired in at
// Register time. It runs in its own goroutine (see process.Process), so
// it is safe for it to take time scheduling a restart.
func (m *Manager) handleStatusChanged(id string, _, next ghosttypes.ProcessStatus, _ time.Time) {
	if next != ghosttypes.StatusCrashed {
		return
	}

	ctx := context.Background()
	m.publishEvent(ctx, id, ghosttypes.ProcessEvent{Type: ghosttypes.EventProcessCrashed, Crashed: &ghosttypes.ProcessCrashed{ID: id}})

	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if !e.autoRestart {
		m.mu.Unlock()
		return
	}
	info := e.proc.Info()
	if !e.runStartedAt.IsZero() && time.Since(e.runStartedAt) > longRunThreshold {
		// A long stable run before this crash: treat the counter as if
		// this were the first attempt in a fresh crash streak.
		e.proc.ResetRestartCount(1)
		info = e.proc.Info()
	}

	if e.maxRestartAttempts > 0 && info.RestartCount >= e.maxRestartAttempts {
		m.mu.Unlock()
		m.publishEvent(ctx, id, ghosttypes.ProcessEvent{Type: ghosttypes.EventProcessFailed, Failed: &ghosttypes.ProcessFailed{ID: id, Attempts: info.RestartCount, LastError: info.LastErrorText}})
		return
	}

	attempt := info.RestartCount + 1
	delay := e.restartDelay
	if delay <= 0 {
		delay = DefaultRestartDelay
	}
	backoff := delay
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > maxRestartBackoff {
			backoff = maxRestartBackoff
			break
		}
	}
	jitter := 0.75 + rand.Float64()*0.5
	wait := time.Duration(float64(backoff) * jitter)
	m.mu.Unlock()

	go m.scheduleRestart(id, wait)
}

func (m *Manager) scheduleRestart(id string, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	<-timer.C

	ctx := context.Background()
	e, err := m.lookup(id)
	if err != nil {
		return
	}
	if err := e.proc.Restart(5 * time.Second); err != nil {
		m.publishEvent(ctx, id, ghosttypes.ProcessEvent{Type: ghosttypes.EventProcessFailed, Failed: &ghosttypes.ProcessFailed{ID: id, LastError: err.Error()}})
		return
	}

	m.mu.Lock()
	e.runStartedAt = time.Now().UTC()
	e.lastSeen = e.runStartedAt
	count := e.proc.Info().RestartCount
	m.mu.Unlock()

	m.publishEvent(ctx, id, ghosttypes.ProcessEvent{Type: ghosttypes.EventProcessRestarted, Restarted: &ghosttypes.ProcessRestarted{ID: id, RestartCount: count}})
}
