package processmanager

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// trackLiveness subscribes to ghost:metrics:* and ghost:health:*, updating
// each entry's LastSeen (and LastMetrics, for metrics) as samples arrive.
func (m *Manager) trackLiveness(ctx context.Context) {
	if m.b == nil {
		return
	}
	var g errgroup.Group
	g.Go(func() error { m.trackMetrics(ctx); return nil })
	g.Go(func() error { m.trackHealth(ctx); return nil })
	_ = g.Wait()
}

func (m *Manager) trackMetrics(ctx context.Context) {
	sub, err := m.b.Subscribe(ctx, "ghost:metrics:*")
	if err != nil {
		return
	}
	defer sub.Close()
	for {
		sample, ok, err := bus.Receive[ghosttypes.ProcessMetrics](ctx, sub)
		if !ok {
			return
		}
		if err != nil {
			continue // malformed sample: skipped
		}
		m.recordMetrics(sample)
	}
}

func (m *Manager) trackHealth(ctx context.Context) {
	sub, err := m.b.Subscribe(ctx, "ghost:health:*")
	if err != nil {
		return
	}
	defer sub.Close()
	for {
		hb, ok, err := bus.Receive[ghosttypes.HeartbeatMessage](ctx, sub)
		if !ok {
			return
		}
		if err != nil {
			continue
		}
		m.recordHeartbeat(hb)
	}
}

func (m *Manager) recordMetrics(sample ghosttypes.ProcessMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sample.ProcessID]
	if !ok {
		return
	}
	e.lastMetrics = &sample
	e.lastSeen = time.Now().UTC()
	e.endOverride = nil
}

func (m *Manager) recordHeartbeat(hb ghosttypes.HeartbeatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[hb.ID]
	if !ok {
		return
	}
	e.lastSeen = time.Now().UTC()
	e.endOverride = nil
}

// sweepStalled runs every m.stalledThreshold; any Running entry whose
// LastSeen is older than the threshold is marked stalled so List() snap-
// shots it with IsRunning=false, EndTime=LastSeen (spec.md §4.5/§8).
func (m *Manager) sweepStalled(ctx context.Context) {
	ticker := time.NewTicker(m.stalledThreshold)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, e := range m.entries {
		info := e.proc.Info()
		if info.Status != ghosttypes.StatusRunning {
			continue
		}
		baseline := e.lastSeen
		if baseline.IsZero() {
			baseline = e.runStartedAt
		}
		if baseline.IsZero() {
			continue
		}
		if now.Sub(baseline) > m.stalledThreshold {
			seen := baseline
			e.endOverride = &seen
		}
	}
}
