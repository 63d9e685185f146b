package connection

import (
	"runtime"
	"time"

	"github.com/prometheus/procfs"

	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// cpuSampler tracks the process/gc counters needed to compute a CPU
// percentage between two samples, per spec.md §4.3's 5-second metrics
// timer. On non-Linux platforms (no /proc), CPUPercentage is left at 0;
// every other field still reports.
type cpuSampler struct {
	proc       procfs.Proc
	havePROC   bool
	lastCPU    float64
	lastSample time.Time
}

func newCPUSampler() *cpuSampler {
	s := &cpuSampler{lastSample: time.Time{}}
	if fs, err := procfs.Self(); err == nil {
		s.proc = fs
		s.havePROC = true
	}
	return s
}

// Sample returns a ProcessMetrics for processID, computing CPUPercentage
// from the delta in total CPU ticks since the previous call (0 on the
// first call, and on platforms without /proc).
func (s *cpuSampler) Sample(processID string) ghosttypes.ProcessMetrics {
	now := time.Now().UTC()
	m := ghosttypes.ProcessMetrics{ProcessID: processID, Timestamp: now}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.GCTotalMemory = mem.HeapAlloc
	m.Gen0Collections = uint32(mem.NumGC)
	m.ThreadCount = runtime.NumGoroutine()

	if !s.havePROC {
		return m
	}

	stat, err := s.proc.Stat()
	if err != nil {
		return m
	}
	m.MemoryBytes = uint64(stat.RSS) * uint64(pageSize())
	cpuTicks := stat.UTime + stat.STime

	if !s.lastSample.IsZero() {
		elapsed := now.Sub(s.lastSample).Seconds()
		if elapsed >= 0.1 {
			deltaTicks := float64(cpuTicks) - s.lastCPU
			cores := float64(runtime.NumCPU())
			if cores < 1 {
				cores = 1
			}
			m.CPUPercentage = (deltaTicks / float64(clockTicksPerSec)) / elapsed * 100 / cores
			if m.CPUPercentage < 0 {
				m.CPUPercentage = 0
			}
			if m.CPUPercentage > 100 {
				m.CPUPercentage = 100
			}
		}
	}
	s.lastCPU = float64(cpuTicks)
	s.lastSample = now
	return m
}

// clockTicksPerSec is USER_HZ on every Linux target Ghost runs on.
const clockTicksPerSec = 100

func pageSize() int { return 4096 }
