// Package ghosttypes holds the wire and domain types shared by every Ghost
// component: process metadata, commands, events, and the queue-internal
// message envelope. Keeping these in one leaf package avoids import
// cycles between cache, bus, connection, process, and processmanager.
package ghosttypes

import "time"

// ProcessType classifies a managed process.
type ProcessType string

const (
	ProcessTypeService ProcessType = "service"
	ProcessTypeApp     ProcessType = "app"
	ProcessTypeDaemon  ProcessType = "daemon"
)

// ProcessMetadata is immutable after creation.
type ProcessMetadata struct {
	Name          string            `json:"name"`
	Type          ProcessType       `json:"type"`
	Version       string            `json:"version"`
	Environment   map[string]string `json:"environment,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty"`
}

// ProcessStatus is a state in the Process lifecycle state machine.
type ProcessStatus string

const (
	StatusStopped  ProcessStatus = "Stopped"
	StatusStarting ProcessStatus = "Starting"
	StatusRunning  ProcessStatus = "Running"
	StatusStopping ProcessStatus = "Stopping"
	StatusCrashed  ProcessStatus = "Crashed"
	StatusFailed   ProcessStatus = "Failed"
)

// IsTerminal reports whether s is one of the states a Process does not
// leave without an explicit Start/Restart call.
func (s ProcessStatus) IsTerminal() bool {
	switch s {
	case StatusStopped, StatusCrashed, StatusFailed:
		return true
	default:
		return false
	}
}

// ProcessInfo is the daemon-side record of a supervised process. Status,
// StopTime and RestartCount are mutated only by the owning Process/
// ProcessManager under its lock; see the invariants in spec.md §3.
type ProcessInfo struct {
	ID               string
	Metadata         ProcessMetadata
	ExecutablePath   string
	Arguments        []string
	WorkingDirectory string
	MaxBufferSize    int
	Status           ProcessStatus
	StartTime        time.Time
	StopTime         *time.Time
	RestartCount     int
	LastErrorText    string
}

// ProcessRegistration is the snapshot an app sends to the daemon at
// registration time. It is derived from ProcessInfo, never authoritative.
type ProcessRegistration struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Type             ProcessType       `json:"type"`
	Version          string            `json:"version"`
	ExecutablePath   string            `json:"executable_path"`
	Arguments        []string          `json:"arguments,omitempty"`
	WorkingDirectory string            `json:"working_directory"`
	Environment      map[string]string `json:"environment,omitempty"`
	Configuration    map[string]string `json:"configuration,omitempty"`
}

// ProcessMetrics is one sample in the append-only metrics stream for a
// process; instances are never mutated after construction.
type ProcessMetrics struct {
	ProcessID        string    `json:"process_id"`
	CPUPercentage    float64   `json:"cpu_percentage"`
	MemoryBytes      uint64    `json:"memory_bytes"`
	ThreadCount      int       `json:"thread_count"`
	HandleCount      int       `json:"handle_count"`
	GCTotalMemory    uint64    `json:"gc_total_memory"`
	Gen0Collections  uint32    `json:"gen0_collections"`
	Gen1Collections  uint32    `json:"gen1_collections"`
	Gen2Collections  uint32    `json:"gen2_collections"`
	Timestamp        time.Time `json:"timestamp"`
}

// ProcessState is the externally visible snapshot returned by
// ProcessManager.List.
type ProcessState struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	IsRunning  bool            `json:"is_running"`
	IsService  bool            `json:"is_service"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    *time.Time      `json:"end_time,omitempty"`
	LastMetrics *ProcessMetrics `json:"last_metrics,omitempty"`
	LastSeen   time.Time       `json:"last_seen"`
}

// HeartbeatMessage is the compact periodic liveness message published on
// ghost:health:{id}.
type HeartbeatMessage struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	AppType   string    `json:"app_type"`
}
