package ghosttypes

import (
	"encoding/json"
	"time"
)

// EventType is one of the closed SystemEvent types recognized across the
// bus. New members must be added here, not invented ad hoc by callers.
type EventType string

const (
	EventProcessRegistered   EventType = "process.registered"
	EventProcessStarted      EventType = "process.started"
	EventProcessStopped      EventType = "process.stopped"
	EventProcessCrashed      EventType = "process.crashed"
	EventProcessRestarted    EventType = "process.restarted"
	EventProcessFailed       EventType = "process.failed"
	EventHealthStatusChanged EventType = "health.status.changed"
	EventDaemonStarted       EventType = "daemon.started"
	EventDaemonStopping      EventType = "daemon.stopping"
)

// SystemEvent is the one canonical event envelope published on ghost:events
// and ghost:events:{id}. Data carries the type-specific payload pre-
// serialized by the ProcessEvent variant that produced it.
type SystemEvent struct {
	Type      EventType `json:"type"`
	ProcessID string    `json:"process_id"`
	Data      []byte    `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessEvent is the closed variant type called for by the REDESIGN FLAGS:
// a typed payload per EventType instead of a dynamic JSON shape. Exactly
// one of the pointer fields is set, matching Type.
type ProcessEvent struct {
	Type         EventType
	Registered   *ProcessRegistration
	Started      *ProcessStarted
	Stopped      *ProcessStopped
	Crashed      *ProcessCrashed
	Restarted    *ProcessRestarted
	Failed       *ProcessFailed
	HealthChange *HealthStatusChanged
}

// ProcessStarted is the payload for EventProcessStarted.
type ProcessStarted struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessStopped is the payload for EventProcessStopped.
type ProcessStopped struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessCrashed is the payload for EventProcessCrashed.
type ProcessCrashed struct {
	ID       string `json:"id"`
	ExitCode int    `json:"exit_code"`
	Reason   string `json:"reason,omitempty"`
}

// ProcessRestarted is the payload for EventProcessRestarted.
type ProcessRestarted struct {
	ID           string `json:"id"`
	RestartCount int    `json:"restart_count"`
}

// ProcessFailed is the payload for EventProcessFailed, emitted after the
// restart policy exhausts MaxRestartAttempts.
type ProcessFailed struct {
	ID           string `json:"id"`
	Attempts     int    `json:"attempts"`
	LastError    string `json:"last_error,omitempty"`
}

// HealthStatusChanged is the payload for EventHealthStatusChanged.
type HealthStatusChanged struct {
	ID       string `json:"id"`
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
}

// ToSystemEvent serializes the variant's active payload and wraps it in a
// SystemEvent envelope ready for Bus.Publish.
func (e ProcessEvent) ToSystemEvent(processID string) (SystemEvent, error) {
	var payload any
	switch e.Type {
	case EventProcessRegistered:
		payload = e.Registered
	case EventProcessStarted:
		payload = e.Started
	case EventProcessStopped:
		payload = e.Stopped
	case EventProcessCrashed:
		payload = e.Crashed
	case EventProcessRestarted:
		payload = e.Restarted
	case EventProcessFailed:
		payload = e.Failed
	case EventHealthStatusChanged:
		payload = e.HealthChange
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return SystemEvent{}, err
	}
	return SystemEvent{
		Type:      e.Type,
		ProcessID: processID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}
