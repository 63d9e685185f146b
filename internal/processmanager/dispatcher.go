package processmanager

import (
	"context"
	"strings"
	"time"

	"github.com/jlabarca/ghost/internal/bus"
	"github.com/jlabarca/ghost/internal/ghosttypes"
	"github.com/jlabarca/ghost/internal/wire"
)

// dispatchCommands subscribes to ghost:commands and answers each
// SystemCommand by CommandType, per spec.md §4.5/§6.
func (m *Manager) dispatchCommands(ctx context.Context) {
	if m.b == nil {
		return
	}
	sub, err := m.b.Subscribe(ctx, "ghost:commands")
	if err != nil {
		return
	}
	defer sub.Close()

	for {
		cmd, ok, err := bus.Receive[ghosttypes.SystemCommand](ctx, sub)
		if !ok {
			return
		}
		if err != nil {
			continue
		}
		go m.handleCommand(ctx, cmd)
	}
}

func (m *Manager) handleCommand(ctx context.Context, cmd ghosttypes.SystemCommand) {
	resp := m.dispatch(ctx, cmd)
	if channel := cmd.ResponseChannel(); channel != "" && m.b != nil {
		_ = m.b.Publish(ctx, channel, resp, 0)
	}
}

func (m *Manager) dispatch(ctx context.Context, cmd ghosttypes.SystemCommand) ghosttypes.CommandResponse {
	base := ghosttypes.CommandResponse{CommandID: cmd.CommandID, Timestamp: time.Now().UTC()}

	switch cmd.CommandType {
	case ghosttypes.CommandPing:
		base.Success = true
		return base

	case ghosttypes.CommandRegister:
		var reg ghosttypes.ProcessRegistration
		if err := wire.Decode(cmd.Payload, &reg); err != nil {
			base.Error = "invalid registration payload"
			return base
		}
		info, err := m.Register(ctx, reg)
		if err != nil {
			base.Error = err.Error()
			return base
		}
		base.Success = true
		base.Data = ghosttypes.StringData(info.ID)
		return base

	case ghosttypes.CommandStart:
		if err := m.Start(ctx, cmd.TargetProcessID); err != nil {
			base.Error = err.Error()
			return base
		}
		base.Success = true
		return base

	case ghosttypes.CommandStop:
		if err := m.Stop(ctx, cmd.TargetProcessID, 10*time.Second); err != nil {
			base.Error = err.Error()
			return base
		}
		base.Success = true
		return base

	case ghosttypes.CommandRestart:
		if err := m.Restart(ctx, cmd.TargetProcessID, 10*time.Second); err != nil {
			base.Error = err.Error()
			return base
		}
		base.Success = true
		return base

	case ghosttypes.CommandList, ghosttypes.CommandStatus, ghosttypes.CommandDiscover:
		base.Success = true
		base.Data = ghosttypes.ProcessListData(m.List())
		return base

	case ghosttypes.CommandLogs:
		lines, err := m.Logs(cmd.TargetProcessID)
		if err != nil {
			base.Error = err.Error()
			return base
		}
		base.Success = true
		base.Data = ghosttypes.StringData(strings.Join(lines, "\n"))
		return base

	default:
		base.Error = "unknown command"
		return base
	}
}
