// Package diagnostics implements C7: the periodic connection-health
// probe, daemon liveness check, and auto-start, per spec.md §4.7.
package diagnostics

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jlabarca/ghost/internal/bus"
)

// Results is the outcome of one RunDiagnostics call.
type Results struct {
	IsBrokerAvailable      bool      `json:"is_broker_available"`
	IsDaemonRunning        bool      `json:"is_daemon_running"`
	IsNetworkOK            bool      `json:"is_network_ok"`
	HasRequiredPermissions bool      `json:"has_required_permissions"`
	CanUseFallback         bool      `json:"can_use_fallback"`
	CanAutoStartDaemon     bool      `json:"can_auto_start_daemon"`
	DiagnosticMessage      string    `json:"diagnostic_message"`
	RecommendedActions     []string  `json:"recommended_actions"`
	Timestamp              time.Time `json:"timestamp"`
}

// Request parameterizes RunDiagnostics.
type Request struct {
	Bus             bus.Bus
	LockFilePath    string
	GhostdPath      string
	FallbackEnabled bool
	AutoStartAllowed bool
}

// RunDiagnostics runs the probe described in spec.md §4.6: broker
// reachability, daemon liveness, a rudimentary network check, and a
// permissions check for the daemon's install directory, then assembles
// a human-readable message and recommended next steps.
func RunDiagnostics(ctx context.Context, req Request) Results {
	res := Results{Timestamp: time.Now().UTC()}

	if req.Bus != nil {
		res.IsBrokerAvailable = req.Bus.IsAvailable(ctx)
	}
	res.IsDaemonRunning = IsDaemonProcessRunning(req.LockFilePath)
	res.IsNetworkOK = checkNetwork(ctx)
	res.HasRequiredPermissions = checkPermissions(req.LockFilePath)
	res.CanUseFallback = req.FallbackEnabled
	res.CanAutoStartDaemon = req.AutoStartAllowed && !res.IsDaemonRunning

	if onDrvFS, err := IsDrvFSPath(filepath.Dir(req.LockFilePath)); err == nil && onDrvFS {
		res.RecommendedActions = append(res.RecommendedActions, "install directory is on a WSL DrvFS mount; flock-based daemon liveness checks are unreliable there, move the install root onto the Linux filesystem")
	}

	switch {
	case res.IsBrokerAvailable:
		res.DiagnosticMessage = "broker reachable"
	case res.CanUseFallback:
		res.DiagnosticMessage = "broker unreachable, falling back to direct communication"
		res.RecommendedActions = append(res.RecommendedActions, "verify fallback endpoint is reachable")
	case !res.IsDaemonRunning:
		res.DiagnosticMessage = "broker unreachable and daemon is not running"
		res.RecommendedActions = append(res.RecommendedActions, "start the ghostd daemon")
		if res.CanAutoStartDaemon && TryStartDaemon(ctx, req.GhostdPath) {
			res.RecommendedActions = append(res.RecommendedActions, "auto-start is enabled; attempting to launch ghostd")
		}
	case !res.IsNetworkOK:
		res.DiagnosticMessage = "broker unreachable and local networking appears broken"
		res.RecommendedActions = append(res.RecommendedActions, "check loopback/network configuration")
	case !res.HasRequiredPermissions:
		res.DiagnosticMessage = "broker unreachable and the daemon's install directory is not accessible"
		res.RecommendedActions = append(res.RecommendedActions, fmt.Sprintf("check permissions on %s", filepath.Dir(req.LockFilePath)))
	default:
		res.DiagnosticMessage = "broker unreachable for an unknown reason"
	}

	return res
}

// IsDaemonProcessRunning reuses the daemon lock-file probe idiom from
// the teacher's daemonrunner package: the daemon holds an exclusive
// flock on lockFilePath for its entire lifetime, so a process can check
// liveness by attempting (and immediately releasing) the same lock.
func IsDaemonProcessRunning(lockFilePath string) bool {
	f, err := os.OpenFile(lockFilePath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false
	}
	defer f.Close()

	locked, err := tryFlockExclusive(f)
	if err != nil {
		return false
	}
	if !locked {
		return true // someone else holds it: the daemon is alive
	}
	_ = unlockFlock(f)
	return false
}

// TryStartDaemon shells out to ghostdPath, grounded on the teacher's
// cmd/bd/daemon_start.go auto-start pattern, detaching the child so it
// outlives this process.
func TryStartDaemon(ctx context.Context, ghostdPath string) bool {
	if ghostdPath == "" {
		return false
	}
	cmd := exec.CommandContext(ctx, ghostdPath, "--foreground=false")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return false
	}
	_ = cmd.Process.Release()
	return true
}

func checkNetwork(ctx context.Context) bool {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", "127.0.0.1:0")
	if err == nil {
		conn.Close()
		return true
	}
	// Dialing port 0 always fails to connect (nothing listens there); a
	// network stack that is up still returns a connection-refused style
	// error rather than a DNS/route failure. Treat anything other than a
	// timeout as "network OK".
	var netErr net.Error
	if ok := errorsAs(err, &netErr); ok && netErr.Timeout() {
		return false
	}
	return true
}

func checkPermissions(lockFilePath string) bool {
	if lockFilePath == "" {
		return true
	}
	dir := filepath.Dir(lockFilePath)
	info, err := os.Stat(dir)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func errorsAs(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
