package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestIsDaemonProcessRunningFalseWhenUnlocked(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "daemon.lock")

	if IsDaemonProcessRunning(lockPath) {
		t.Fatal("expected no daemon running against a fresh lock file")
	}
}

func TestIsDaemonProcessRunningTrueWhileHeld(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "daemon.lock")

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("open lock file: %v", err)
	}
	defer f.Close()

	locked, err := tryFlockExclusive(f)
	if err != nil || !locked {
		t.Fatalf("expected to acquire the lock myself: locked=%v err=%v", locked, err)
	}

	if !IsDaemonProcessRunning(lockPath) {
		t.Fatal("expected IsDaemonProcessRunning to report true while the lock is held elsewhere")
	}
}

func TestTryStartDaemonFailsWithEmptyPath(t *testing.T) {
	if TryStartDaemon(context.Background(), "") {
		t.Fatal("expected TryStartDaemon to fail with an empty path")
	}
}

func TestRunDiagnosticsReportsBrokerDown(t *testing.T) {
	res := RunDiagnostics(context.Background(), Request{
		LockFilePath:    filepath.Join(t.TempDir(), "daemon.lock"),
		FallbackEnabled: false,
	})
	if res.IsBrokerAvailable {
		t.Fatal("expected IsBrokerAvailable=false with no Bus configured")
	}
	if res.DiagnosticMessage == "" {
		t.Fatal("expected a non-empty diagnostic message")
	}
}
