//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr places the child in its own process group so Stop's kill
// escalation can signal the whole tree at once.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killTree sends sig to the process group rooted at pid.
func killTree(pid int, sig int) error {
	return syscall.Kill(-pid, syscall.Signal(sig))
}
