//go:build windows

package process

import "os/exec"

// setSysProcAttr is a no-op on Windows; process-group semantics differ
// and are handled via taskkill in killTree instead.
func setSysProcAttr(cmd *exec.Cmd) {
	_ = cmd
}

// killTree terminates the process tree rooted at pid using taskkill,
// since Windows has no POSIX process-group signal.
func killTree(pid int, _ int) error {
	cmd := exec.Command("taskkill", "/T", "/F", "/PID", itoa(pid))
	return cmd.Run()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
