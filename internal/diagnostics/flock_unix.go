//go:build !windows

package diagnostics

import (
	"os"
	"syscall"
)

// tryFlockExclusive attempts a non-blocking exclusive flock, grounded on
// the teacher's internal/lockfile FlockExclusiveNonBlock. Returns
// locked=false (no error) if another process already holds it.
func tryFlockExclusive(f *os.File) (locked bool, err error) {
	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == syscall.EWOULDBLOCK {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func unlockFlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
