//go:build !windows

package spawn

import (
	"bytes"
	"errors"
	"os"
	"strconv"
	"syscall"
)

// Alive probes liveness with a null signal. EPERM means the pid exists but
// belongs to someone else, which still counts as alive; ESRCH means dead.
// A zombie is reported dead: it no longer runs, it only awaits reaping.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// Terminate delivers SIGTERM to the pid.
func Terminate(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return errdefSignal(pid, "SIGTERM", err)
	}
	return nil
}

// Kill delivers SIGKILL to the pid.
func Kill(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return errdefSignal(pid, "SIGKILL", err)
	}
	return nil
}

// isZombie reports whether /proc/<pid>/status shows state Z. Only
// meaningful on Linux; elsewhere the file is absent and the answer is no.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// reapOnce performs a non-blocking wait on a direct child. It reports true
// when the kernel entry was collected, or when the pid is not our child at
// all (nothing left for us to reap).
func reapOnce(pid int) bool {
	var ws syscall.WaitStatus
	wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
	if err != nil {
		return errors.Is(err, syscall.ECHILD)
	}
	return wpid == pid
}
