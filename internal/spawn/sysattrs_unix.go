//go:build !windows

package spawn

import "syscall"

// detachAttrs starts the child in a new session so it survives the
// supervisor's terminal and process group.
func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
