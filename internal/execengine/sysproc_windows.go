//go:build windows

package execengine

import (
	"os"
	"syscall"
)

// setpgidAttr is a no-op on windows, which has no POSIX process groups;
// group-kill escalation is a POSIX-only behavior.
func setpgidAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// killProcessGroup falls back to killing just the one process on
// windows, which has no process-group signal delivery.
func killProcessGroup(pid int, sig int) {
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}
