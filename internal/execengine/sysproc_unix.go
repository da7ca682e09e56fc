//go:build !windows

package execengine

import "syscall"

// setpgidAttr puts the child in its own process group so a timeout or
// cancellation can SIGTERM/SIGKILL the whole group, not just the direct
// child — required because shell_exec commands routinely fork their own
// descendants.
func setpgidAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends sig to the whole process group, matching the
// requirement that timeout/cancellation reach every descendant, not just
// the direct child.
func killProcessGroup(pid int, sig int) {
	_ = syscall.Kill(-pid, syscall.Signal(sig))
}
