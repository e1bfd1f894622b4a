//go:build linux

package worker

import "syscall"

// The worker leaves the parent's group, so a terminal SIGINT never reaches it;
// Pdeathsig kills it if the parent dies without reaping it.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}
