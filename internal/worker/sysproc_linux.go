//go:build linux

package worker

import "syscall"

// The worker must not outlive the server that spawned it. The signal is tied
// to the spawning thread; see Process.run.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
