//go:build linux

// Package rt configures the daemon process for low-latency operation
// on Linux hosts: locked memory and FIFO scheduling. Both calls need
// elevated privileges and are best-effort; the caller decides whether
// a failure is fatal.
package rt

import "golang.org/x/sys/unix"

// LockMemory pins current and future pages into RAM so the control
// loop never takes a major page fault.
func LockMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

// SetScheduler switches the process to SCHED_FIFO at the given
// priority (1..99).
func SetScheduler(priority int) error {
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	return unix.SchedSetAttr(0, &attr, 0)
}
