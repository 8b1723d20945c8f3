//go:build !linux

package rt

import "errors"

// ErrUnsupported is returned on platforms without real-time setup.
var ErrUnsupported = errors.New("rt: not supported on this platform")

// LockMemory is a no-op stub off Linux.
func LockMemory() error {
	return ErrUnsupported
}

// SetScheduler is a no-op stub off Linux.
func SetScheduler(priority int) error {
	return ErrUnsupported
}
