// Package hal defines the hardware access interfaces consumed by the
// quickshifter core: digital outputs, rising-edge inputs, and a
// microsecond-resolution monotonic clock. Implementations live in
// subpackages (Linux GPIO) and in this package (in-memory pins for
// tests and the bench simulator).
package hal

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrPinNotFound  = errors.New("hal: pin not found")
	ErrAlreadyWatch = errors.New("hal: edge source already has a handler")
	ErrClosed       = errors.New("hal: edge source closed")
)

// Output is a digital output line.
type Output interface {
	// Set drives the line high (true) or low (false).
	Set(high bool)
}

// EdgeHandler receives the timestamp of a rising edge, in microseconds
// on the monotonic clock shared with the engine. Handlers run on the
// edge source's dispatch goroutine and must not block.
type EdgeHandler func(timestampMicros uint64)

// EdgeSource delivers rising edges from an input line to a handler.
type EdgeSource interface {
	// Watch installs the handler and starts edge delivery.
	// Only one handler may be installed per source.
	Watch(h EdgeHandler) error

	// Close stops edge delivery.
	Close() error
}

// Clock provides monotonic time in microseconds. All timestamps fed to
// the engine (pulse edges, shift edges, supervisor ticks) must come
// from the same clock.
type Clock interface {
	NowMicros() uint64
}

type monotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a Clock backed by the process monotonic
// clock, starting near zero.
func NewMonotonicClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) NowMicros() uint64 {
	return uint64(time.Since(c.start).Microseconds())
}
