// Package periphhal implements the hal interfaces on real GPIO lines
// via periph.io. Each input line gets one edge-watch goroutine that
// timestamps rising edges on the shared monotonic clock and dispatches
// them to the installed handler, standing in for the MCU's interrupt
// delivery.
package periphhal

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"quickshifter-go/pkg/hal"
)

// Init loads the host GPIO drivers. Call once before opening pins.
func Init() error {
	_, err := host.Init()
	return err
}

// Output is a hal.Output on a real GPIO line.
type Output struct {
	pin gpio.PinIO
}

// OpenOutput opens the named pin as an output driven low.
func OpenOutput(name string) (*Output, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", hal.ErrPinNotFound, name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("periphhal: configure %s as output: %w", name, err)
	}
	return &Output{pin: pin}, nil
}

// Set implements hal.Output. Errors from the driver are swallowed:
// the caller is the cut hot path and has no error channel, matching
// the fire-and-forget register write on the device.
func (o *Output) Set(high bool) {
	o.pin.Out(gpio.Level(high))
}

// Pin returns the underlying pin name, for logging.
func (o *Output) Pin() string {
	return o.pin.Name()
}

// edgeWaitTimeout bounds WaitForEdge so the watch goroutine can notice
// Close in bounded time.
const edgeWaitTimeout = 500 * time.Millisecond

// EdgeInput is a hal.EdgeSource on a real GPIO line configured for
// rising-edge detection.
type EdgeInput struct {
	pin   gpio.PinIO
	clock hal.Clock

	mu      sync.Mutex
	done    chan struct{}
	started bool
}

// OpenInput opens the named pin as a rising-edge input with the given
// pull. Timestamps are taken on clock.
func OpenInput(name string, pull gpio.Pull, clock hal.Clock) (*EdgeInput, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", hal.ErrPinNotFound, name)
	}
	if err := pin.In(pull, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("periphhal: configure %s as input: %w", name, err)
	}
	return &EdgeInput{
		pin:   pin,
		clock: clock,
		done:  make(chan struct{}),
	}, nil
}

// Watch implements hal.EdgeSource.
func (e *EdgeInput) Watch(h hal.EdgeHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return hal.ErrAlreadyWatch
	}
	e.started = true

	go e.watchLoop(h)
	return nil
}

func (e *EdgeInput) watchLoop(h hal.EdgeHandler) {
	for {
		select {
		case <-e.done:
			return
		default:
		}
		if !e.pin.WaitForEdge(edgeWaitTimeout) {
			continue
		}
		h(e.clock.NowMicros())
	}
}

// Close implements hal.EdgeSource.
func (e *EdgeInput) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.done:
	default:
		close(e.done)
	}
	return nil
}

// Pin returns the underlying pin name, for logging.
func (e *EdgeInput) Pin() string {
	return e.pin.Name()
}
