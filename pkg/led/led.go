// Package led drives the RGB status LED. Colors follow the device
// mapping: no-signal red, signal-ok green, cut-active blue, error
// red-blinking. Update runs in the control loop to advance the blink
// phase; nothing here is time-critical.
package led

import (
	"sync"

	"quickshifter-go/pkg/engine"
	"quickshifter-go/pkg/hal"
)

// Status is the visual state of the device.
type Status int

const (
	StatusNoSignal Status = iota
	StatusSignalOK
	StatusIgnitionCut
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNoSignal:
		return "no_signal"
	case StatusSignalOK:
		return "signal_ok"
	case StatusIgnitionCut:
		return "ignition_cut"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// color is the RGB channel levels for a status.
type color struct {
	r, g, b bool
}

func statusColor(s Status) color {
	switch s {
	case StatusSignalOK:
		return color{g: true}
	case StatusIgnitionCut:
		return color{b: true}
	default:
		// NoSignal and Error are both red; Error blinks.
		return color{r: true}
	}
}

// blinkPeriodMicros is the half-period of the error blink.
const blinkPeriodMicros = 500_000

// Controller owns the three LED output lines.
type Controller struct {
	mu        sync.Mutex
	r, g, b   hal.Output
	status    Status
	blinkOn   bool
	lastBlink uint64
}

// New creates a Controller in the no-signal state. The lines are not
// touched until the first Update.
func New(r, g, b hal.Output) *Controller {
	return &Controller{
		r:       r,
		g:       g,
		b:       b,
		status:  StatusNoSignal,
		blinkOn: true,
	}
}

// SetStatus changes the displayed status. Takes effect on the next
// Update.
func (c *Controller) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != s {
		c.status = s
		c.blinkOn = true
	}
}

// Status returns the currently displayed status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Update applies the current color and advances the blink phase. Call
// once per control-loop tick with the loop's clock.
func (c *Controller) Update(nowMicros uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusError {
		if nowMicros-c.lastBlink >= blinkPeriodMicros {
			c.blinkOn = !c.blinkOn
			c.lastBlink = nowMicros
		}
	} else {
		c.blinkOn = true
	}

	col := statusColor(c.status)
	on := c.blinkOn
	c.r.Set(col.r && on)
	c.g.Set(col.g && on)
	c.b.Set(col.b && on)
}

// ForEngine maps an engine status snapshot to a LED status. Cut-active
// wins over signal state so short cuts stay visible.
func ForEngine(st engine.Status) Status {
	switch {
	case st.CutActive:
		return StatusIgnitionCut
	case st.SignalActive:
		return StatusSignalOK
	default:
		return StatusNoSignal
	}
}
