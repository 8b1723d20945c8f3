// Package engine implements the quickshifter ignition-cut core: pulse
// capture from the pickup coil, noise-rejecting RPM estimation, shift
// debouncing, RPM-indexed cut duration lookup, the one-shot cut timer,
// and pickup signal-loss supervision.
//
// The edge handlers (HandlePickupPulse, HandleShiftEdge) play the role
// of the device's interrupt service routines: they are non-blocking,
// bounded-time, and safe to call from dedicated edge-watch goroutines.
// State shared between handlers and the control loop is guarded by one
// short mutex standing in for the interrupt mask; the cut flag is a
// single atomic; the configuration is an atomically swapped pointer.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"quickshifter-go/pkg/hal"
	"quickshifter-go/pkg/log"
	"quickshifter-go/pkg/metrics"
)

// Core timing constants, in microseconds.
const (
	// baselineGapMicros is the pulse gap beyond which the interval
	// baseline is re-established (stall, startup, re-acquisition).
	baselineGapMicros = 100_000

	// minIntervalMicros is the absolute sanity floor: intervals below
	// this imply more than 20,000 RPM and are rejected regardless of
	// history.
	minIntervalMicros = 3000

	// signalTimeoutMicros is the pickup-silence window after which the
	// supervisor declares signal loss.
	signalTimeoutMicros = 1_000_000

	microsPerMinute = 60_000_000
)

// CutTimer is the one-shot, restartable timer ending an ignition cut.
// Arm (re)programs the duration and starts the timer; arming a running
// timer restarts it with the new duration rather than accumulating.
// The expiry callback runs in its own execution context, separate from
// the edge handlers.
type CutTimer interface {
	Arm(d time.Duration)
}

// Status is the snapshot exported to external collaborators.
type Status struct {
	RPM          uint16 `json:"rpm"`
	SignalActive bool   `json:"signalActive"`
	CutActive    bool   `json:"cutActive"`
}

// Engine is the ignition-cut core. Create it with New; a single Engine
// serves the process for its lifetime.
type Engine struct {
	cfg atomic.Pointer[Config]

	// mu stands in for the interrupt mask: it guards every multi-word
	// read or write of the pulse and shift state below.
	mu                sync.Mutex
	lastPulseTime     uint64 // 0 means no baseline yet
	lastValidInterval uint64 // 0 means no established interval
	currentRPM        uint16 // 0 means unknown / no signal
	lastAcceptedShift uint64 // timestamp of last accepted shift event
	signalActive      bool
	pendingShift      *ShiftEvent
	lastShift         ShiftEvent

	cutActive atomic.Bool

	cutOut hal.Output
	timer  CutTimer
	clock  hal.Clock
	logger *log.Logger

	// Diagnostics counters. Rejections are observable here without
	// affecting control behavior.
	pulsesAccepted       *metrics.Counter
	pulsesBaseline       *metrics.Counter
	pulsesRejectedFilter *metrics.Counter
	pulsesRejectedMin    *metrics.Counter
	shiftsTriggered      *metrics.Counter
	shiftsDebounced      *metrics.Counter
	shiftsRPMTooLow      *metrics.Counter
	cutsTotal            *metrics.Counter
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock sets the monotonic clock used by Tick and ManualShift.
// Edge timestamps must come from the same clock.
func WithClock(c hal.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithOutput sets the ignition-cut output line.
func WithOutput(o hal.Output) Option {
	return func(e *Engine) { e.cutOut = o }
}

// WithCutTimerFactory replaces the wall-clock cut timer. The factory
// receives the expiry callback that ends the cut and must invoke it
// from outside the caller's context when the armed duration elapses.
func WithCutTimerFactory(f func(onExpire func()) CutTimer) Option {
	return func(e *Engine) { e.timer = f(e.finishCut) }
}

// WithMetrics registers the engine's diagnostics counters on the given
// registry instead of a private one.
func WithMetrics(r *metrics.Registry) Option {
	return func(e *Engine) { e.bindCounters(r) }
}

// WithLogger sets the logger used by the control-loop paths.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

type noopOutput struct{}

func (noopOutput) Set(bool) {}

// New creates an Engine with the given configuration.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cutOut: noopOutput{},
	}
	e.cfg.Store(&cfg)
	e.bindCounters(metrics.NewRegistry())
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = hal.NewMonotonicClock()
	}
	if e.timer == nil {
		e.timer = newWallTimer(e.finishCut)
	}
	return e
}

func (e *Engine) bindCounters(r *metrics.Registry) {
	e.pulsesAccepted = r.Counter("qs_pulses_accepted_total")
	e.pulsesBaseline = r.Counter("qs_pulses_baseline_total")
	e.pulsesRejectedFilter = r.Counter("qs_pulses_rejected_filter_total")
	e.pulsesRejectedMin = r.Counter("qs_pulses_rejected_min_interval_total")
	e.shiftsTriggered = r.Counter("qs_shifts_triggered_total")
	e.shiftsDebounced = r.Counter("qs_shifts_debounced_total")
	e.shiftsRPMTooLow = r.Counter("qs_shifts_rpm_too_low_total")
	e.cutsTotal = r.Counter("qs_cuts_total")
}

// Attach wires the engine's handlers to the given edge sources. The
// button source may be nil when no manual trigger input exists.
func (e *Engine) Attach(pickup, shift, button hal.EdgeSource) error {
	if err := pickup.Watch(e.HandlePickupPulse); err != nil {
		return err
	}
	if err := shift.Watch(func(ts uint64) { e.HandleShiftEdge(ts, false) }); err != nil {
		return err
	}
	if button != nil {
		if err := button.Watch(func(ts uint64) { e.HandleShiftEdge(ts, true) }); err != nil {
			return err
		}
	}
	return nil
}

// ApplyConfig atomically replaces the active configuration. Callable
// from non-edge context only. In-flight handlers observe either the
// fully-old or fully-new configuration, never a mix.
func (e *Engine) ApplyConfig(cfg Config) {
	c := cfg
	e.cfg.Store(&c)
	if e.logger != nil {
		e.logger.Infof("config applied: threshold=%d debounce=%dms", cfg.MinRPMThreshold, cfg.DebounceTimeMs)
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return *e.cfg.Load()
}

// Status returns a synchronized snapshot of RPM, signal and cut state.
// Cheap; callable from any context that tolerates a brief critical
// section.
func (e *Engine) Status() Status {
	e.mu.Lock()
	rpm := e.currentRPM
	sig := e.signalActive
	e.mu.Unlock()

	return Status{
		RPM:          rpm,
		SignalActive: sig,
		CutActive:    e.cutActive.Load(),
	}
}

// ManualShift injects a manual shift request (test trigger) bypassing
// the RPM gate, timestamped on the engine clock.
func (e *Engine) ManualShift() {
	e.HandleShiftEdge(e.clock.NowMicros(), true)
}

// Tick runs the signal supervisor once. Must be called at least once
// per control-loop iteration (sub-10 ms cadence) to keep timeout
// detection responsive. Non-edge context only.
func (e *Engine) Tick() {
	now := e.clock.NowMicros()

	e.mu.Lock()
	active := e.lastPulseTime > 0 && now-e.lastPulseTime < signalTimeoutMicros
	wasActive := e.signalActive
	e.signalActive = active
	if wasActive && !active {
		// Signal lost: zero RPM under the same lock the pulse
		// handler writes it with.
		e.currentRPM = 0
	}
	e.mu.Unlock()

	if e.logger != nil && wasActive != active {
		if active {
			e.logger.Infof("pickup signal acquired")
		} else {
			e.logger.Warnf("pickup signal lost, rpm zeroed")
		}
	}
}
