// Package reactor provides the control-loop scheduler: a single
// dispatch goroutine firing registered timers on a monotonic
// float64-seconds clock. The daemon drives the engine supervisor tick,
// LED updates and telemetry broadcast through it.
package reactor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// NEVER as a wake time parks a timer indefinitely.
const NEVER = 9999999999999999.0

// TimerCallback is called when a timer fires. It receives the event
// time and returns the next wake time; returning NEVER parks the timer.
type TimerCallback func(eventtime float64) float64

// Timer is a registered timer.
type Timer struct {
	mu       sync.Mutex
	callback TimerCallback
	waketime float64
}

// Waketime returns the timer's current wake time.
func (t *Timer) Waketime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waketime
}

// Reactor dispatches timers from a single goroutine.
type Reactor struct {
	mu     sync.Mutex
	timers []*Timer
	wake   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	running   atomic.Bool
	wg        sync.WaitGroup
	startTime time.Time
}

// New creates a Reactor.
func New() *Reactor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Monotonic returns the current monotonic time in seconds.
func (r *Reactor) Monotonic() float64 {
	return time.Since(r.startTime).Seconds()
}

// RegisterTimer registers a timer firing at waketime.
func (r *Reactor) RegisterTimer(callback TimerCallback, waketime float64) *Timer {
	t := &Timer{callback: callback, waketime: waketime}

	r.mu.Lock()
	r.timers = append(r.timers, t)
	r.mu.Unlock()

	r.notify()
	return t
}

// UpdateTimer changes a timer's wake time.
func (r *Reactor) UpdateTimer(t *Timer, waketime float64) {
	t.mu.Lock()
	t.waketime = waketime
	t.mu.Unlock()
	r.notify()
}

// UnregisterTimer removes a timer.
func (r *Reactor) UnregisterTimer(timer *Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.timers {
		if t == timer {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			return
		}
	}
}

// notify wakes the dispatch loop early after a timer change.
func (r *Reactor) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run starts the dispatch loop.
func (r *Reactor) Run() {
	if r.running.Swap(true) {
		return
	}
	r.wg.Add(1)
	go r.dispatchLoop()
}

// End signals the reactor to stop.
func (r *Reactor) End() {
	r.running.Store(false)
	r.cancel()
}

// Wait blocks until the dispatch loop exits.
func (r *Reactor) Wait() {
	r.wg.Wait()
}

func (r *Reactor) dispatchLoop() {
	defer r.wg.Done()

	for r.running.Load() {
		next := r.fireDue(r.Monotonic())

		delay := time.Duration((next - r.Monotonic()) * float64(time.Second))
		if delay < 0 {
			delay = 0
		}
		if delay > time.Second {
			delay = time.Second
		}

		select {
		case <-time.After(delay):
		case <-r.wake:
		case <-r.ctx.Done():
			return
		}
	}
}

// fireDue runs every due timer once and returns the earliest pending
// wake time.
func (r *Reactor) fireDue(eventtime float64) float64 {
	r.mu.Lock()
	timers := make([]*Timer, len(r.timers))
	copy(timers, r.timers)
	r.mu.Unlock()

	next := NEVER
	for _, t := range timers {
		t.mu.Lock()
		waketime := t.waketime
		t.mu.Unlock()

		if eventtime >= waketime {
			waketime = t.callback(eventtime)
			t.mu.Lock()
			t.waketime = waketime
			t.mu.Unlock()
		}
		if waketime < next {
			next = waketime
		}
	}
	return next
}
