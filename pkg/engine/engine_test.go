package engine

import (
	"sync"
	"testing"
	"time"

	"quickshifter-go/pkg/hal"
	"quickshifter-go/pkg/metrics"
)

// fakeTimer is a manually fired CutTimer.
type fakeTimer struct {
	mu       sync.Mutex
	onExpire func()
	armed    time.Duration
	arms     int
}

func (f *fakeTimer) Arm(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = d
	f.arms++
}

func (f *fakeTimer) Fire() {
	f.onExpire()
}

func (f *fakeTimer) ArmedDuration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

func (f *fakeTimer) ArmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.arms
}

type testRig struct {
	eng   *Engine
	clock *hal.ManualClock
	timer *fakeTimer
	out   *hal.MemOutput
	reg   *metrics.Registry
}

func newTestRig(cfg Config) *testRig {
	rig := &testRig{
		clock: hal.NewManualClock(1_000_000),
		timer: &fakeTimer{},
		out:   hal.NewMemOutput(),
		reg:   metrics.NewRegistry(),
	}
	rig.eng = New(cfg,
		WithClock(rig.clock),
		WithOutput(rig.out),
		WithMetrics(rig.reg),
		WithCutTimerFactory(func(onExpire func()) CutTimer {
			rig.timer.onExpire = onExpire
			return rig.timer
		}),
	)
	return rig
}

// pulse advances the clock by d microseconds and delivers a pickup
// edge at the new time.
func (r *testRig) pulse(d uint64) {
	r.eng.HandlePickupPulse(r.clock.Advance(d))
}

// establish feeds enough evenly spaced pulses to give the engine a
// baseline and a valid interval.
func (r *testRig) establish(intervalMicros uint64, n int) {
	for i := 0; i < n; i++ {
		r.pulse(intervalMicros)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MinRPMThreshold != 3000 {
		t.Errorf("MinRPMThreshold = %d, want 3000", cfg.MinRPMThreshold)
	}
	if cfg.DebounceTimeMs != 50 {
		t.Errorf("DebounceTimeMs = %d, want 50", cfg.DebounceTimeMs)
	}
	for i, v := range cfg.CutTimeMap {
		if v != 80 {
			t.Errorf("CutTimeMap[%d] = %d, want 80", i, v)
		}
	}
}

func TestApplyConfigAtomic(t *testing.T) {
	rig := newTestRig(DefaultConfig())

	next := DefaultConfig()
	next.MinRPMThreshold = 5000
	next.DebounceTimeMs = 20
	next.CutTimeMap[3] = 120
	rig.eng.ApplyConfig(next)

	got := rig.eng.Config()
	if got != next {
		t.Errorf("Config() = %+v, want %+v", got, next)
	}
}

func TestStatusInitial(t *testing.T) {
	rig := newTestRig(DefaultConfig())
	rig.eng.Tick()

	st := rig.eng.Status()
	if st.RPM != 0 {
		t.Errorf("RPM = %d, want 0", st.RPM)
	}
	if st.SignalActive {
		t.Error("SignalActive should be false before any pulse")
	}
	if st.CutActive {
		t.Error("CutActive should be false initially")
	}
}

// Concrete end-to-end scenario: default config, pulses every 5000 us
// (12,000 RPM) for one second, shift event mid-stream. Expect an 80 ms
// cut: output active on trigger, inactive after expiry.
func TestQuickshiftScenario(t *testing.T) {
	rig := newTestRig(DefaultConfig())

	for i := 0; i < 200; i++ {
		rig.pulse(5000)
	}
	rig.eng.Tick()

	st := rig.eng.Status()
	if !st.SignalActive {
		t.Fatal("signal should be active mid-stream")
	}
	if st.RPM != 12000 {
		t.Fatalf("RPM = %d, want 12000", st.RPM)
	}

	rig.eng.HandleShiftEdge(rig.clock.NowMicros(), false)

	if !rig.out.High() {
		t.Error("cut output should be active after shift")
	}
	if !rig.eng.Status().CutActive {
		t.Error("CutActive should be true after shift")
	}
	if got := rig.timer.ArmedDuration(); got != 80*time.Millisecond {
		t.Errorf("armed duration = %v, want 80ms", got)
	}

	rig.timer.Fire()

	if rig.out.High() {
		t.Error("cut output should be inactive after timer expiry")
	}
	if rig.eng.Status().CutActive {
		t.Error("CutActive should be false after timer expiry")
	}

	ev, ok := rig.eng.ConsumeShiftEvent()
	if !ok {
		t.Fatal("expected a pending shift event")
	}
	if ev.Decision != ShiftTriggered {
		t.Errorf("decision = %s, want triggered", ev.Decision)
	}
	if ev.CutTimeMs != 80 {
		t.Errorf("cut time = %d, want 80", ev.CutTimeMs)
	}
	if _, ok := rig.eng.ConsumeShiftEvent(); ok {
		t.Error("second consume should report no pending event")
	}
}

func TestShiftDecisionString(t *testing.T) {
	tests := []struct {
		d        ShiftDecision
		expected string
	}{
		{ShiftTriggered, "triggered"},
		{ShiftDebounced, "debounced"},
		{ShiftRPMTooLow, "rpm_too_low"},
		{ShiftDecision(99), "unknown"},
	}

	for _, tt := range tests {
		if tt.d.String() != tt.expected {
			t.Errorf("ShiftDecision(%d).String() = %s, want %s", tt.d, tt.d.String(), tt.expected)
		}
	}
}

func TestManualShiftUsesEngineClock(t *testing.T) {
	rig := newTestRig(DefaultConfig())

	rig.eng.ManualShift()

	ev := rig.eng.LastShiftEvent()
	if !ev.Manual {
		t.Error("event should be marked manual")
	}
	if ev.TimeMicros != rig.clock.NowMicros() {
		t.Errorf("event time = %d, want %d", ev.TimeMicros, rig.clock.NowMicros())
	}
	if ev.Decision != ShiftTriggered {
		t.Errorf("decision = %s, want triggered (manual bypasses RPM gate)", ev.Decision)
	}
}
