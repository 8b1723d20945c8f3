package sim

import (
	"testing"
	"time"

	"quickshifter-go/pkg/engine"
)

func TestRampConvergesToEndRPM(t *testing.T) {
	b := NewBench(engine.DefaultConfig())

	var last Sample
	b.Run(Profile{
		StartRPM: 3000,
		EndRPM:   12000,
		Duration: 2 * time.Second,
	}, func(s Sample) { last = s })

	if !last.Status.SignalActive {
		t.Errorf("expected active signal at end of ramp")
	}
	if last.Status.RPM < 11500 || last.Status.RPM > 12000 {
		t.Errorf("final RPM = %d, want ~12000", last.Status.RPM)
	}
	if last.Status.CutActive {
		t.Errorf("cut active with no shifts in profile")
	}
}

func TestNoisePulsesRejected(t *testing.T) {
	b := NewBench(engine.DefaultConfig())

	var last Sample
	snap := b.Run(Profile{
		StartRPM:  8000,
		EndRPM:    8000,
		Duration:  time.Second,
		NoiseRate: 0.5,
		Seed:      42,
	}, func(s Sample) { last = s })

	rejected := snap["qs_pulses_rejected_filter_total"] + snap["qs_pulses_rejected_min_interval_total"]
	if rejected == 0 {
		t.Fatalf("no pulses rejected at 50%% noise rate: %v", snap)
	}
	if last.Status.RPM < 7900 || last.Status.RPM > 8100 {
		t.Errorf("RPM = %d after noisy run, want ~8000", last.Status.RPM)
	}
}

func TestShiftsTriggerCuts(t *testing.T) {
	b := NewBench(engine.DefaultConfig())

	sawCut := false
	snap := b.Run(Profile{
		StartRPM:   9000,
		EndRPM:     9000,
		Duration:   time.Second,
		ShiftEvery: 200 * time.Millisecond,
	}, func(s Sample) {
		if s.Status.CutActive {
			sawCut = true
		}
	})

	if snap["qs_cuts_total"] < 4 {
		t.Errorf("cuts = %d, want >= 4", snap["qs_cuts_total"])
	}
	if snap["qs_shifts_debounced_total"] != 0 {
		t.Errorf("shifts 200ms apart should not debounce: %v", snap)
	}
	if !sawCut {
		t.Errorf("no sample observed an active cut")
	}
	if b.Output.High() {
		t.Errorf("cut output left high after run")
	}
	if b.Output.Transitions() < 8 {
		t.Errorf("output transitions = %d, want >= 8", b.Output.Transitions())
	}
}

func TestVirtualTimerEndsCut(t *testing.T) {
	b := NewBench(engine.DefaultConfig())

	// Establish a valid RPM, request a shift, and step past the cut.
	for i := 0; i < 10; i++ {
		b.Pulse(6000)
	}
	b.Shift()
	if !b.Output.High() {
		t.Fatalf("cut output not asserted after shift")
	}
	b.Advance(79_000)
	if !b.Output.High() {
		t.Errorf("cut ended before its 80ms duration")
	}
	b.Advance(2_000)
	if b.Output.High() {
		t.Errorf("cut output still high after timer expiry")
	}
}
