package engine

import (
	"testing"
	"time"
)

func TestDurationForRPMBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	for i := range cfg.CutTimeMap {
		cfg.CutTimeMap[i] = uint16(10 + i*10) // distinct per bucket
	}

	tests := []struct {
		rpm    uint16
		bucket int
	}{
		{0, 0},
		{4999, 0},
		{5000, 0},
		{5999, 0},
		{6000, 1},
		{9999, 4},
		{10000, 5},
		{14999, 9},
		{15000, 10},
		{20000, 10},
		{65535, 10},
	}

	for _, tt := range tests {
		want := cfg.CutTimeMap[tt.bucket]
		if got := cfg.DurationForRPM(tt.rpm); got != want {
			t.Errorf("DurationForRPM(%d) = %d, want %d (bucket %d)", tt.rpm, got, want, tt.bucket)
		}
	}
}

// Triggering a cut drives the output active and sets CutActive
// immediately; expiry returns both.
func TestCutLifecycle(t *testing.T) {
	rig := newTestRig(DefaultConfig())
	rig.establish(5000, 3)

	rig.eng.HandleShiftEdge(rig.clock.NowMicros(), false)

	if !rig.out.High() {
		t.Error("output should be high after trigger")
	}
	if !rig.eng.Status().CutActive {
		t.Error("CutActive should be true after trigger")
	}
	if rig.timer.ArmCount() != 1 {
		t.Errorf("timer arms = %d, want 1", rig.timer.ArmCount())
	}

	rig.timer.Fire()

	if rig.out.High() {
		t.Error("output should be low after expiry")
	}
	if rig.eng.Status().CutActive {
		t.Error("CutActive should be false after expiry")
	}
	if rig.out.Transitions() != 2 {
		t.Errorf("output transitions = %d, want 2", rig.out.Transitions())
	}
}

// A second trigger while cutting restarts the timer with the newly
// computed duration; durations never accumulate.
func TestCutRestartNotAccumulate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceTimeMs = 0
	cfg.CutTimeMap[7] = 150 // 12,000 RPM bucket
	rig := newTestRig(cfg)
	rig.establish(5000, 3) // 12,000 RPM

	now := rig.clock.NowMicros()
	rig.eng.HandleShiftEdge(now, false)
	if got := rig.timer.ArmedDuration(); got != 150*time.Millisecond {
		t.Fatalf("first armed duration = %v, want 150ms", got)
	}

	// Second trigger mid-cut with a different map. Last writer wins.
	cfg.CutTimeMap[7] = 60
	rig.eng.ApplyConfig(cfg)
	rig.eng.HandleShiftEdge(now+10_000, false)

	if got := rig.timer.ArmCount(); got != 2 {
		t.Errorf("timer arms = %d, want 2", got)
	}
	if got := rig.timer.ArmedDuration(); got != 60*time.Millisecond {
		t.Errorf("restarted duration = %v, want 60ms (not 210ms)", got)
	}
	if !rig.eng.Status().CutActive {
		t.Error("cut should remain active across the restart")
	}

	rig.timer.Fire()
	if rig.eng.Status().CutActive {
		t.Error("cut should end after the single restarted expiry")
	}
}

// The production wall timer ends the cut after the armed duration.
func TestWallTimerExpiry(t *testing.T) {
	fired := make(chan struct{})
	w := newWallTimer(func() { close(fired) })
	w.Arm(10 * time.Millisecond)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("wall timer did not fire")
	}
}
