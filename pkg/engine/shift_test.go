package engine

import "testing"

// Shift events within the debounce window of the last accepted event
// are rejected regardless of RPM.
func TestShiftDebounce(t *testing.T) {
	rig := newTestRig(DefaultConfig())
	rig.establish(5000, 3) // 12,000 RPM, well above threshold

	now := rig.clock.NowMicros()
	rig.eng.HandleShiftEdge(now, false)
	if rig.eng.LastShiftEvent().Decision != ShiftTriggered {
		t.Fatal("first shift should trigger")
	}

	// 49,999 us later: still inside the 50 ms window.
	rig.eng.HandleShiftEdge(now+49_999, false)
	ev := rig.eng.LastShiftEvent()
	if ev.Decision != ShiftDebounced {
		t.Errorf("decision = %s, want debounced", ev.Decision)
	}
	if v := rig.reg.Counter("qs_shifts_debounced_total").Value(); v != 1 {
		t.Errorf("debounced count = %d, want 1", v)
	}

	// Exactly 50 ms later: outside the window, accepted again.
	rig.eng.HandleShiftEdge(now+50_000, false)
	if rig.eng.LastShiftEvent().Decision != ShiftTriggered {
		t.Error("shift at the debounce boundary should trigger")
	}
	if v := rig.reg.Counter("qs_shifts_triggered_total").Value(); v != 2 {
		t.Errorf("triggered count = %d, want 2", v)
	}
}

// The manual path is debounced too.
func TestShiftDebounceAppliesToManual(t *testing.T) {
	rig := newTestRig(DefaultConfig())

	now := rig.clock.NowMicros()
	rig.eng.HandleShiftEdge(now, true)
	rig.eng.HandleShiftEdge(now+1000, true)

	if rig.eng.LastShiftEvent().Decision != ShiftDebounced {
		t.Error("second manual shift inside the window should be debounced")
	}
}

// A sensor event below the RPM threshold is rejected; the same event
// via the manual path is accepted.
func TestShiftRPMGate(t *testing.T) {
	rig := newTestRig(DefaultConfig())
	rig.establish(30_000, 3) // 2,000 RPM, below the 3,000 threshold

	now := rig.clock.NowMicros()
	rig.eng.HandleShiftEdge(now, false)

	ev := rig.eng.LastShiftEvent()
	if ev.Decision != ShiftRPMTooLow {
		t.Errorf("decision = %s, want rpm_too_low", ev.Decision)
	}
	if rig.eng.Status().CutActive {
		t.Error("no cut should start below the RPM threshold")
	}
	if v := rig.reg.Counter("qs_shifts_rpm_too_low_total").Value(); v != 1 {
		t.Errorf("rpm_too_low count = %d, want 1", v)
	}

	// Manual trigger bypasses the gate. A rejected sensor event does
	// not advance the debounce reference, so this is not debounced.
	rig.eng.HandleShiftEdge(now+1000, true)
	ev = rig.eng.LastShiftEvent()
	if ev.Decision != ShiftTriggered {
		t.Errorf("manual decision = %s, want triggered", ev.Decision)
	}
	if !rig.eng.Status().CutActive {
		t.Error("manual trigger should start a cut")
	}
}

// Both rejection reasons are evaluated on every event for diagnostics.
func TestShiftRejectionReasonsIndependent(t *testing.T) {
	rig := newTestRig(DefaultConfig())
	rig.establish(5000, 3)

	now := rig.clock.NowMicros()
	rig.eng.HandleShiftEdge(now, false)

	// Inside the debounce window and (after signal loss) below the
	// threshold: both flags must be set even though debounce alone
	// already suppresses the cut.
	rig.clock.Set(now + 2_000_000)
	rig.eng.Tick() // zeroes RPM

	rig.eng.ApplyConfig(Config{MinRPMThreshold: 3000, DebounceTimeMs: 60000})
	rig.eng.HandleShiftEdge(now+40_000, false)

	ev := rig.eng.LastShiftEvent()
	if !ev.Debounced {
		t.Error("Debounced flag should be set")
	}
	if !ev.RPMTooLow {
		t.Error("RPMTooLow flag should be set")
	}
	if ev.Decision != ShiftDebounced {
		t.Errorf("decision = %s, want debounced", ev.Decision)
	}
	if rig.reg.Counter("qs_shifts_debounced_total").Value() != 1 {
		t.Error("debounced counter should increment")
	}
	if rig.reg.Counter("qs_shifts_rpm_too_low_total").Value() != 1 {
		t.Error("rpm_too_low counter should increment")
	}
}

// A zero debounce time is accepted as-is: every event passes the
// debounce check. Documented behavior, not a defect.
func TestShiftZeroDebounceAccepted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceTimeMs = 0
	rig := newTestRig(cfg)
	rig.establish(5000, 3)

	now := rig.clock.NowMicros()
	rig.eng.HandleShiftEdge(now, false)
	rig.eng.HandleShiftEdge(now+1, false)

	if v := rig.reg.Counter("qs_shifts_triggered_total").Value(); v != 2 {
		t.Errorf("triggered count = %d, want 2", v)
	}
}
