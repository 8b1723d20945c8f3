package engine

// ShiftDecision is the outcome of one shift-sensor event.
type ShiftDecision int

const (
	// ShiftTriggered means the event was accepted and a cut started.
	ShiftTriggered ShiftDecision = iota

	// ShiftDebounced means the event arrived within the debounce
	// window of the last accepted event.
	ShiftDebounced

	// ShiftRPMTooLow means the sensor event arrived below the minimum
	// RPM threshold.
	ShiftRPMTooLow
)

func (d ShiftDecision) String() string {
	switch d {
	case ShiftTriggered:
		return "triggered"
	case ShiftDebounced:
		return "debounced"
	case ShiftRPMTooLow:
		return "rpm_too_low"
	default:
		return "unknown"
	}
}

// ShiftEvent records the full diagnostics of one shift-sensor event.
// Debounce and the RPM gate are independent rejection reasons; both are
// evaluated for every event even though either alone suppresses the
// cut.
type ShiftEvent struct {
	TimeMicros uint64
	RPM        uint16
	Manual     bool
	Debounced  bool
	RPMTooLow  bool
	CutTimeMs  uint16
	Decision   ShiftDecision
}

// HandleShiftEdge processes one qualifying edge from the shift sensor,
// or from the manual trigger when manual is true. Manual requests
// bypass the RPM gate but not the debounce.
func (e *Engine) HandleShiftEdge(nowMicros uint64, manual bool) {
	cfg := e.cfg.Load()
	debounceMicros := uint64(cfg.DebounceTimeMs) * 1000

	e.mu.Lock()
	ev := ShiftEvent{
		TimeMicros: nowMicros,
		RPM:        e.currentRPM,
		Manual:     manual,
	}

	ev.Debounced = e.lastAcceptedShift != 0 && nowMicros-e.lastAcceptedShift < debounceMicros
	ev.RPMTooLow = !manual && ev.RPM < cfg.MinRPMThreshold

	if ev.Debounced || ev.RPMTooLow {
		if ev.Debounced {
			ev.Decision = ShiftDebounced
		} else {
			ev.Decision = ShiftRPMTooLow
		}
		e.recordShiftLocked(ev)
		e.mu.Unlock()

		if ev.Debounced {
			e.shiftsDebounced.Inc()
		}
		if ev.RPMTooLow {
			e.shiftsRPMTooLow.Inc()
		}
		return
	}

	e.lastAcceptedShift = nowMicros
	ev.Decision = ShiftTriggered
	ev.CutTimeMs = cfg.DurationForRPM(ev.RPM)
	e.recordShiftLocked(ev)
	e.mu.Unlock()

	e.shiftsTriggered.Inc()
	e.triggerCut(ev.CutTimeMs)
}

// recordShiftLocked stores the event for the control loop. Caller holds
// e.mu.
func (e *Engine) recordShiftLocked(ev ShiftEvent) {
	e.lastShift = ev
	e.pendingShift = &e.lastShift
}

// LastShiftEvent returns the most recent shift event diagnostics.
func (e *Engine) LastShiftEvent() ShiftEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastShift
}

// ConsumeShiftEvent returns the pending shift event once, for the
// control loop to log. Subsequent calls return false until a new event
// arrives.
func (e *Engine) ConsumeShiftEvent() (ShiftEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingShift == nil {
		return ShiftEvent{}, false
	}
	ev := *e.pendingShift
	e.pendingShift = nil
	return ev, true
}
