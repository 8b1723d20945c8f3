package engine

// HandlePickupPulse processes one rising edge from the pickup coil,
// timestamped in microseconds on the engine clock. It is the hot path:
// a handful of integer comparisons under the state lock, no allocation,
// no blocking.
func (e *Engine) HandlePickupPulse(nowMicros uint64) {
	e.mu.Lock()

	// Baseline establishment: first pulse ever, signal re-acquisition
	// after a stall, or a pulse arriving during an active cut. The
	// pulse only sets the new reference point; no RPM is derived.
	if e.cutActive.Load() || e.lastPulseTime == 0 || nowMicros-e.lastPulseTime > baselineGapMicros {
		e.lastPulseTime = nowMicros
		e.lastValidInterval = 0
		e.mu.Unlock()
		e.pulsesBaseline.Inc()
		return
	}

	interval := nowMicros - e.lastPulseTime

	// Predictive filter: the interval must fall within +/-40% of the
	// last valid one. A single noise spike (too short) or a missed
	// tooth (doubled interval) fails this without needing a
	// multi-sample history.
	valid := true
	rejectedByFilter := false
	if e.lastValidInterval > 0 {
		diff := interval - e.lastValidInterval
		if interval < e.lastValidInterval {
			diff = e.lastValidInterval - interval
		}
		if diff > e.lastValidInterval*4/10 {
			valid = false
			rejectedByFilter = true
		}
	}

	// Absolute sanity check: below 3000 us implies > 20,000 RPM.
	if interval < minIntervalMicros {
		valid = false
	}

	if !valid {
		// Do not advance lastPulseTime: the next interval is measured
		// from the last valid pulse, so one noise edge does not
		// corrupt subsequent measurements.
		e.mu.Unlock()
		if rejectedByFilter {
			e.pulsesRejectedFilter.Inc()
		} else {
			e.pulsesRejectedMin.Inc()
		}
		return
	}

	// Safe from div-by-zero via the minimum interval check. RPM, the
	// valid interval and the timestamp advance together.
	e.lastValidInterval = interval
	e.currentRPM = uint16(microsPerMinute / interval)
	e.lastPulseTime = nowMicros
	e.mu.Unlock()

	e.pulsesAccepted.Inc()
}
