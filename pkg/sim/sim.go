// Bench simulator for the quickshifter core
//
// Generates a synthetic pickup pulse train (linear RPM ramp, optional
// noise spikes, periodic shift requests) and feeds it to the engine's
// edge handlers on a manual clock, so a full ride can be replayed in
// virtual time. Used by cmd/qs-sim and by the soak tests.
//
// Copyright (C) 2026  Quickshifter Host Project
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package sim

import (
	"math/rand"
	"time"

	"quickshifter-go/pkg/engine"
	"quickshifter-go/pkg/hal"
	"quickshifter-go/pkg/metrics"
)

// Profile describes one simulated run. Time is virtual: a profile of
// several minutes replays in microseconds of wall time.
type Profile struct {
	StartRPM   uint32        // ramp start, must be > 0
	EndRPM     uint32        // ramp end, must be > 0
	Duration   time.Duration // virtual length of the run
	NoiseRate  float64       // probability a pulse is preceded by a spurious spike
	ShiftEvery time.Duration // virtual period between shift requests, 0 disables
	TickEvery  time.Duration // supervisor cadence, defaults to 5ms
	Seed       int64         // noise PRNG seed, 0 picks a fixed default
}

// Sample is one telemetry observation taken during a run.
type Sample struct {
	TimeMicros uint64
	Status     engine.Status
}

// SampleFunc receives periodic samples during Run. May be nil.
type SampleFunc func(Sample)

// virtualTimer is a one-shot cut timer driven by the bench clock.
// Re-arming replaces the pending expiry, same as the wall timer.
type virtualTimer struct {
	expireAt uint64
	armed    bool
	onExpire func()
}

// Bench owns a virtual-time engine: manual clock, in-memory cut
// output, and a cut timer fired by clock advancement.
type Bench struct {
	Clock   *hal.ManualClock
	Output  *hal.MemOutput
	Metrics *metrics.Registry
	Engine  *engine.Engine

	timer *virtualTimer
}

// NewBench builds an engine wired to virtual hardware, configured with
// cfg. Pass engine.DefaultConfig() for stock behavior.
func NewBench(cfg engine.Config, opts ...engine.Option) *Bench {
	b := &Bench{
		Clock:   hal.NewManualClock(0),
		Output:  hal.NewMemOutput(),
		Metrics: metrics.NewRegistry(),
		timer:   &virtualTimer{},
	}
	base := []engine.Option{
		engine.WithClock(b.Clock),
		engine.WithOutput(b.Output),
		engine.WithMetrics(b.Metrics),
		engine.WithCutTimerFactory(func(onExpire func()) engine.CutTimer {
			b.timer.onExpire = onExpire
			return benchTimer{b}
		}),
	}
	b.Engine = engine.New(cfg, append(base, opts...)...)
	return b
}

// benchTimer adapts Arm calls so expiry is absolute virtual time.
type benchTimer struct{ b *Bench }

func (t benchTimer) Arm(d time.Duration) {
	t.b.timer.armed = true
	t.b.timer.expireAt = t.b.Clock.NowMicros() + uint64(d.Microseconds())
}

// Advance moves virtual time forward by micros, firing the cut timer
// at its exact expiry instant on the way.
func (b *Bench) Advance(micros uint64) {
	target := b.Clock.NowMicros() + micros
	if b.timer.armed && b.timer.expireAt <= target {
		b.Clock.Set(b.timer.expireAt)
		b.timer.armed = false
		b.timer.onExpire()
	}
	b.Clock.Set(target)
}

// Pulse advances to the next pickup edge and delivers it.
func (b *Bench) Pulse(afterMicros uint64) {
	b.Advance(afterMicros)
	b.Engine.HandlePickupPulse(b.Clock.NowMicros())
}

// Shift delivers a shift-rod edge at the current virtual instant.
func (b *Bench) Shift() {
	b.Engine.HandleShiftEdge(b.Clock.NowMicros(), false)
}

// intervalForRPM returns the pickup period in micros, one pulse per
// crank revolution.
func intervalForRPM(rpm uint32) uint64 {
	if rpm == 0 {
		return 0
	}
	return 60_000_000 / uint64(rpm)
}

// Run replays the profile, invoking sample (if non-nil) once per
// supervisor tick. Returns the metrics snapshot of the run.
func (b *Bench) Run(p Profile, sample SampleFunc) map[string]int64 {
	if p.TickEvery <= 0 {
		p.TickEvery = 5 * time.Millisecond
	}
	seed := p.Seed
	if seed == 0 {
		seed = 0x9e3779b9
	}
	rng := rand.New(rand.NewSource(seed))

	total := uint64(p.Duration.Microseconds())
	tickPeriod := uint64(p.TickEvery.Microseconds())
	shiftPeriod := uint64(p.ShiftEvery.Microseconds())

	start := b.Clock.NowMicros()
	endAt := start + total
	nextTick := start + tickPeriod
	nextShift := uint64(0)
	if shiftPeriod > 0 {
		nextShift = start + shiftPeriod
	}

	for {
		now := b.Clock.NowMicros()
		if now >= endAt {
			return b.Metrics.Snapshot()
		}

		rpm := rampRPM(p.StartRPM, p.EndRPM, now-start, total)
		interval := intervalForRPM(rpm)
		if interval == 0 {
			interval = intervalForRPM(60) // idle floor for degenerate profiles
		}
		nextPulse := now + interval

		// A noise spike lands partway through the gap, too close
		// to the previous pulse to be a real tooth.
		if p.NoiseRate > 0 && rng.Float64() < p.NoiseRate {
			spikeAt := interval / 4
			if spikeAt > 0 && now+spikeAt < endAt {
				b.Pulse(spikeAt)
			}
		}

		// Drain ticks and shifts due before the next pulse. Events at
		// or past the end of the run are not delivered.
		for (nextTick <= nextPulse && nextTick < endAt) ||
			(nextShift > 0 && nextShift <= nextPulse && nextShift < endAt) {
			if nextShift > 0 && nextShift <= nextTick && nextShift < endAt {
				b.Advance(nextShift - b.Clock.NowMicros())
				b.Shift()
				nextShift += shiftPeriod
				continue
			}
			b.Advance(nextTick - b.Clock.NowMicros())
			b.Engine.Tick()
			if sample != nil {
				sample(Sample{TimeMicros: b.Clock.NowMicros(), Status: b.Engine.Status()})
			}
			nextTick += tickPeriod
		}

		if nextPulse >= endAt {
			b.Advance(endAt - b.Clock.NowMicros())
			return b.Metrics.Snapshot()
		}
		b.Advance(nextPulse - b.Clock.NowMicros())
		b.Engine.HandlePickupPulse(b.Clock.NowMicros())
	}
}

// rampRPM interpolates linearly between start and end over the run.
func rampRPM(start, end uint32, elapsed, total uint64) uint32 {
	if total == 0 || elapsed >= total {
		return end
	}
	if end >= start {
		return start + uint32(uint64(end-start)*elapsed/total)
	}
	return start - uint32(uint64(start-end)*elapsed/total)
}
