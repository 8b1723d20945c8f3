// Metrics registry tests
//
// Copyright (C) 2026  Quickshifter Host Project
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strings"
	"sync"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry()

	c := r.Counter("qs_pulses_accepted_total")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("counter = %d, want 5", c.Value())
	}

	g := r.Gauge("qs_clients")
	g.Set(3)
	g.Set(1)
	if g.Value() != 1 {
		t.Errorf("gauge = %d, want 1", g.Value())
	}
}

func TestCounterPointerStable(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("qs_cuts_total")
	b := r.Counter("qs_cuts_total")
	if a != b {
		t.Errorf("same name returned different counters")
	}
}

func TestSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Counter("a").Add(2)
	r.Gauge("b").Set(-7)

	snap := r.Snapshot()
	if snap["a"] != 2 || snap["b"] != -7 {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestWriteTextSorted(t *testing.T) {
	r := NewRegistry()
	r.Counter("zz_total").Inc()
	r.Counter("aa_total").Add(3)

	var sb strings.Builder
	if err := r.WriteText(&sb); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	want := "aa_total 3\nzz_total 1\n"
	if sb.String() != want {
		t.Errorf("output = %q, want %q", sb.String(), want)
	}
}

func TestConcurrentIncrement(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.Counter("qs_pulses_accepted_total").Inc()
			}
		}()
	}
	wg.Wait()
	if got := r.Counter("qs_pulses_accepted_total").Value(); got != 8000 {
		t.Errorf("counter = %d, want 8000", got)
	}
}
