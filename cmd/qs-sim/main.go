// qs-sim replays a synthetic ride through the quickshifter core in
// virtual time: an RPM ramp with optional noise spikes and periodic
// shift requests. Samples can be streamed to a NATS subject for
// rig-side charting; the run's counters print at the end.
//
// Usage:
//
//	qs-sim -start 3000 -end 12000 -duration 10s -shift-every 2s
//
// Options:
//
//	-start int        Ramp start RPM (default 3000)
//	-end int          Ramp end RPM (default 12000)
//	-duration         Virtual run length (default 10s)
//	-noise float      Probability of a spurious spike per pulse gap
//	-shift-every      Virtual period between shift requests (0 = none)
//	-nats string      NATS url to publish samples to (optional)
//	-subject string   NATS subject (default "qs.telemetry")
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"quickshifter-go/pkg/engine"
	"quickshifter-go/pkg/log"
	"quickshifter-go/pkg/sim"
)

func main() {
	startRPM := flag.Int("start", 3000, "Ramp start RPM")
	endRPM := flag.Int("end", 12000, "Ramp end RPM")
	duration := flag.Duration("duration", 10*time.Second, "Virtual run length")
	noise := flag.Float64("noise", 0, "Probability of a spurious spike per pulse gap")
	shiftEvery := flag.Duration("shift-every", 0, "Virtual period between shift requests (0 = none)")
	seed := flag.Int64("seed", 0, "Noise PRNG seed (0 = fixed default)")
	natsURL := flag.String("nats", "", "NATS url to publish samples to (optional)")
	subject := flag.String("subject", "qs.telemetry", "NATS subject for samples")
	flag.Parse()

	logger := log.New(os.Stderr, "qs-sim")

	var pub *sim.Publisher
	if *natsURL != "" {
		var err error
		pub, err = sim.ConnectPublisher(*natsURL, *subject)
		if err != nil {
			logger.Errorf("nats connect: %v", err)
			os.Exit(1)
		}
		defer pub.Close()
		logger.Infof("publishing samples to %s on %s", *subject, *natsURL)
	}

	b := sim.NewBench(engine.DefaultConfig())

	var samples, cutSamples int
	snap := b.Run(sim.Profile{
		StartRPM:   uint32(*startRPM),
		EndRPM:     uint32(*endRPM),
		Duration:   *duration,
		NoiseRate:  *noise,
		ShiftEvery: *shiftEvery,
		Seed:       *seed,
	}, func(s sim.Sample) {
		samples++
		if s.Status.CutActive {
			cutSamples++
		}
		if pub != nil {
			if err := pub.Publish(s); err != nil {
				logger.Warnf("publish: %v", err)
			}
		}
	})

	st := b.Engine.Status()
	fmt.Printf("run complete: %s virtual, %d samples (%d during cuts)\n",
		*duration, samples, cutSamples)
	fmt.Printf("final: rpm=%d signal=%v cut=%v output_transitions=%d\n",
		st.RPM, st.SignalActive, st.CutActive, b.Output.Transitions())

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-40s %d\n", name, snap[name])
	}
}
