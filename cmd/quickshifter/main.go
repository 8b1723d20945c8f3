// quickshifter is the ignition-cut controller daemon.
// It captures pickup-coil and shift-rod edges from GPIO, runs the
// RPM/cut core, drives the cut output and status LED, and serves the
// HTTP/websocket configuration API.
//
// Usage:
//
//	quickshifter -config /var/lib/quickshifter/config.json [options]
//
// Options:
//
//	-config string   Configuration file path (default "quickshifter.json")
//	-addr string     HTTP listen address (overrides stored config)
//	-mock            Use in-memory pins instead of GPIO
//	-rt              Lock memory and request SCHED_FIFO scheduling
//	-log-level       debug|info|warn|error (default "info")
//	-log-json        Emit JSON log lines
//
// Examples:
//
//	# Bench run without hardware
//	quickshifter -mock -addr :8080
//
//	# On the bike, realtime scheduling
//	sudo quickshifter -config /var/lib/quickshifter/config.json -rt
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"periph.io/x/periph/conn/gpio"

	"quickshifter-go/pkg/engine"
	"quickshifter-go/pkg/hal"
	periphhal "quickshifter-go/pkg/hal/periph"
	"quickshifter-go/pkg/led"
	"quickshifter-go/pkg/log"
	"quickshifter-go/pkg/metrics"
	"quickshifter-go/pkg/reactor"
	"quickshifter-go/pkg/rt"
	"quickshifter-go/pkg/server"
	"quickshifter-go/pkg/storage"
)

// tickPeriod is the control-loop cadence: signal supervision, LED
// update and shift-event logging. Well under the 1s signal timeout.
const tickPeriod = 0.005

// pins collects the hardware outputs and edge sources, real or mock.
type pins struct {
	pickup hal.EdgeSource
	shift  hal.EdgeSource
	button hal.EdgeSource
	cut    hal.Output
	ledR   hal.Output
	ledG   hal.Output
	ledB   hal.Output
}

func main() {
	configFile := flag.String("config", "quickshifter.json", "Configuration file path")
	addr := flag.String("addr", "", "HTTP listen address (overrides stored config)")
	mock := flag.Bool("mock", false, "Use in-memory pins instead of GPIO")

	pickupPin := flag.String("pickup-pin", "GPIO17", "Pickup coil input pin")
	shiftPin := flag.String("shift-pin", "GPIO27", "Shift rod sensor input pin")
	buttonPin := flag.String("button-pin", "", "Manual trigger button pin (optional)")
	cutPin := flag.String("cut-pin", "GPIO22", "Ignition cut output pin")
	ledRPin := flag.String("led-r", "GPIO5", "Status LED red pin")
	ledGPin := flag.String("led-g", "GPIO6", "Status LED green pin")
	ledBPin := flag.String("led-b", "GPIO13", "Status LED blue pin")

	useRT := flag.Bool("rt", false, "Lock memory and request SCHED_FIFO scheduling")
	rtPriority := flag.Int("rt-priority", 50, "SCHED_FIFO priority with -rt")

	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	logJSON := flag.Bool("log-json", false, "Emit JSON log lines")
	flag.Parse()

	logger := log.New(os.Stderr, "quickshifter")
	logger.SetLevel(log.ParseLevel(*logLevel))
	if *logJSON {
		logger.SetFormat(log.FormatJSON)
	}
	log.SetDefault(logger)

	store, err := storage.Open(*configFile)
	if err != nil {
		// Open falls back to defaults on a corrupt file; the error is
		// informational.
		logger.Warnf("config %s unreadable, running on defaults: %v", *configFile, err)
	}
	sys := store.System()

	if *useRT {
		if err := rt.LockMemory(); err != nil {
			logger.Warnf("mlockall failed: %v", err)
		}
		if err := rt.SetScheduler(*rtPriority); err != nil {
			logger.Warnf("SCHED_FIFO priority %d failed: %v", *rtPriority, err)
		} else {
			logger.Infof("realtime scheduling active, priority %d", *rtPriority)
		}
	}

	clock := hal.NewMonotonicClock()

	var hw pins
	if *mock {
		hw = mockPins()
		logger.Infof("running with in-memory pins")
	} else {
		hw, err = gpioPins(*pickupPin, *shiftPin, *buttonPin, *cutPin, *ledRPin, *ledGPin, *ledBPin, clock)
		if err != nil {
			logger.Errorf("GPIO setup: %v", err)
			os.Exit(1)
		}
		logger.Infof("GPIO ready: pickup=%s shift=%s cut=%s", *pickupPin, *shiftPin, *cutPin)
	}

	registry := metrics.NewRegistry()
	eng := engine.New(store.ActiveEngineConfig(),
		engine.WithClock(clock),
		engine.WithOutput(hw.cut),
		engine.WithMetrics(registry),
		engine.WithLogger(logger.WithPrefix("engine")),
	)
	if err := eng.Attach(hw.pickup, hw.shift, hw.button); err != nil {
		logger.Errorf("attach edge sources: %v", err)
		os.Exit(1)
	}

	leds := led.New(hw.ledR, hw.ledG, hw.ledB)

	listenAddr := sys.Server.Addr
	if *addr != "" {
		listenAddr = *addr
	}
	srv := server.New(server.Config{
		Addr:            listenAddr,
		Store:           store,
		Engine:          eng,
		Metrics:         registry,
		Logger:          logger.WithPrefix("server"),
		TelemetryPeriod: sys.Server.TelemetryPeriod(),
	})

	r := reactor.New()
	shiftLog := logger.WithPrefix("shift")
	r.RegisterTimer(func(eventtime float64) float64 {
		eng.Tick()
		leds.SetStatus(led.ForEngine(eng.Status()))
		leds.Update(clock.NowMicros())
		if ev, ok := eng.ConsumeShiftEvent(); ok {
			shiftLog.Infof("%s rpm=%d manual=%v cut=%dms", ev.Decision, ev.RPM, ev.Manual, ev.CutTimeMs)
		}
		return eventtime + tickPeriod
	}, r.Monotonic())
	r.Run()

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()
	logger.Infof("listening on %s, hwid %s", listenAddr, srv.HardwareID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("received %v, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Errorf("server: %v", err)
		}
	}

	if err := srv.Stop(); err != nil {
		logger.Warnf("server stop: %v", err)
	}
	r.End()
	r.Wait()

	// Leave the bike runnable: cut released, LED dark.
	hw.cut.Set(false)
	hw.ledR.Set(false)
	hw.ledG.Set(false)
	hw.ledB.Set(false)
	logger.Infof("shutdown complete")
}

// mockPins returns a full in-memory pin set for bench runs without
// hardware.
func mockPins() pins {
	return pins{
		pickup: hal.NewMemEdgeSource(),
		shift:  hal.NewMemEdgeSource(),
		button: hal.NewMemEdgeSource(),
		cut:    hal.NewMemOutput(),
		ledR:   hal.NewMemOutput(),
		ledG:   hal.NewMemOutput(),
		ledB:   hal.NewMemOutput(),
	}
}

// gpioPins opens the real lines. The button pin is optional.
func gpioPins(pickup, shift, button, cut, ledR, ledG, ledB string, clock hal.Clock) (pins, error) {
	if err := periphhal.Init(); err != nil {
		return pins{}, fmt.Errorf("periph host init: %w", err)
	}

	var p pins
	var err error
	if p.pickup, err = periphhal.OpenInput(pickup, gpio.PullNoChange, clock); err != nil {
		return pins{}, err
	}
	if p.shift, err = periphhal.OpenInput(shift, gpio.PullUp, clock); err != nil {
		return pins{}, err
	}
	if button != "" {
		if p.button, err = periphhal.OpenInput(button, gpio.PullUp, clock); err != nil {
			return pins{}, err
		}
	}
	if p.cut, err = periphhal.OpenOutput(cut); err != nil {
		return pins{}, err
	}
	if p.ledR, err = periphhal.OpenOutput(ledR); err != nil {
		return pins{}, err
	}
	if p.ledG, err = periphhal.OpenOutput(ledG); err != nil {
		return pins{}, err
	}
	if p.ledB, err = periphhal.OpenOutput(ledB); err != nil {
		return pins{}, err
	}
	return p, nil
}
