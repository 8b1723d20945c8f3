// Package server exposes the device's web surface: status snapshots,
// configuration read/replace, active-map switching, a manual shift
// trigger, websocket telemetry and diagnostics counters. It is a
// consumer of the engine core, never the other way around.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"quickshifter-go/pkg/engine"
	"quickshifter-go/pkg/log"
	"quickshifter-go/pkg/metrics"
	"quickshifter-go/pkg/storage"

	"github.com/gorilla/websocket"
)

// EngineController is the engine surface the server consumes.
type EngineController interface {
	// Status returns a synchronized snapshot of RPM/signal/cut state.
	Status() engine.Status

	// ApplyConfig atomically replaces the engine configuration.
	ApplyConfig(engine.Config)

	// ManualShift injects a manual shift request bypassing the RPM
	// gate, for the web test trigger.
	ManualShift()
}

// Config holds server construction parameters.
type Config struct {
	// Addr is the HTTP listen address (e.g. ":8080").
	Addr string

	// Store is the persistent configuration layer.
	Store *storage.Store

	// Engine is the ignition-cut core.
	Engine EngineController

	// Metrics is the diagnostics registry, optional.
	Metrics *metrics.Registry

	// Logger, optional; the package default is used when nil.
	Logger *log.Logger

	// TelemetryPeriod is the websocket broadcast interval. Defaults to
	// 100 ms when zero.
	TelemetryPeriod time.Duration
}

// Server is the HTTP/websocket front end.
type Server struct {
	addr    string
	store   *storage.Store
	eng     EngineController
	metrics *metrics.Registry
	logger  *log.Logger

	httpServer *http.Server

	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*wsClient
	wsClientMu sync.Mutex
	nextWSID   atomic.Int64

	telemetryPeriod time.Duration
	hwid            string
	startTime       time.Time

	running atomic.Bool
	done    chan struct{}
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("server")
	}
	period := cfg.TelemetryPeriod
	if period <= 0 {
		period = 100 * time.Millisecond
	}

	s := &Server{
		addr:            cfg.Addr,
		store:           cfg.Store,
		eng:             cfg.Engine,
		metrics:         cfg.Metrics,
		logger:          logger,
		wsClients:       make(map[int64]*wsClient),
		telemetryPeriod: period,
		hwid:            hardwareID(),
		startTime:       time.Now(),
		done:            make(chan struct{}),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// The device serves its own dashboard from any origin.
			return true
		},
	}
	return s
}

// Handler returns the route mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/config/active_map", s.handleActiveMap)
	mux.HandleFunc("/shift", s.handleShift)
	mux.HandleFunc("/telemetry", s.handleTelemetry)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return s.corsMiddleware(mux)
}

// Start serves HTTP on the configured address and begins telemetry
// broadcasting. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	if s.running.Swap(true) {
		return errors.New("server: already running")
	}

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go s.broadcastLoop()
	s.logger.Infof("listening on %s (hwid %s)", s.addr, s.hwid)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down and closes all websocket clients.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	close(s.done)

	s.wsClientMu.Lock()
	for _, c := range s.wsClients {
		c.close()
	}
	s.wsClients = make(map[int64]*wsClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// HardwareID returns the device identity exposed in telemetry.
func (s *Server) HardwareID() string {
	return s.hwid
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleStatus serves the engine snapshot plus device identity.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.telemetryPayload())
}

// handleConfig serves and replaces the quickshifter map set. A
// successful replace persists to storage and applies the active map to
// the engine atomically.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.store.System().QuickShift)

	case http.MethodPost:
		var ms storage.MapSet
		if err := json.NewDecoder(r.Body).Decode(&ms); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid config payload: "+err.Error())
			return
		}
		if err := s.store.ReplaceQuickShift(ms); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.eng.ApplyConfig(s.store.ActiveEngineConfig())
		s.logger.Infof("config replaced: %d maps, active %d", len(ms.Maps), ms.ActiveMap)
		s.writeJSON(w, http.StatusOK, s.store.System().QuickShift)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleActiveMap switches the active cut map.
func (s *Server) handleActiveMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if err := s.store.SetActiveMap(req.Index); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.eng.ApplyConfig(s.store.ActiveEngineConfig())
	s.logger.Infof("active map switched to %d", req.Index)
	s.writeJSON(w, http.StatusOK, s.store.System().QuickShift)
}

// handleShift injects a manual shift request (web test trigger).
func (s *Server) handleShift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.eng.ManualShift()
	s.writeJSON(w, http.StatusOK, s.eng.Status())
}

// handleMetrics serves the diagnostics counters in Prometheus text
// format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.metrics == nil {
		s.writeError(w, http.StatusNotFound, "metrics not enabled")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := s.metrics.WriteText(w); err != nil {
		s.logger.Errorf("write metrics: %v", err)
	}
}
