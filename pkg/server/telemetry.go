package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Telemetry is the periodic payload pushed to websocket clients and
// served on /status.
type Telemetry struct {
	RPM          uint16 `json:"rpm"`
	SignalActive bool   `json:"signalActive"`
	CutActive    bool   `json:"cutActive"`
	HWID         string `json:"hwid"`
	UptimeMs     int64  `json:"uptime"`
}

func (s *Server) telemetryPayload() Telemetry {
	st := s.eng.Status()
	return Telemetry{
		RPM:          st.RPM,
		SignalActive: st.SignalActive,
		CutActive:    st.CutActive,
		HWID:         s.hwid,
		UptimeMs:     time.Since(s.startTime).Milliseconds(),
	}
}

const (
	wsWriteTimeout  = 2 * time.Second
	wsSendQueueSize = 8
)

// wsClient is one connected telemetry consumer.
type wsClient struct {
	id   int64
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
}

func (c *wsClient) close() {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	c.conn.Close()
}

// writePump drains the send queue onto the connection. A slow client
// hits the write deadline and is dropped rather than stalling the
// broadcaster.
func (c *wsClient) writePump() {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-c.quit:
			return
		}
	}
}

// readPump discards inbound frames and detects disconnect.
func (c *wsClient) readPump(onClose func()) {
	defer onClose()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleTelemetry upgrades to websocket and registers the client for
// broadcasts.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade: %v", err)
		return
	}

	c := &wsClient{
		id:   s.nextWSID.Add(1),
		conn: conn,
		send: make(chan []byte, wsSendQueueSize),
		quit: make(chan struct{}),
	}

	s.wsClientMu.Lock()
	s.wsClients[c.id] = c
	n := len(s.wsClients)
	s.wsClientMu.Unlock()
	s.logger.Infof("telemetry client %d connected (%d total)", c.id, n)

	go c.writePump()
	go c.readPump(func() { s.dropClient(c) })

	// Push an immediate snapshot so clients render without waiting a
	// full period.
	if data, err := json.Marshal(s.telemetryPayload()); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (s *Server) dropClient(c *wsClient) {
	s.wsClientMu.Lock()
	if _, ok := s.wsClients[c.id]; ok {
		delete(s.wsClients, c.id)
	}
	s.wsClientMu.Unlock()
	c.close()
	s.logger.Infof("telemetry client %d disconnected", c.id)
}

// broadcastLoop pushes the telemetry payload to every client at the
// configured period. No clients, no work.
func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.telemetryPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.broadcastTelemetry()
		case <-s.done:
			return
		}
	}
}

func (s *Server) broadcastTelemetry() {
	s.wsClientMu.Lock()
	if len(s.wsClients) == 0 {
		s.wsClientMu.Unlock()
		return
	}
	clients := make([]*wsClient, 0, len(s.wsClients))
	for _, c := range s.wsClients {
		clients = append(clients, c)
	}
	s.wsClientMu.Unlock()

	data, err := json.Marshal(s.telemetryPayload())
	if err != nil {
		s.logger.Errorf("encode telemetry: %v", err)
		return
	}

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Queue full: the client is stalled, drop it.
			s.dropClient(c)
		}
	}
}
