package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tokenradar/internal/domain"
	"tokenradar/internal/observability"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second

	// clientBuffer is the per-client send queue. A client that cannot keep
	// up gets disconnected rather than stalling the broadcast.
	clientBuffer = 64
)

// Event is one message pushed to WebSocket subscribers.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Hub fans scan and position events out to connected WebSocket clients.
// It implements the scanner and monitor event sinks.
type Hub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Event stream is read-only and carries no secrets.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and subscribes the connection to the event
// stream.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	observability.UpdateWSClients(n)

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	c.conn.Close()
	observability.UpdateWSClients(n)
}

// Broadcast sends an event to every connected client. Slow clients are
// dropped.
func (h *Hub) Broadcast(eventType string, data any) {
	msg, err := json.Marshal(Event{Type: eventType, Time: time.Now().UTC(), Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("event", eventType).Msg("marshal event")
		return
	}

	h.mu.Lock()
	var stalled []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stalled {
		h.logger.Warn().Msg("dropping stalled websocket client")
		h.drop(c)
	}
	observability.RecordWSEvent()
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c)
	}
}

// ScanStarted implements the scanner event sink.
func (h *Hub) ScanStarted(scanID string, candidates int) {
	h.Broadcast("scan_started", map[string]any{"scan_id": scanID, "candidates": candidates})
}

// NewToken implements the scanner event sink.
func (h *Hub) NewToken(r *domain.TokenRecord) {
	h.Broadcast("new_token", r)
}

// ScanCompleted implements the scanner event sink.
func (h *Hub) ScanCompleted(scanID string, scanned int, took time.Duration) {
	h.Broadcast("scan_completed", map[string]any{
		"scan_id":      scanID,
		"scanned":      scanned,
		"took_seconds": took.Seconds(),
	})
	observability.RecordScanCompleted(scanned, took.Seconds(), time.Now().Unix())
}

// ScanError implements the scanner event sink.
func (h *Hub) ScanError(scanID string, msg string) {
	h.Broadcast("scan_error", map[string]any{"scan_id": scanID, "error": msg})
	observability.RecordScanError()
}

// PositionUpdated implements the monitor event sink.
func (h *Hub) PositionUpdated(p *domain.Position) {
	h.Broadcast("position_update", p)
}

// PositionClosed implements the monitor event sink.
func (h *Hub) PositionClosed(p *domain.Position) {
	h.Broadcast("position_closed", p)
	if p.ExitReason != "" {
		observability.RecordPositionClosed(p.ExitReason)
	}
}
