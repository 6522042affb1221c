package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/deskmate/deskmate/internal/bridge"
	"github.com/deskmate/deskmate/internal/event"
)

const (
	wsSendBuffer = 64
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Desktop shells connect from file:// or app:// origins, so the
	// browser origin check does not apply here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame is one websocket message. Type is "event", "service_health",
// "performance_metrics" or "performance_warning".
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// HubStats is a snapshot of broadcaster counters.
type HubStats struct {
	Clients     int    `json:"clients"`
	Broadcast   uint64 `json:"broadcast"`
	SlowDropped uint64 `json:"slow_dropped"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out backend frames to connected websocket clients. A client
// whose send buffer is full is disconnected rather than allowed to stall
// the broadcast. Hub implements the backend bridge Client interface so
// it receives the same pushes a GUI does.
type Hub struct {
	log *slog.Logger

	mu          sync.Mutex
	clients     map[*wsClient]struct{}
	broadcast   uint64
	slowDropped uint64
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log.With("component", "ws_hub"),
		clients: make(map[*wsClient]struct{}),
	}
}

// OnBackendEvent implements bridge.Client.
func (h *Hub) OnBackendEvent(e event.Event) {
	h.Broadcast(Frame{Type: "event", Data: e})
}

// OnServiceHealth implements bridge.Client.
func (h *Hub) OnServiceHealth(service string, healthy bool, details string) {
	h.Broadcast(Frame{Type: "service_health", Data: gin.H{
		"service": service,
		"healthy": healthy,
		"details": details,
	}})
}

// OnPerformanceMetrics implements bridge.Client.
func (h *Hub) OnPerformanceMetrics(m bridge.Metrics) {
	h.Broadcast(Frame{Type: "performance_metrics", Data: m})
}

// OnPerformanceWarning implements bridge.Client.
func (h *Hub) OnPerformanceWarning(message string) {
	h.Broadcast(Frame{Type: "performance_warning", Data: gin.H{"message": message}})
}

// Broadcast sends one frame to every connected client without blocking:
// clients that cannot keep up are dropped.
func (h *Hub) Broadcast(f Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		h.log.Error("Marshal websocket frame failed", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast++
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.slowDropped++
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("Dropping slow websocket client")
		}
	}
}

// Stats returns broadcaster counters.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HubStats{
		Clients:     len(h.clients),
		Broadcast:   h.broadcast,
		SlowDropped: h.slowDropped,
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	h.readPump(client)
}

// readPump discards inbound messages; its job is detecting disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, open := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !open {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// remove unregisters a client if it is still registered. Safe to call
// from both pumps; the send channel is closed exactly once.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, registered := h.clients[c]; registered {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}
