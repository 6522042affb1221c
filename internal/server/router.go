package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deskmate/deskmate/internal/bus"
	"github.com/deskmate/deskmate/internal/event"
	"github.com/deskmate/deskmate/internal/metrics"
	"github.com/deskmate/deskmate/internal/supervisor"
)

// Router provides embeddable HTTP handlers for the backend.
// Endpoints under {basePath}:
//   POST /command         body: {"command": ..., "params": {...}}
//   GET  /status          coordinator + per-service status
//   GET  /health          service health map
//   GET  /events/history  query: type=...&limit=N
//   GET  /stats           per-queue bus statistics
//   GET  /metrics         prometheus exposition
//   GET  /ws              websocket event stream
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	coord    *supervisor.Coordinator
	bus      *bus.Bus
	hub      *Hub
	basePath string
	log      *slog.Logger
}

// NewRouter constructs a Router with a configurable basePath, e.g. "/api"
// results in /api/command, /api/status, and so on.
func NewRouter(coord *supervisor.Coordinator, b *bus.Bus, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		coord:    coord,
		bus:      b,
		hub:      NewHub(log),
		basePath: sanitizeBase(basePath),
		log:      log.With("component", "http"),
	}
}

// Hub returns the websocket broadcaster so it can be registered as a
// backend bridge client.
func (r *Router) Hub() *Hub { return r.hub }

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/command", r.handleCommand)
	group.GET("/status", r.handleStatus)
	group.GET("/health", r.handleHealth)
	group.GET("/events/history", r.handleHistory)
	group.GET("/stats", r.handleStats)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	group.GET("/ws", r.hub.handleWS)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down with http.Server's Shutdown or Close.
func NewServer(addr, basePath string, coord *supervisor.Coordinator, b *bus.Bus, log *slog.Logger) (*http.Server, *Router) {
	r := NewRouter(coord, b, basePath, log)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, r
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type commandReq struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

func (r *Router) handleCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Command == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "command required"})
		return
	}
	res := r.coord.Dispatch(c.Request.Context(), req.Command, req.Params)
	code := http.StatusOK
	if !res.Success {
		code = http.StatusBadRequest
	}
	writeJSON(c, code, res)
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.coord.Status())
}

func (r *Router) handleHealth(c *gin.Context) {
	health := r.coord.Health()
	code := http.StatusOK
	for _, healthy := range health {
		if !healthy {
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(c, code, gin.H{"services": health, "state": r.coord.State()})
}

func (r *Router) handleHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	var t event.Type
	if raw := c.Query("type"); raw != "" {
		t = event.Type(raw)
		if !event.Known(t) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "unknown event type: " + raw})
			return
		}
	}
	events := r.bus.History(t, limit)
	writeJSON(c, http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (r *Router) handleStats(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"queues":          r.bus.AllStats(),
		"total_published": r.bus.TotalPublished(),
		"websocket":       r.hub.Stats(),
	})
}
