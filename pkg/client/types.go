package client

import "github.com/deskmate/deskmate/internal/event"

type commandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// CommandResult mirrors the dispatcher result shape.
type CommandResult struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// StatusResponse is the coordinator status document.
type StatusResponse struct {
	State     string                    `json:"state"`
	SessionID string                    `json:"session_id"`
	IsPaused  bool                      `json:"is_paused"`
	Services  map[string]map[string]any `json:"services"`
}

// HealthResponse is the per-service health map.
type HealthResponse struct {
	State    string          `json:"state"`
	Services map[string]bool `json:"services"`
}

// HistoryResponse carries recent events, newest first.
type HistoryResponse struct {
	Events []event.Event `json:"events"`
	Count  int           `json:"count"`
}

// StatsResponse carries bus queue statistics.
type StatsResponse struct {
	Queues         map[string]QueueStats `json:"queues"`
	TotalPublished uint64                `json:"total_published"`
	Websocket      WebsocketStats        `json:"websocket"`
}

// QueueStats mirrors one bus queue's counters.
type QueueStats struct {
	EventsPublished uint64 `json:"events_published"`
	EventsConsumed  uint64 `json:"events_consumed"`
	EventsDropped   uint64 `json:"events_dropped"`
	QueueFullCount  uint64 `json:"queue_full_count"`
	QueueSize       int    `json:"queue_size"`
	QueueMaxSize    int    `json:"queue_maxsize"`
	SubscriberCount int    `json:"subscriber_count"`
	FilterCount     int    `json:"filter_count"`
}

// WebsocketStats mirrors the broadcaster counters.
type WebsocketStats struct {
	Clients     int    `json:"clients"`
	Broadcast   uint64 `json:"broadcast"`
	SlowDropped uint64 `json:"slow_dropped"`
}

// ErrorResponse is the API error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
