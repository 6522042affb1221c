package gui

import (
	"time"

	"github.com/deskmate/deskmate/internal/event"
)

// Typed projections of event payloads. Each is built exactly once per
// event, replacing ad-hoc probing of the raw data map downstream.

// ActionItem is one entry in the activity feed.
type ActionItem struct {
	ActionType string    `json:"action_type"`
	Detail     string    `json:"detail"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// PatternItem is one detected workflow pattern on the dashboard.
type PatternItem struct {
	PatternID   string    `json:"pattern_id"`
	Description string    `json:"description"`
	Occurrences int       `json:"occurrences"`
	Timestamp   time.Time `json:"timestamp"`
}

// SuggestionItem is one automation suggestion on the dashboard.
type SuggestionItem struct {
	SuggestionID string    `json:"suggestion_id"`
	Title        string    `json:"title"`
	WorkflowID   string    `json:"workflow_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// CaptureItem describes a captured screenshot or video segment.
type CaptureItem struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	Timestamp time.Time `json:"timestamp"`
}

func dataString(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func dataInt(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func dataInt64(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// projectAction builds the feed entry for an action_detected event.
func projectAction(e event.Event) ActionItem {
	return ActionItem{
		ActionType: dataString(e.Data, "action_type"),
		Detail:     dataString(e.Data, "detail"),
		Source:     e.Source,
		Timestamp:  e.Timestamp,
	}
}

// projectPattern builds the dashboard entry for a pattern_detected event.
func projectPattern(e event.Event) PatternItem {
	return PatternItem{
		PatternID:   dataString(e.Data, "pattern_id"),
		Description: dataString(e.Data, "description"),
		Occurrences: dataInt(e.Data, "occurrences"),
		Timestamp:   e.Timestamp,
	}
}

// projectSuggestion builds the dashboard entry for a suggestion event.
func projectSuggestion(e event.Event) SuggestionItem {
	return SuggestionItem{
		SuggestionID: dataString(e.Data, "suggestion_id"),
		Title:        dataString(e.Data, "title"),
		WorkflowID:   dataString(e.Data, "workflow_id"),
		Timestamp:    e.Timestamp,
	}
}

// projectCapture builds the capture entry for screenshot/segment events.
func projectCapture(e event.Event) CaptureItem {
	item := CaptureItem{
		Path:      dataString(e.Data, "filepath"),
		Name:      dataString(e.Data, "filename"),
		SizeBytes: dataInt64(e.Data, "size_bytes"),
		Timestamp: e.Timestamp,
	}
	if item.Path == "" {
		item.Path = dataString(e.Data, "segment_path")
		item.Name = dataString(e.Data, "segment_name")
	}
	return item
}
