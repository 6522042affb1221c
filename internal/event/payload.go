package event

import (
	"fmt"
	"path/filepath"
	"time"
)

// requiredKeys fixes the payload schema per event type. Constructors below
// are the only sanctioned way to build these payloads; Validate rejects
// events whose data map is missing a required key.
var requiredKeys = map[Type][]string{
	ScreenshotCaptured:          {"filepath", "filename", "size_bytes"},
	VideoSegmentComplete:        {"segment_path", "segment_name", "start_time", "duration_seconds"},
	AudioTranscribed:            {"text"},
	ActionDetected:              {"action_type"},
	PatternDetected:             {"pattern_id"},
	WorkflowSuggestionGenerated: {"suggestion_id"},
	SessionCreated:              {"session_id"},
	SessionCompleted:            {"session_id"},
	SessionDeleted:              {"session_id"},
	WorkflowStarted:             {"workflow_id"},
	ServiceStarted:              {"service_name"},
	ServiceStopped:              {"service_name"},
	ServiceError:                {"service_name"},
}

// Validate checks the event's data map against the fixed schema for its
// type. Types without a registered schema accept any payload.
func Validate(e Event) error {
	keys, ok := requiredKeys[e.Type]
	if !ok {
		return nil
	}
	for _, k := range keys {
		if _, present := e.Data[k]; !present {
			return fmt.Errorf("event %s: missing payload key %q", e.Type, k)
		}
	}
	return nil
}

// NewScreenshotCaptured builds a screenshot event from the captured file.
func NewScreenshotCaptured(source, path string, sizeBytes int64, ts time.Time) Event {
	return NewAt(ScreenshotCaptured, ts, source, map[string]any{
		"filepath":   path,
		"filename":   filepath.Base(path),
		"size_bytes": sizeBytes,
	})
}

// NewVideoSegmentComplete builds a video segment event.
func NewVideoSegmentComplete(source, segmentPath string, start time.Time, durSeconds float64) Event {
	return New(VideoSegmentComplete, source, map[string]any{
		"segment_path":     segmentPath,
		"segment_name":     filepath.Base(segmentPath),
		"start_time":       start.Format(time.RFC3339),
		"duration_seconds": durSeconds,
	})
}

// NewServiceEvent builds a service lifecycle event. Only the three service
// types are valid; anything else is rejected.
func NewServiceEvent(t Type, source, serviceName string, extra map[string]any) (Event, error) {
	switch t {
	case ServiceStarted, ServiceStopped, ServiceError:
	default:
		return Event{}, fmt.Errorf("event type %s is not a service lifecycle type", t)
	}
	data := map[string]any{"service_name": serviceName}
	for k, v := range extra {
		data[k] = v
	}
	return New(t, source, data), nil
}

// NewSessionEvent builds a session lifecycle event.
func NewSessionEvent(t Type, source, sessionID string, extra map[string]any) (Event, error) {
	switch t {
	case SessionCreated, SessionCompleted, SessionDeleted:
	default:
		return Event{}, fmt.Errorf("event type %s is not a session lifecycle type", t)
	}
	data := map[string]any{"session_id": sessionID}
	for k, v := range extra {
		data[k] = v
	}
	return New(t, source, data), nil
}
