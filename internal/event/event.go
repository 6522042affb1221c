package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of event flowing through the bus.
type Type string

const (
	ScreenshotCaptured           Type = "screenshot_captured"
	VideoSegmentComplete         Type = "video_segment_complete"
	CapturePaused                Type = "capture_paused"
	CaptureResumed               Type = "capture_resumed"
	AudioTranscribed             Type = "audio_transcribed"
	AudioCaptureStarted          Type = "audio_capture_started"
	AudioCaptureStopped          Type = "audio_capture_stopped"
	ActionDetected               Type = "action_detected"
	PatternDetected              Type = "pattern_detected"
	WorkflowSuggestionGenerated  Type = "workflow_suggestion_generated"
	SessionCreated               Type = "session_created"
	SessionCompleted             Type = "session_completed"
	SessionDeleted               Type = "session_deleted"
	WorkflowStarted              Type = "workflow_started"
	StorageCleanupTriggered      Type = "storage_cleanup_triggered"
	StorageCleanupCompleted      Type = "storage_cleanup_completed"
	ServiceStarted               Type = "service_started"
	ServiceStopped               Type = "service_stopped"
	ServiceError                 Type = "service_error"
	ApplicationShutdown          Type = "application_shutdown"
)

// Event is an immutable record of something that happened in the backend.
// The JSON form is the only external representation: a flat record with an
// RFC 3339 timestamp and the generated event_id.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
	ID        string         `json:"event_id"`
}

// New creates an event stamped with the current time and a fresh id.
func New(t Type, source string, data map[string]any) Event {
	return NewAt(t, time.Now(), source, data)
}

// NewAt creates an event with an explicit timestamp. The id is generated
// when empty so every event is individually addressable.
func NewAt(t Type, ts time.Time, source string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		Type:      t,
		Timestamp: ts,
		Source:    source,
		Data:      data,
		ID:        uuid.NewString(),
	}
}

// FromJSON decodes the flat record form produced by json.Marshal on Event.
func FromJSON(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return e, nil
}

// Known reports whether t is one of the defined event types.
func Known(t Type) bool {
	switch t {
	case ScreenshotCaptured, VideoSegmentComplete, CapturePaused, CaptureResumed,
		AudioTranscribed, AudioCaptureStarted, AudioCaptureStopped,
		ActionDetected, PatternDetected, WorkflowSuggestionGenerated,
		SessionCreated, SessionCompleted, SessionDeleted, WorkflowStarted,
		StorageCleanupTriggered, StorageCleanupCompleted,
		ServiceStarted, ServiceStopped, ServiceError, ApplicationShutdown:
		return true
	}
	return false
}
