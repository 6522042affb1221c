package event

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewGeneratesID(t *testing.T) {
	a := New(ServiceStarted, "test", map[string]any{"service_name": "screen_capture"})
	b := New(ServiceStarted, "test", map[string]any{"service_name": "screen_capture"})
	if a.ID == "" || b.ID == "" {
		t.Fatalf("expected generated ids, got %q and %q", a.ID, b.ID)
	}
	if a.ID == b.ID {
		t.Fatalf("expected unique ids, both were %q", a.ID)
	}
	if a.Data == nil {
		t.Fatal("data map should never be nil")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	e := NewAt(ScreenshotCaptured, ts, "screen_capture", map[string]any{
		"filepath":   "/tmp/shot.png",
		"filename":   "shot.png",
		"size_bytes": float64(2048),
	})
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, key := range []string{"type", "timestamp", "source", "data", "event_id"} {
		if _, ok := flat[key]; !ok {
			t.Fatalf("flat record missing key %q: %s", key, b)
		}
	}
	if flat["timestamp"] != "2025-03-14T09:26:53Z" {
		t.Fatalf("timestamp not RFC 3339: %v", flat["timestamp"])
	}

	back, err := FromJSON(b)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if back.Type != e.Type || back.Source != e.Source || back.ID != e.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, e)
	}
	if !back.Timestamp.Equal(ts) {
		t.Fatalf("timestamp drift: %v vs %v", back.Timestamp, ts)
	}
	if back.Data["filepath"] != "/tmp/shot.png" {
		t.Fatalf("data lost in round trip: %+v", back.Data)
	}
}

func TestFromJSONFillsMissingID(t *testing.T) {
	raw := `{"type":"service_started","timestamp":"2025-03-14T09:00:00Z","source":"coordinator","data":{"service_name":"audio_capture"}}`
	e, err := FromJSON([]byte(raw))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected an id to be generated for records without one")
	}
}

func TestKnown(t *testing.T) {
	if !Known(PatternDetected) {
		t.Fatal("pattern_detected should be known")
	}
	if Known(Type("mystery_event")) {
		t.Fatal("arbitrary strings must not be known types")
	}
}

func TestValidate(t *testing.T) {
	good := New(ServiceError, "coordinator", map[string]any{"service_name": "hotkeys", "error": "boom"})
	if err := Validate(good); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	bad := New(ServiceError, "coordinator", map[string]any{"error": "boom"})
	if err := Validate(bad); err == nil {
		t.Fatal("missing service_name should fail validation")
	}
	free := New(ApplicationShutdown, "coordinator", nil)
	if err := Validate(free); err != nil {
		t.Fatalf("types without a schema must accept any payload: %v", err)
	}
}

func TestServiceAndSessionConstructors(t *testing.T) {
	e, err := NewServiceEvent(ServiceStarted, "coordinator", "workflow_analyzer", map[string]any{"pid": 42})
	if err != nil {
		t.Fatalf("NewServiceEvent: %v", err)
	}
	if e.Data["service_name"] != "workflow_analyzer" || e.Data["pid"] != 42 {
		t.Fatalf("unexpected payload: %+v", e.Data)
	}
	if _, err := NewServiceEvent(SessionCreated, "coordinator", "x", nil); err == nil {
		t.Fatal("session type must be rejected by NewServiceEvent")
	}

	s, err := NewSessionEvent(SessionCompleted, "coordinator", "sess-1", nil)
	if err != nil {
		t.Fatalf("NewSessionEvent: %v", err)
	}
	if s.Data["session_id"] != "sess-1" {
		t.Fatalf("unexpected payload: %+v", s.Data)
	}
	if _, err := NewSessionEvent(ServiceStopped, "coordinator", "sess-1", nil); err == nil {
		t.Fatal("service type must be rejected by NewSessionEvent")
	}
}
