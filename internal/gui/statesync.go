package gui

import (
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// BackendStateFunc returns the flat backend state snapshot. The supervisor's
// BackendState method satisfies it.
type BackendStateFunc func() map[string]any

// DefaultSyncInterval is the state reconciliation poll period.
const DefaultSyncInterval = time.Second

// StateSync periodically polls the backend for a flat state snapshot,
// diffs it against the previous one and pushes only the changed keys to
// the UI port. It owns no shared state beyond the previous snapshot, which
// only the loop goroutine touches.
type StateSync struct {
	port     Port
	stateFn  BackendStateFunc
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewStateSync creates a stopped sync loop.
func NewStateSync(port Port, stateFn BackendStateFunc, interval time.Duration, log *slog.Logger) *StateSync {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &StateSync{
		port:     port,
		stateFn:  stateFn,
		interval: interval,
		log:      log.With("component", "state_sync"),
	}
}

// Start launches the poll loop; starting twice is a no-op.
func (s *StateSync) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()
	go s.run(stop, done)
}

// Stop cancels the loop and waits for it to exit.
func (s *StateSync) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()
	close(stop)
	<-done
}

func (s *StateSync) run(stop chan struct{}, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	var prev map[string]any
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			current := s.stateFn()
			changes := diffStates(prev, current)
			for key, value := range changes {
				s.apply(key, value, current)
			}
			prev = current
		}
	}
}

// diffStates returns the keys whose value differs between two snapshots.
// Keys present only in old are reported with a nil value. It is a pure
// function over its two inputs.
func diffStates(old, current map[string]any) map[string]any {
	changes := make(map[string]any)
	for key, value := range current {
		prev, seen := old[key]
		if !seen || !reflect.DeepEqual(prev, value) {
			changes[key] = value
		}
	}
	for key := range old {
		if _, still := current[key]; !still {
			changes[key] = nil
		}
	}
	return changes
}

// apply pushes one changed key to the UI with a targeted update rather
// than a full refresh.
func (s *StateSync) apply(key string, value any, current map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("State update panicked", "key", key, "panic", r)
		}
	}()
	switch key {
	case "is_recording", "is_paused":
		recording, _ := current["is_recording"].(bool)
		paused, _ := current["is_paused"].(bool)
		s.port.UpdateRecordingState(recording, paused)

	case "session_id", "session_start_time":
		id, _ := current["session_id"].(string)
		var start time.Time
		if raw, ok := current["session_start_time"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				start = ts
			}
		}
		s.port.UpdateSessionInfo(id, start)

	case "frames_captured":
		if n, ok := value.(int64); ok {
			s.port.UpdateFrameCount(n)
		}

	case "service_health":
		health, ok := value.(map[string]bool)
		if !ok {
			return
		}
		for svc, healthy := range health {
			details := "service is running"
			if !healthy {
				details = "service stopped responding"
			}
			s.port.UpdateServiceHealth(svc, healthy, details)
		}

	default:
		s.log.Debug("Unhandled state key", "key", key)
	}
}
