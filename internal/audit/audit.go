package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind defines the category of an audit record.
type Kind string

const (
	KindServiceStart     Kind = "service_start"
	KindServiceStop      Kind = "service_stop"
	KindServiceError     Kind = "service_error"
	KindRestart          Kind = "restart"
	KindSessionCreated   Kind = "session_created"
	KindSessionCompleted Kind = "session_completed"
)

// Record is one service-lifecycle or session-lifecycle fact worth keeping
// for later inspection. It is append-only and never read back by the
// application; there is no replay path.
type Record struct {
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for audit records (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, r Record) error
	Close() error
}

// Trail fans records out to its sinks best-effort: a failing or slow sink
// is logged and never blocks the caller's path.
type Trail struct {
	log *slog.Logger

	mu    sync.RWMutex
	sinks []Sink
}

// NewTrail creates a trail over the given sinks. A trail with no sinks is
// valid and records nothing.
func NewTrail(log *slog.Logger, sinks ...Sink) *Trail {
	if log == nil {
		log = slog.Default()
	}
	return &Trail{
		log:   log.With("component", "audit"),
		sinks: append([]Sink(nil), sinks...),
	}
}

// Record sends r to every sink. Errors are logged per sink and swallowed.
func (t *Trail) Record(ctx context.Context, r Record) {
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now().UTC()
	}
	t.mu.RLock()
	sinks := append([]Sink(nil), t.sinks...)
	t.mu.RUnlock()
	for _, s := range sinks {
		if err := s.Send(ctx, r); err != nil {
			t.log.Warn("Audit sink rejected record", "kind", string(r.Kind), "error", err)
		}
	}
}

// Close closes every sink, returning the first error encountered.
func (t *Trail) Close() error {
	t.mu.Lock()
	sinks := t.sinks
	t.sinks = nil
	t.mu.Unlock()
	var first error
	for _, s := range sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
