package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memSink struct {
	mu      sync.Mutex
	records []Record
	fail    bool
	closed  bool
}

func (m *memSink) Send(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("sink down")
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestTrailFansOutToAllSinks(t *testing.T) {
	a := &memSink{}
	b := &memSink{}
	tr := NewTrail(nil, a, b)
	tr.Record(context.Background(), Record{Kind: KindServiceStart, Service: "screen_capture"})
	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("fan-out counts = %d/%d, want 1/1", a.count(), b.count())
	}
}

func TestTrailIsolatesFailingSink(t *testing.T) {
	bad := &memSink{fail: true}
	good := &memSink{}
	tr := NewTrail(nil, bad, good)
	tr.Record(context.Background(), Record{Kind: KindRestart, Service: "audio_capture"})
	if good.count() != 1 {
		t.Fatalf("healthy sink got %d records, want 1", good.count())
	}
}

func TestTrailStampsOccurredAt(t *testing.T) {
	s := &memSink{}
	tr := NewTrail(nil, s)
	before := time.Now().UTC()
	tr.Record(context.Background(), Record{Kind: KindSessionCreated, SessionID: "sess-1"})
	s.mu.Lock()
	got := s.records[0].OccurredAt
	s.mu.Unlock()
	if got.Before(before) {
		t.Fatalf("occurred_at %v predates the call at %v", got, before)
	}
}

func TestTrailCloseClosesSinks(t *testing.T) {
	a := &memSink{}
	tr := NewTrail(nil, a)
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed {
		t.Fatal("sink not closed")
	}
	// recording after close is a no-op
	tr.Record(context.Background(), Record{Kind: KindServiceStop})
	if a.count() != 0 {
		t.Fatal("closed trail must not record")
	}
}
