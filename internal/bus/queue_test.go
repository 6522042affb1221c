package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deskmate/deskmate/internal/event"
)

func waitUntil(timeout, step time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(step)
	}
	return false
}

func testEvent(t event.Type) event.Event {
	return event.New(t, "test", map[string]any{})
}

func TestPublishCapacityDrop(t *testing.T) {
	q := NewQueue("capped", 2, nil)
	if !q.Publish(testEvent(event.ActionDetected)) {
		t.Fatal("first publish should succeed")
	}
	if !q.Publish(testEvent(event.ActionDetected)) {
		t.Fatal("second publish should succeed")
	}
	if q.Publish(testEvent(event.ActionDetected)) {
		t.Fatal("third publish must be dropped at capacity 2")
	}
	st := q.Stats()
	if st.EventsPublished != 2 {
		t.Fatalf("published = %d, want 2", st.EventsPublished)
	}
	if st.EventsDropped != 1 {
		t.Fatalf("dropped = %d, want 1", st.EventsDropped)
	}
	if st.QueueFullCount != 1 {
		t.Fatalf("queue_full_count = %d, want 1", st.QueueFullCount)
	}
	if st.QueueSize != 2 || st.QueueMaxSize != 2 {
		t.Fatalf("size/max = %d/%d, want 2/2", st.QueueSize, st.QueueMaxSize)
	}
}

func TestConsumeFIFO(t *testing.T) {
	q := NewQueue("fifo", 10, nil)
	for i := 0; i < 5; i++ {
		e := event.New(event.ActionDetected, "test", map[string]any{"seq": i})
		if !q.Publish(e) {
			t.Fatalf("publish %d failed", i)
		}
	}
	for i := 0; i < 5; i++ {
		e, ok := q.TryConsume()
		if !ok {
			t.Fatalf("expected event %d", i)
		}
		if e.Data["seq"] != i {
			t.Fatalf("out of order: got %v at position %d", e.Data["seq"], i)
		}
	}
	st := q.Stats()
	if st.EventsConsumed != 5 {
		t.Fatalf("consumed = %d, want 5", st.EventsConsumed)
	}
}

func TestFilterRejectionCountsAsDrop(t *testing.T) {
	q := NewQueue("filtered", 10, nil)
	q.AddFilter(func(e event.Event) bool { return e.Type != event.AudioTranscribed })

	if q.Publish(testEvent(event.AudioTranscribed)) {
		t.Fatal("filtered event must be rejected")
	}
	if !q.Publish(testEvent(event.ActionDetected)) {
		t.Fatal("unfiltered event must pass")
	}
	st := q.Stats()
	if st.EventsDropped != 1 {
		t.Fatalf("dropped = %d, want 1", st.EventsDropped)
	}
	if st.QueueFullCount != 0 {
		t.Fatalf("queue_full_count = %d, want 0 for filter rejection", st.QueueFullCount)
	}
	if st.QueueSize != 1 {
		t.Fatalf("queue_size = %d, want 1", st.QueueSize)
	}
	if st.FilterCount != 1 {
		t.Fatalf("filter_count = %d, want 1", st.FilterCount)
	}
}

func TestSubscriberNotification(t *testing.T) {
	q := NewQueue("subs", 10, nil)
	var got atomic.Int64
	id := q.Subscribe(func(e event.Event) { got.Add(1) })

	q.Publish(testEvent(event.PatternDetected))
	if !waitUntil(time.Second, time.Millisecond, func() bool { return got.Load() == 1 }) {
		t.Fatal("subscriber was not notified")
	}

	q.Unsubscribe(id)
	q.Publish(testEvent(event.PatternDetected))
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Fatalf("unsubscribed callback still ran: %d notifications", got.Load())
	}
}

func TestSubscriberPanicIsolation(t *testing.T) {
	q := NewQueue("panicky", 10, nil)
	var healthy atomic.Int64
	q.Subscribe(func(e event.Event) { panic("boom") })
	q.Subscribe(func(e event.Event) { healthy.Add(1) })

	if !q.Publish(testEvent(event.ActionDetected)) {
		t.Fatal("publish must succeed despite a panicking subscriber")
	}
	if !waitUntil(time.Second, time.Millisecond, func() bool { return healthy.Load() == 1 }) {
		t.Fatal("second subscriber must still be notified")
	}
}

func TestDroppedEventNotDelivered(t *testing.T) {
	q := NewQueue("tiny", 1, nil)
	var got atomic.Int64
	q.Subscribe(func(e event.Event) { got.Add(1) })

	q.Publish(testEvent(event.ActionDetected))
	q.Publish(testEvent(event.ActionDetected)) // dropped: full
	if !waitUntil(time.Second, time.Millisecond, func() bool { return got.Load() == 1 }) {
		t.Fatal("first event should reach the subscriber")
	}
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Fatalf("dropped event must not be delivered, got %d notifications", got.Load())
	}
}

func TestConsumeTimeout(t *testing.T) {
	q := NewQueue("empty", 2, nil)
	start := time.Now()
	if _, ok := q.ConsumeTimeout(30 * time.Millisecond); ok {
		t.Fatal("consume on empty queue should time out")
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("timeout returned too early")
	}

	q.Publish(testEvent(event.ActionDetected))
	if _, ok := q.ConsumeTimeout(30 * time.Millisecond); !ok {
		t.Fatal("consume should return the buffered event")
	}
}

func TestConsumeContextCancel(t *testing.T) {
	q := NewQueue("ctx", 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Consume(ctx)
		done <- ok
	}()
	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("cancelled consume must report false")
		}
	case <-time.After(time.Second):
		t.Fatal("consume did not return after cancel")
	}
}

func TestClear(t *testing.T) {
	q := NewQueue("clear", 10, nil)
	for i := 0; i < 4; i++ {
		q.Publish(testEvent(event.ActionDetected))
	}
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("len = %d after clear", q.Len())
	}
	st := q.Stats()
	if st.EventsConsumed != 0 {
		t.Fatalf("clear must not count as consumption, consumed = %d", st.EventsConsumed)
	}
}
