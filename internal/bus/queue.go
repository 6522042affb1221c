package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deskmate/deskmate/internal/event"
	"github.com/deskmate/deskmate/internal/metrics"
)

// DefaultQueueSize bounds a queue's buffer when no capacity is given.
const DefaultQueueSize = 1000

// FilterFunc inspects an event before enqueue; returning false rejects it.
type FilterFunc func(event.Event) bool

// SubscriberFunc receives events as they are enqueued. Each invocation runs
// in its own goroutine; panics are recovered and logged so one subscriber
// can never break another or the publisher.
type SubscriberFunc func(event.Event)

// Stats is a point-in-time copy of a queue's counters.
type Stats struct {
	EventsPublished uint64 `json:"events_published"`
	EventsConsumed  uint64 `json:"events_consumed"`
	EventsDropped   uint64 `json:"events_dropped"`
	QueueFullCount  uint64 `json:"queue_full_count"`
	QueueSize       int    `json:"queue_size"`
	QueueMaxSize    int    `json:"queue_maxsize"`
	SubscriberCount int    `json:"subscriber_count"`
	FilterCount     int    `json:"filter_count"`
}

type subscriber struct {
	id int
	fn SubscriberFunc
}

// Queue is a bounded FIFO event channel with subscriber fan-out, filters
// and drop-on-full backpressure. Publishing never blocks the producer.
type Queue struct {
	name string
	ch   chan event.Event
	log  *slog.Logger

	mu          sync.Mutex
	subscribers []subscriber
	filters     []FilterFunc
	nextSubID   int

	published uint64
	consumed  uint64
	dropped   uint64
	fullCount uint64
}

// NewQueue creates a queue with the given capacity. capacity <= 0 falls
// back to DefaultQueueSize.
func NewQueue(name string, capacity int, log *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		name: name,
		ch:   make(chan event.Event, capacity),
		log:  log.With("queue", name),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Len returns the current number of buffered events.
func (q *Queue) Len() int { return len(q.ch) }

// Publish applies filters in registration order, then attempts a
// non-blocking enqueue. A filter rejection or a full buffer drops the
// event, increments the drop counters and returns false. On success every
// subscriber is notified fire-and-forget.
func (q *Queue) Publish(e event.Event) bool {
	q.mu.Lock()
	for _, f := range q.filters {
		if !f(e) {
			q.dropped++
			q.mu.Unlock()
			metrics.IncDropped(q.name)
			return false
		}
	}
	subs := make([]subscriber, len(q.subscribers))
	copy(subs, q.subscribers)
	q.mu.Unlock()

	select {
	case q.ch <- e:
	default:
		q.mu.Lock()
		q.dropped++
		q.fullCount++
		q.mu.Unlock()
		metrics.IncDropped(q.name)
		q.log.Warn("Event queue full, dropping event", "type", string(e.Type))
		return false
	}

	q.mu.Lock()
	q.published++
	q.mu.Unlock()
	metrics.IncPublished(q.name)
	metrics.SetQueueSize(q.name, len(q.ch))

	for _, s := range subs {
		go q.notify(s.fn, e)
	}
	return true
}

func (q *Queue) notify(fn SubscriberFunc, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Event subscriber panicked", "type", string(e.Type), "panic", r)
		}
	}()
	fn(e)
}

// Consume blocks until an event is available or ctx is done. The second
// return is false when the wait was cancelled.
func (q *Queue) Consume(ctx context.Context) (event.Event, bool) {
	select {
	case e := <-q.ch:
		q.markConsumed()
		return e, true
	case <-ctx.Done():
		return event.Event{}, false
	}
}

// ConsumeTimeout waits up to d for an event; false on timeout.
func (q *Queue) ConsumeTimeout(d time.Duration) (event.Event, bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case e := <-q.ch:
		q.markConsumed()
		return e, true
	case <-t.C:
		return event.Event{}, false
	}
}

// TryConsume dequeues without waiting; false when the buffer is empty.
func (q *Queue) TryConsume() (event.Event, bool) {
	select {
	case e := <-q.ch:
		q.markConsumed()
		return e, true
	default:
		return event.Event{}, false
	}
}

func (q *Queue) markConsumed() {
	q.mu.Lock()
	q.consumed++
	q.mu.Unlock()
	metrics.IncConsumed(q.name)
	metrics.SetQueueSize(q.name, len(q.ch))
}

// Subscribe registers a callback and returns its id for Unsubscribe.
// Notification order follows registration order.
func (q *Queue) Subscribe(fn SubscriberFunc) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextSubID++
	id := q.nextSubID
	q.subscribers = append(q.subscribers, subscriber{id: id, fn: fn})
	return id
}

// Unsubscribe removes the callback registered under id. Unknown ids are
// a no-op.
func (q *Queue) Unsubscribe(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, s := range q.subscribers {
		if s.id == id {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// AddFilter appends a predicate; filters run in the order they were added.
func (q *Queue) AddFilter(f FilterFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.filters = append(q.filters, f)
}

// Stats returns a snapshot of the counters, never live state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		EventsPublished: q.published,
		EventsConsumed:  q.consumed,
		EventsDropped:   q.dropped,
		QueueFullCount:  q.fullCount,
		QueueSize:       len(q.ch),
		QueueMaxSize:    cap(q.ch),
		SubscriberCount: len(q.subscribers),
		FilterCount:     len(q.filters),
	}
}

// Clear drains all buffered events without counting them as consumed.
func (q *Queue) Clear() {
	for {
		select {
		case <-q.ch:
		default:
			metrics.SetQueueSize(q.name, 0)
			return
		}
	}
}
