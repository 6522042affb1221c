package bus

import (
	"log/slog"
	"sync"

	"github.com/deskmate/deskmate/internal/event"
)

// Default queue names. Every routable event type lands in one of these.
const (
	QueueCapture  = "capture_events"
	QueueAudio    = "audio_events"
	QueueAnalysis = "analysis_events"
	QueueStorage  = "storage_events"
	QueueSystem   = "system_events"
)

// MaxHistory bounds the bus-wide event history ring.
const MaxHistory = 1000

// routing fixes the queue for each event type. Types absent here are
// unroutable and dropped with a warning.
var routing = map[event.Type]string{
	event.ScreenshotCaptured:   QueueCapture,
	event.VideoSegmentComplete: QueueCapture,
	event.CapturePaused:        QueueCapture,
	event.CaptureResumed:       QueueCapture,

	event.AudioTranscribed:    QueueAudio,
	event.AudioCaptureStarted: QueueAudio,
	event.AudioCaptureStopped: QueueAudio,

	event.ActionDetected:              QueueAnalysis,
	event.PatternDetected:             QueueAnalysis,
	event.WorkflowSuggestionGenerated: QueueAnalysis,

	event.SessionCreated:          QueueStorage,
	event.SessionCompleted:        QueueStorage,
	event.SessionDeleted:          QueueStorage,
	event.StorageCleanupTriggered: QueueStorage,
	event.StorageCleanupCompleted: QueueStorage,

	event.WorkflowStarted:     QueueSystem,
	event.ServiceStarted:      QueueSystem,
	event.ServiceStopped:      QueueSystem,
	event.ServiceError:        QueueSystem,
	event.ApplicationShutdown: QueueSystem,
}

// DefaultQueueNames returns the names of the queues a new bus owns, in
// creation order.
func DefaultQueueNames() []string {
	return []string{QueueCapture, QueueAudio, QueueAnalysis, QueueStorage, QueueSystem}
}

// RouteFor returns the queue name an event type routes to.
func RouteFor(t event.Type) (string, bool) {
	name, ok := routing[t]
	return name, ok
}

// Bus owns the named queues, the static routing table, the bounded global
// history and the global subscriber list. One Bus is constructed per
// process and passed by reference; there is no package singleton.
type Bus struct {
	log *slog.Logger

	mu         sync.RWMutex
	queues     map[string]*Queue
	globalSubs []subscriber
	nextSubID  int

	histMu   sync.Mutex
	history  []event.Event
	histHead int
	histLen  int
}

// New creates a bus with the default queues.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	b := &Bus{
		log:     log.With("component", "event_bus"),
		queues:  make(map[string]*Queue),
		history: make([]event.Event, MaxHistory),
	}
	for _, name := range DefaultQueueNames() {
		b.queues[name] = NewQueue(name, DefaultQueueSize, log)
	}
	return b
}

// Queue returns the named queue.
func (b *Bus) Queue(name string) (*Queue, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.queues[name]
	return q, ok
}

// CreateQueue adds a queue. Creating an existing name is idempotent: the
// existing queue is returned and a warning logged.
func (b *Bus) CreateQueue(name string, capacity int) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		b.log.Warn("Queue already exists", "name", name)
		return q
	}
	q := NewQueue(name, capacity, b.log)
	b.queues[name] = q
	b.log.Info("Created event queue", "name", name)
	return q
}

// Publish records the event in history, notifies global subscribers and
// routes it by type. Unroutable types are dropped with a warning.
func (b *Bus) Publish(e event.Event) bool {
	b.record(e)
	b.notifyGlobal(e)

	name, ok := routing[e.Type]
	if !ok {
		b.log.Warn("No queue for event type", "type", string(e.Type))
		return false
	}
	b.mu.RLock()
	q := b.queues[name]
	b.mu.RUnlock()
	return q.Publish(e)
}

// PublishTo bypasses routing and publishes into the named queue. Unknown
// names log an error and return false.
func (b *Bus) PublishTo(queueName string, e event.Event) bool {
	b.record(e)
	b.notifyGlobal(e)

	b.mu.RLock()
	q, ok := b.queues[queueName]
	b.mu.RUnlock()
	if !ok {
		b.log.Error("Queue not found", "name", queueName)
		return false
	}
	return q.Publish(e)
}

func (b *Bus) record(e event.Event) {
	b.histMu.Lock()
	b.history[b.histHead] = e
	b.histHead = (b.histHead + 1) % MaxHistory
	if b.histLen < MaxHistory {
		b.histLen++
	}
	b.histMu.Unlock()
}

func (b *Bus) notifyGlobal(e event.Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.globalSubs))
	copy(subs, b.globalSubs)
	b.mu.RUnlock()
	for _, s := range subs {
		fn := s.fn
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("Global event subscriber panicked", "type", string(e.Type), "panic", r)
				}
			}()
			fn(e)
		}()
	}
}

// SubscribeGlobal registers a callback for every published event and
// returns its id.
func (b *Bus) SubscribeGlobal(fn SubscriberFunc) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.globalSubs = append(b.globalSubs, subscriber{id: id, fn: fn})
	return id
}

// UnsubscribeGlobal removes a global subscriber by id.
func (b *Bus) UnsubscribeGlobal(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.globalSubs {
		if s.id == id {
			b.globalSubs = append(b.globalSubs[:i], b.globalSubs[i+1:]...)
			return
		}
	}
}

// History returns up to limit recent events, newest first, optionally
// filtered by type. limit <= 0 returns everything retained.
func (b *Bus) History(t event.Type, limit int) []event.Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	var out []event.Event
	for i := 0; i < b.histLen; i++ {
		idx := (b.histHead - 1 - i + MaxHistory) % MaxHistory
		e := b.history[idx]
		if t != "" && e.Type != t {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// AllStats returns a snapshot of every queue's stats keyed by queue name.
func (b *Bus) AllStats() map[string]Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Stats, len(b.queues))
	for name, q := range b.queues {
		out[name] = q.Stats()
	}
	return out
}

// QueueNames returns the current queue names.
func (b *Bus) QueueNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	return names
}

// TotalPublished sums the published counter across queues. The backend
// bridge uses the delta between polls to derive an events-per-second rate.
func (b *Bus) TotalPublished() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total uint64
	for _, q := range b.queues {
		total += q.Stats().EventsPublished
	}
	return total
}

// ClearAll drains every queue and resets the history ring.
func (b *Bus) ClearAll() {
	b.mu.RLock()
	for _, q := range b.queues {
		q.Clear()
	}
	b.mu.RUnlock()

	b.histMu.Lock()
	b.histHead = 0
	b.histLen = 0
	b.histMu.Unlock()
	b.log.Info("All event queues cleared")
}
