package gui

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deskmate/deskmate/internal/bridge"
	"github.com/deskmate/deskmate/internal/event"
	"github.com/deskmate/deskmate/internal/metrics"
)

// Tuning constants for the UI delivery path.
const (
	DefaultThrottle   = 100 * time.Millisecond
	DefaultQueueSize  = 1000
	DefaultDrainTick  = 100 * time.Millisecond
	MaxEventsPerDrain = 10
)

// BridgeStats is a snapshot of the delivery counters.
type BridgeStats struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsProcessed uint64 `json:"events_processed"`
	EventsDropped   uint64 `json:"events_dropped"`
	QueueOverflows  uint64 `json:"queue_overflows"`
}

// stateCache is the small UI-side view of backend state. It is guarded by
// one mutex because it is touched from the drain handler and from other UI
// scheduler callbacks.
type stateCache struct {
	recording bool
	paused    bool
	sessionID string
	frames    int64
}

// uiItem is one unit of work handed to the UI scheduler: either a backend
// event to dispatch by type, or a direct port call (health, metrics).
type uiItem struct {
	evt  *event.Event
	call func(Port)
}

// Bridge moves backend events onto the single-threaded UI scheduler. The
// producer side (OnBackendEvent and friends, callable from any goroutine)
// throttles per event type and never blocks: overflow and throttled
// duplicates are dropped and counted. The consumer side is one goroutine
// owning a drain ticker that processes at most MaxEventsPerDrain items per
// tick and is the only caller of the Port.
type Bridge struct {
	port Port
	log  *slog.Logger

	throttle  time.Duration
	drainTick time.Duration
	queue     chan uiItem

	mu         sync.Mutex
	lastByType map[event.Type]time.Time
	cache      stateCache
	received   uint64
	processed  uint64
	dropped    uint64
	overflows  uint64
	running    bool

	stop chan struct{}
	done chan struct{}
}

// Options tune the delivery bridge; zero values use the defaults above.
type Options struct {
	Throttle  time.Duration
	QueueSize int
	DrainTick time.Duration
}

// NewBridge creates a stopped delivery bridge for one UI port.
func NewBridge(port Port, log *slog.Logger, opts Options) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultThrottle
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.DrainTick <= 0 {
		opts.DrainTick = DefaultDrainTick
	}
	return &Bridge{
		port:       port,
		log:        log.With("component", "ui_bridge"),
		throttle:   opts.Throttle,
		drainTick:  opts.DrainTick,
		queue:      make(chan uiItem, opts.QueueSize),
		lastByType: make(map[event.Type]time.Time),
	}
}

// Port returns the UI port this bridge delivers to.
func (b *Bridge) Port() Port { return b.port }

// Call runs fn against the port on the UI scheduler goroutine, behind
// any queued event deliveries.
func (b *Bridge) Call(fn func(Port)) { b.enqueueCall(fn) }

// Start launches the UI scheduler goroutine and queues the
// backend-connected notification for the port.
func (b *Bridge) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.mu.Unlock()
	go b.drainLoop()
	b.enqueueCall(func(p Port) { p.OnBackendConnected() })
}

// Stop halts the scheduler and waits for it to finish the current tick.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	stop := b.stop
	done := b.done
	b.mu.Unlock()
	close(stop)
	<-done
}

// OnBackendEvent accepts one bus event from any goroutine. An event of a
// type delivered less than the throttle interval ago is dropped and
// counted; a full queue likewise. The caller is never blocked.
func (b *Bridge) OnBackendEvent(e event.Event) {
	b.mu.Lock()
	b.received++
	now := time.Now()
	if last, seen := b.lastByType[e.Type]; seen && now.Sub(last) < b.throttle {
		b.dropped++
		b.mu.Unlock()
		metrics.IncUIDropped("throttled")
		return
	}

	// The stamp records deliveries, not attempts: an event lost to queue
	// overflow must not throttle the next event of its type.
	select {
	case b.queue <- uiItem{evt: &e}:
		b.lastByType[e.Type] = now
		b.mu.Unlock()
	default:
		b.dropped++
		b.overflows++
		b.mu.Unlock()
		metrics.IncUIDropped("overflow")
	}
}

// OnServiceHealth forwards a health change to the UI scheduler.
func (b *Bridge) OnServiceHealth(service string, healthy bool, details string) {
	b.enqueueCall(func(p Port) { p.UpdateServiceHealth(service, healthy, details) })
}

// OnPerformanceMetrics forwards a metrics snapshot to the UI scheduler.
func (b *Bridge) OnPerformanceMetrics(m bridge.Metrics) {
	b.enqueueCall(func(p Port) { p.UpdatePerformanceMetrics(m) })
}

// OnPerformanceWarning surfaces a performance warning dialog.
func (b *Bridge) OnPerformanceWarning(message string) {
	b.enqueueCall(func(p Port) { p.ShowWarning("Performance", message) })
}

func (b *Bridge) enqueueCall(fn func(Port)) {
	select {
	case b.queue <- uiItem{call: fn}:
	default:
		b.mu.Lock()
		b.overflows++
		b.mu.Unlock()
		metrics.IncUIDropped("overflow")
	}
}

// Stats returns a copy of the delivery counters.
func (b *Bridge) Stats() BridgeStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BridgeStats{
		EventsReceived:  b.received,
		EventsProcessed: b.processed,
		EventsDropped:   b.dropped,
		QueueOverflows:  b.overflows,
	}
}

// Snapshot returns the cached recording state for other UI callbacks.
func (b *Bridge) Snapshot() (recording, paused bool, sessionID string, frames int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cache
	return c.recording, c.paused, c.sessionID, c.frames
}

// drainLoop is the UI scheduler: a ticker that drains up to
// MaxEventsPerDrain queued items per tick, bounding per-tick UI work.
func (b *Bridge) drainLoop() {
	defer close(b.done)
	t := time.NewTicker(b.drainTick)
	defer t.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-t.C:
			for i := 0; i < MaxEventsPerDrain; i++ {
				select {
				case item := <-b.queue:
					b.process(item)
				default:
					i = MaxEventsPerDrain
				}
			}
		}
	}
}

func (b *Bridge) process(item uiItem) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("UI update panicked", "panic", r)
		}
	}()
	if item.call != nil {
		item.call(b.port)
		return
	}
	b.dispatch(*item.evt)
	b.mu.Lock()
	b.processed++
	b.mu.Unlock()
}

// dispatch routes one backend event to its type-specific UI update.
func (b *Bridge) dispatch(e event.Event) {
	switch e.Type {
	case event.ScreenshotCaptured, event.VideoSegmentComplete:
		b.mu.Lock()
		b.cache.frames++
		frames := b.cache.frames
		b.mu.Unlock()
		b.port.UpdateFrameCount(frames)

	case event.CapturePaused, event.CaptureResumed:
		b.mu.Lock()
		b.cache.paused = e.Type == event.CapturePaused
		recording, paused := b.cache.recording, b.cache.paused
		b.mu.Unlock()
		b.port.UpdateRecordingState(recording, paused)

	case event.AudioTranscribed:
		b.port.AddActionToFeed(ActionItem{
			ActionType: "audio_transcribed",
			Detail:     dataString(e.Data, "text"),
			Source:     e.Source,
			Timestamp:  e.Timestamp,
		})

	case event.ActionDetected:
		b.port.AddActionToFeed(projectAction(e))

	case event.PatternDetected:
		b.port.AddPatternToDashboard(projectPattern(e))

	case event.WorkflowSuggestionGenerated:
		b.port.AddSuggestionToDashboard(projectSuggestion(e))

	case event.SessionCreated:
		b.mu.Lock()
		b.cache.recording = true
		b.cache.paused = false
		b.cache.sessionID = dataString(e.Data, "session_id")
		sessionID := b.cache.sessionID
		b.mu.Unlock()
		b.port.UpdateSessionInfo(sessionID, e.Timestamp)
		b.port.UpdateRecordingState(true, false)

	case event.SessionCompleted:
		b.mu.Lock()
		b.cache.recording = false
		b.cache.paused = false
		b.cache.sessionID = ""
		b.mu.Unlock()
		b.port.UpdateRecordingState(false, false)

	case event.SessionDeleted:
		b.port.OnSessionDeleted(dataString(e.Data, "session_id"))

	case event.WorkflowStarted:
		b.port.OnWorkflowStarted(dataString(e.Data, "workflow_id"))

	case event.StorageCleanupTriggered:
		b.port.ShowProgress("Cleaning up storage")

	case event.StorageCleanupCompleted:
		b.port.HideProgress()

	case event.ServiceStarted, event.ServiceStopped:
		b.port.AddLogMessage("info", fmt.Sprintf("%s: %s", e.Type, dataString(e.Data, "service_name")))

	case event.ServiceError:
		b.port.ShowWarning("Service error", dataString(e.Data, "service_name"))

	case event.ApplicationShutdown:
		b.port.OnBackendDisconnected()

	default:
		b.log.Debug("No UI handler for event type", "type", string(e.Type))
	}
}
