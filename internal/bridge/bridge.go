package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deskmate/deskmate/internal/bus"
	"github.com/deskmate/deskmate/internal/event"
	"github.com/deskmate/deskmate/internal/metrics"
)

// Client is a registered GUI-side consumer. Implementations must never be
// trusted: every call is isolated so a panicking client cannot affect its
// siblings or the backend.
type Client interface {
	OnBackendEvent(e event.Event)
	OnServiceHealth(service string, healthy bool, details string)
	OnPerformanceMetrics(m Metrics)
	OnPerformanceWarning(message string)
}

// Metrics is the periodic performance snapshot pushed to clients. CPU and
// memory are best-effort and stay zero when process sampling is
// unavailable.
type Metrics struct {
	CPUPercent float64        `json:"cpu_percent"`
	MemoryMB   float64        `json:"memory_mb"`
	QueueSizes map[string]int `json:"queue_sizes"`
	EventRate  float64        `json:"event_rate"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Options tune the bridge's polling loops.
type Options struct {
	PollInterval    time.Duration
	CPUWarnPercent  float64
	DisableSampling bool
}

func (o *Options) fillDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.CPUWarnPercent <= 0 {
		o.CPUWarnPercent = 80
	}
}

// Bridge connects the event bus to registered GUI clients. It subscribes
// one handler to every bus queue, fans events out to clients, and runs two
// independent polling loops: service-health diffing and performance
// metrics. It implements the supervisor's Service contract and starts
// first, before any event producer.
type Bridge struct {
	bus      *bus.Bus
	healthFn func() map[string]bool
	log      *slog.Logger
	opts     Options
	sampler  *metrics.SelfSampler

	mu         sync.Mutex
	clients    map[Client]struct{}
	lastHealth map[string]bool
	lastTotal  uint64
	subIDs     map[string]int
	running    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped bridge. healthFn supplies the supervisor's current
// health map; it may be nil until SetHealthFunc is called.
func New(b *bus.Bus, healthFn func() map[string]bool, log *slog.Logger, opts Options) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	opts.fillDefaults()
	br := &Bridge{
		bus:        b,
		healthFn:   healthFn,
		log:        log.With("component", "backend_bridge"),
		opts:       opts,
		clients:    make(map[Client]struct{}),
		lastHealth: make(map[string]bool),
		subIDs:     make(map[string]int),
	}
	if !opts.DisableSampling {
		sampler, err := metrics.NewSelfSampler(0)
		if err != nil {
			br.log.Warn("Process sampling unavailable", "error", err)
		} else {
			br.sampler = sampler
		}
	}
	return br
}

// SetHealthFunc installs the supervisor health supplier after construction.
func (b *Bridge) SetHealthFunc(fn func() map[string]bool) {
	b.mu.Lock()
	b.healthFn = fn
	b.mu.Unlock()
}

// Name implements the Service contract.
func (b *Bridge) Name() string { return "event_bridge" }

// Running reports whether the polling loops are active.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Status reports client and subscription counts.
func (b *Bridge) Status() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]any{
		"clients":       len(b.clients),
		"subscriptions": len(b.subIDs),
	}
}

// Start subscribes to every bus queue and spawns the health and
// performance loops.
func (b *Bridge) Start(context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.mu.Unlock()

	for _, name := range b.bus.QueueNames() {
		q, ok := b.bus.Queue(name)
		if !ok {
			continue
		}
		id := q.Subscribe(b.onEvent)
		b.mu.Lock()
		b.subIDs[name] = id
		b.mu.Unlock()
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = cancel
	b.lastTotal = b.bus.TotalPublished()
	b.mu.Unlock()
	b.wg.Add(2)
	go b.healthLoop(loopCtx)
	go b.perfLoop(loopCtx)
	b.log.Info("Backend bridge started")
	return nil
}

// Stop cancels the loops, waits for them and unsubscribes from the bus.
func (b *Bridge) Stop(context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	cancel := b.cancel
	b.cancel = nil
	subs := b.subIDs
	b.subIDs = make(map[string]int)
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	for name, id := range subs {
		if q, ok := b.bus.Queue(name); ok {
			q.Unsubscribe(id)
		}
	}
	b.log.Info("Backend bridge stopped")
	return nil
}

// RegisterClient adds a GUI client; registering the same handle twice is a
// no-op (identity-based set).
func (b *Bridge) RegisterClient(c Client) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	n := len(b.clients)
	b.mu.Unlock()
	b.log.Info("GUI client registered", "clients", n)
}

// UnregisterClient removes a client; removing an absent one is a no-op.
func (b *Bridge) UnregisterClient(c Client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
}

// ClientCount returns the number of registered clients.
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Bridge) snapshotClients() []Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Client, 0, len(b.clients))
	for c := range b.clients {
		out = append(out, c)
	}
	return out
}

// onEvent fans one bus event out to every client, isolating failures.
func (b *Bridge) onEvent(e event.Event) {
	for _, c := range b.snapshotClients() {
		b.notify(c, func() { c.OnBackendEvent(e) })
	}
}

func (b *Bridge) notify(c Client, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("GUI client notification panicked, skipping client", "panic", r)
		}
	}()
	fn()
}

// healthLoop diffs the supervisor health map against the bridge's cached
// copy and notifies clients of changes only.
func (b *Bridge) healthLoop(ctx context.Context) {
	defer b.wg.Done()
	t := time.NewTicker(b.opts.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.pollHealth()
		}
	}
}

func (b *Bridge) pollHealth() {
	b.mu.Lock()
	fn := b.healthFn
	b.mu.Unlock()
	if fn == nil {
		return
	}
	current := fn()

	type change struct {
		service string
		healthy bool
	}
	var changes []change
	b.mu.Lock()
	for svc, healthy := range current {
		if prev, seen := b.lastHealth[svc]; !seen || prev != healthy {
			changes = append(changes, change{svc, healthy})
		}
	}
	for svc := range b.lastHealth {
		if _, still := current[svc]; !still {
			delete(b.lastHealth, svc)
		}
	}
	for _, ch := range changes {
		b.lastHealth[ch.service] = ch.healthy
	}
	b.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	clients := b.snapshotClients()
	for _, ch := range changes {
		status := "healthy"
		details := "service is running"
		if !ch.healthy {
			status = "failed"
			details = "service stopped responding"
		}
		b.log.Info("Service health changed", "service", ch.service, "status", status)
		for _, c := range clients {
			ch := ch
			b.notify(c, func() { c.OnServiceHealth(ch.service, ch.healthy, details) })
		}
	}
}

// perfLoop gathers process CPU/memory (best-effort), bus queue sizes and
// the event rate, then pushes a metrics snapshot to every client. A CPU
// reading above the warn threshold triggers an additional warning push.
func (b *Bridge) perfLoop(ctx context.Context) {
	defer b.wg.Done()
	t := time.NewTicker(b.opts.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.pollPerformance()
		}
	}
}

func (b *Bridge) pollPerformance() {
	m := Metrics{
		QueueSizes: make(map[string]int),
		Timestamp:  time.Now(),
	}
	if b.sampler != nil {
		if sample, err := b.sampler.Collect(); err == nil {
			m.CPUPercent = sample.CPUPercent
			m.MemoryMB = sample.MemoryMB
		}
	}
	for name, st := range b.bus.AllStats() {
		m.QueueSizes[name] = st.QueueSize
	}

	total := b.bus.TotalPublished()
	b.mu.Lock()
	delta := total - b.lastTotal
	b.lastTotal = total
	b.mu.Unlock()
	m.EventRate = float64(delta) / b.opts.PollInterval.Seconds()

	clients := b.snapshotClients()
	for _, c := range clients {
		c := c
		b.notify(c, func() { c.OnPerformanceMetrics(m) })
	}
	if m.CPUPercent > b.opts.CPUWarnPercent {
		b.log.Warn("High CPU usage", "cpu_percent", m.CPUPercent)
		for _, c := range clients {
			c := c
			b.notify(c, func() { c.OnPerformanceWarning("high CPU usage") })
		}
	}
}
