package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deskmate/deskmate/internal/bus"
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

type recordingClient struct {
	mu       sync.Mutex
	events   []event.Event
	health   []string
	metrics  []Metrics
	warnings []string
	panicOn  bool
}

func (r *recordingClient) OnBackendEvent(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicOn {
		panic("client exploded")
	}
	r.events = append(r.events, e)
}

func (r *recordingClient) OnServiceHealth(service string, healthy bool, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := "up"
	if !healthy {
		state = "down"
	}
	r.health = append(r.health, service+":"+state)
}

func (r *recordingClient) OnPerformanceMetrics(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

func (r *recordingClient) OnPerformanceWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

func (r *recordingClient) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingClient) healthChanges() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.health...)
}

func (r *recordingClient) metricsCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.metrics)
}

func testBridge(t *testing.T, healthFn func() map[string]bool) (*Bridge, *bus.Bus) {
	t.Helper()
	b := bus.New(nil)
	br := New(b, healthFn, nil, Options{
		PollInterval:    20 * time.Millisecond,
		DisableSampling: true,
	})
	if err := br.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = br.Stop(context.Background()) })
	return br, b
}

func TestEventFanOutToClients(t *testing.T) {
	br, b := testBridge(t, nil)
	c1 := &recordingClient{}
	c2 := &recordingClient{}
	br.RegisterClient(c1)
	br.RegisterClient(c2)

	b.Publish(event.New(event.ActionDetected, "analyzer", map[string]any{"action_type": "click"}))

	if !waitUntil(time.Second, time.Millisecond, func() bool {
		return c1.eventCount() == 1 && c2.eventCount() == 1
	}) {
		t.Fatalf("fan-out incomplete: %d/%d", c1.eventCount(), c2.eventCount())
	}
}

func TestPanickingClientIsIsolated(t *testing.T) {
	br, b := testBridge(t, nil)
	bad := &recordingClient{panicOn: true}
	good := &recordingClient{}
	br.RegisterClient(bad)
	br.RegisterClient(good)

	b.Publish(event.New(event.PatternDetected, "analyzer", map[string]any{"pattern_id": "p1"}))

	if !waitUntil(time.Second, time.Millisecond, func() bool {
		return good.eventCount() == 1
	}) {
		t.Fatal("healthy client must still receive the event")
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	br, _ := testBridge(t, nil)
	c := &recordingClient{}
	br.RegisterClient(c)
	br.RegisterClient(c)
	if br.ClientCount() != 1 {
		t.Fatalf("clients = %d, want 1", br.ClientCount())
	}
	br.UnregisterClient(c)
	br.UnregisterClient(c) // absent remove is a no-op
	if br.ClientCount() != 0 {
		t.Fatalf("clients = %d, want 0", br.ClientCount())
	}
}

func TestHealthLoopPushesOnlyChanges(t *testing.T) {
	var mu sync.Mutex
	health := map[string]bool{"screen_capture": true}
	br, _ := testBridge(t, func() map[string]bool {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[string]bool, len(health))
		for k, v := range health {
			out[k] = v
		}
		return out
	})
	c := &recordingClient{}
	br.RegisterClient(c)

	// first observation is a change from the empty cache
	if !waitUntil(time.Second, time.Millisecond, func() bool {
		return len(c.healthChanges()) == 1
	}) {
		t.Fatalf("initial health push missing: %v", c.healthChanges())
	}

	// several unchanged cycles must not re-send
	time.Sleep(100 * time.Millisecond)
	if got := c.healthChanges(); len(got) != 1 {
		t.Fatalf("unchanged health re-sent: %v", got)
	}

	mu.Lock()
	health["screen_capture"] = false
	mu.Unlock()
	if !waitUntil(time.Second, time.Millisecond, func() bool {
		changes := c.healthChanges()
		return len(changes) == 2 && changes[1] == "screen_capture:down"
	}) {
		t.Fatalf("health change not pushed: %v", c.healthChanges())
	}
}

func TestPerfLoopPushesMetricsAndRate(t *testing.T) {
	br, b := testBridge(t, nil)
	c := &recordingClient{}
	br.RegisterClient(c)

	for i := 0; i < 4; i++ {
		b.Publish(event.New(event.ActionDetected, "analyzer", map[string]any{"action_type": "key"}))
	}

	if !waitUntil(time.Second, time.Millisecond, func() bool {
		return c.metricsCount() >= 1
	}) {
		t.Fatal("no metrics pushed")
	}
	c.mu.Lock()
	first := c.metrics[0]
	c.mu.Unlock()
	if first.QueueSizes == nil {
		t.Fatal("metrics must carry queue sizes")
	}
	// 4 events in one 20ms window: rate = 4 / 0.02 = 200/s
	if first.EventRate <= 0 {
		t.Fatalf("event rate = %v, want > 0", first.EventRate)
	}
}

func TestStopCancelsLoopsAndUnsubscribes(t *testing.T) {
	b := bus.New(nil)
	br := New(b, nil, nil, Options{PollInterval: 10 * time.Millisecond, DisableSampling: true})
	if err := br.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	c := &recordingClient{}
	br.RegisterClient(c)
	if err := br.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if br.Running() {
		t.Fatal("bridge still reports running after stop")
	}

	// events published after stop must not reach clients
	b.Publish(event.New(event.ActionDetected, "analyzer", map[string]any{"action_type": "click"}))
	time.Sleep(50 * time.Millisecond)
	if c.eventCount() != 0 {
		t.Fatalf("client received %d events after stop", c.eventCount())
	}
}
