package deskmate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deskmate/deskmate/internal/config"
	"github.com/deskmate/deskmate/internal/event"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.DSN = ":memory:"
	cfg.Supervisor.HealthInterval = 20 * time.Millisecond
	cfg.Supervisor.RefreshInterval = 10 * time.Millisecond
	cfg.Supervisor.HeavyEveryTicks = 2
	cfg.Bridge.PollInterval = 20 * time.Millisecond
	cfg.Bridge.DisableSampling = true
	cfg.UI.Throttle = time.Nanosecond
	cfg.UI.DrainTick = 5 * time.Millisecond
	cfg.UI.SyncInterval = 10 * time.Millisecond
	return &cfg
}

// captureService is a minimal registered service.
type captureService struct {
	mu      sync.Mutex
	name    string
	running bool
}

func (s *captureService) Name() string { return s.name }

func (s *captureService) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

func (s *captureService) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *captureService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *captureService) Status() map[string]any { return map[string]any{} }

func waitFor(t *testing.T, what string, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBackendLifecycle(t *testing.T) {
	backend, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	svc := &captureService{name: "screen_capture"}
	if err := backend.Register(svc); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	if err := backend.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !svc.Running() {
		t.Fatal("registered service must be running")
	}
	health := backend.Health()
	if !health["screen_capture"] || !health["event_bridge"] {
		t.Fatalf("health = %v", health)
	}
	if state := backend.Status()["state"]; state != "running" {
		t.Fatalf("state = %v", state)
	}

	res := backend.Dispatch(ctx, "get_settings", nil)
	if !res.Success {
		t.Fatalf("get_settings: %s", res.Error)
	}

	if err := backend.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if svc.Running() {
		t.Fatal("service must be stopped")
	}
}

func TestBackendDeliversEventsToUI(t *testing.T) {
	backend, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var mu sync.Mutex
	var frames int64
	var storagePushes, sessionPushes int
	port := &countingPort{
		onFrames:   func(n int64) { mu.Lock(); frames = n; mu.Unlock() },
		onStorage:  func() { mu.Lock(); storagePushes++; mu.Unlock() },
		onSessions: func() { mu.Lock(); sessionPushes++; mu.Unlock() },
	}
	ub := backend.AttachUI(port)

	ctx := context.Background()
	if err := backend.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = backend.Stop(ctx) }()

	backend.Publish(event.NewScreenshotCaptured("screen_capture", "/tmp/s.png", 10, time.Now()))

	waitFor(t, "frame delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames >= 1
	})
	waitFor(t, "heavy refresh pushes", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return storagePushes >= 1 && sessionPushes >= 1
	})
	if st := ub.Stats(); st.EventsProcessed == 0 {
		t.Fatalf("bridge stats = %+v", st)
	}
}

// countingPort routes selected updates to callbacks.
type countingPort struct {
	NopPort
	onFrames   func(int64)
	onStorage  func()
	onSessions func()
}

func (p *countingPort) UpdateFrameCount(n int64) { p.onFrames(n) }

func (p *countingPort) UpdateStorageStats(map[string]any) { p.onStorage() }

func (p *countingPort) UpdateSessionsList([]map[string]any) { p.onSessions() }

func TestBackendHTTPServer(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Enabled = true
	cfg.Server.Listen = "127.0.0.1:0"

	backend, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := backend.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := backend.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
