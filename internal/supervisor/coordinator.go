package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskmate/deskmate/internal/audit"
	"github.com/deskmate/deskmate/internal/bus"
	"github.com/deskmate/deskmate/internal/event"
	"github.com/deskmate/deskmate/internal/metrics"
	"github.com/deskmate/deskmate/internal/store"
)

// State is the coordinator lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateRunning      State = "running"
	StateShuttingDown State = "shutting_down"
	StateStopped      State = "stopped"
)

// Options tune the coordinator loops and restart policy. Zero values fall
// back to the defaults below.
type Options struct {
	MaxRestarts     int
	HealthInterval  time.Duration
	RefreshInterval time.Duration
	HeavyEveryTicks int
	// Cooldowns is the per-service wait between stop and start during a
	// restart; DefaultCooldown applies to services not listed.
	Cooldowns       map[string]time.Duration
	DefaultCooldown time.Duration
}

func (o *Options) fillDefaults() {
	if o.MaxRestarts <= 0 {
		o.MaxRestarts = 3
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 10 * time.Second
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 5 * time.Second
	}
	if o.HeavyEveryTicks <= 0 {
		o.HeavyEveryTicks = 6
	}
	if o.DefaultCooldown <= 0 {
		o.DefaultCooldown = time.Second
	}
	if o.Cooldowns == nil {
		o.Cooldowns = map[string]time.Duration{
			ServiceScreenCapture: 2 * time.Second,
			ServiceHotkeys:       time.Second,
		}
	}
}

// RefreshFunc is invoked by the periodic UI push loop. heavy marks the
// slower cycle that refreshes storage stats and the session list.
type RefreshFunc func(heavy bool)

// Coordinator owns the backend service lifecycle: dependency-ordered
// start/stop, periodic health checks with capped restarts, the periodic UI
// refresh ticks and the command dispatcher. One coordinator exists per
// process; it is constructed at startup and stopped exactly once.
type Coordinator struct {
	bus   *bus.Bus
	st    store.Store
	trail *audit.Trail
	log   *slog.Logger
	opts  Options

	mu            sync.Mutex
	state         State
	services      []Service
	byName        map[string]Service
	health        map[string]bool
	restartCounts map[string]int
	sessionID     string
	sessionStart  time.Time
	paused        bool
	frames        int64
	actions       int64
	patterns      int64
	refreshFn     RefreshFunc
	busSubID      int

	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup

	// shutdownCh is closed by Stop and re-armed by the next Start, so a
	// stop/start cycle leaves WaitForShutdown blocking again.
	shutdownCh chan struct{}
}

// New creates an idle coordinator. Services must be registered before
// Start; trail may be nil when auditing is disabled.
func New(b *bus.Bus, st store.Store, trail *audit.Trail, log *slog.Logger, opts Options) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if trail == nil {
		trail = audit.NewTrail(log)
	}
	opts.fillDefaults()
	return &Coordinator{
		bus:           b,
		st:            st,
		trail:         trail,
		log:           log.With("component", "coordinator"),
		opts:          opts,
		state:         StateIdle,
		byName:        make(map[string]Service),
		health:        make(map[string]bool),
		restartCounts: make(map[string]int),
		shutdownCh:    make(chan struct{}),
	}
}

// Register appends a service; registration order is start order and the
// reverse is stop order. Registering after Start is rejected.
func (c *Coordinator) Register(svc Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("register %s: %w", svc.Name(), ErrAlreadyRunning)
	}
	if _, ok := c.byName[svc.Name()]; ok {
		return fmt.Errorf("register %s: duplicate service name", svc.Name())
	}
	c.services = append(c.services, svc)
	c.byName[svc.Name()] = svc
	return nil
}

// SetRefreshFunc installs the periodic UI push callback. The GUI layer sets
// this before Start; a nil callback disables the refresh loop's work.
func (c *Coordinator) SetRefreshFunc(fn RefreshFunc) {
	c.mu.Lock()
	c.refreshFn = fn
	c.mu.Unlock()
}

// State returns the current coordinator state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the current session id, empty when not running.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start initializes storage, opens a new session and starts every
// registered service in order. Any start failure rolls the whole sequence
// back via Stop and returns the original error.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.state = StateRunning
	c.paused = false
	c.frames, c.actions, c.patterns = 0, 0, 0
	c.shutdownCh = make(chan struct{})
	c.mu.Unlock()

	if err := c.openSession(ctx); err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		metrics.SetCoordinatorState(string(StateIdle), true)
		metrics.SetCoordinatorState(string(StateRunning), false)
		metrics.SetCoordinatorState(string(StateStopped), false)
		return err
	}
	metrics.SetCoordinatorState(string(StateRunning), true)
	metrics.SetCoordinatorState(string(StateIdle), false)
	metrics.SetCoordinatorState(string(StateStopped), false)

	// Count activity flowing through the bus for the session record and
	// the state snapshot.
	c.busSubID = c.bus.SubscribeGlobal(c.onBusEvent)

	for _, svc := range c.services {
		c.log.Info("Starting service", "service", svc.Name())
		if err := svc.Start(ctx); err != nil {
			c.log.Error("Service failed to start, rolling back", "service", svc.Name(), "error", err)
			c.trail.Record(ctx, audit.Record{Kind: audit.KindServiceError, Service: svc.Name(), Detail: err.Error()})
			_ = c.Stop(ctx)
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		c.setHealth(svc.Name(), true)
		c.publishServiceEvent(event.ServiceStarted, svc.Name())
		c.trail.Record(ctx, audit.Record{Kind: audit.KindServiceStart, Service: svc.Name()})
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.loopCancel = cancel
	c.mu.Unlock()
	c.loopWG.Add(2)
	go c.healthLoop(loopCtx)
	go c.refreshLoop(loopCtx)

	c.log.Info("Coordinator started", "services", len(c.services), "session", c.SessionID())
	return nil
}

// Stop shuts services down in reverse order, finalizes the session and
// releases WaitForShutdown. Each service stop is isolated so one failure
// cannot block the rest. Stop is idempotent.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateStopped || c.state == StateShuttingDown {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.state = StateShuttingDown
	cancel := c.loopCancel
	c.loopCancel = nil
	subID := c.busSubID
	c.busSubID = 0
	c.mu.Unlock()
	metrics.SetCoordinatorState(string(StateShuttingDown), true)
	metrics.SetCoordinatorState(string(StateRunning), false)

	if cancel != nil {
		cancel()
	}
	c.loopWG.Wait()
	if subID != 0 {
		c.bus.UnsubscribeGlobal(subID)
	}

	for i := len(c.services) - 1; i >= 0; i-- {
		svc := c.services[i]
		c.log.Info("Stopping service", "service", svc.Name())
		if err := svc.Stop(ctx); err != nil {
			c.log.Error("Service stop failed, continuing shutdown", "service", svc.Name(), "error", err)
			c.trail.Record(ctx, audit.Record{Kind: audit.KindServiceError, Service: svc.Name(), Detail: err.Error()})
		} else {
			c.publishServiceEvent(event.ServiceStopped, svc.Name())
			c.trail.Record(ctx, audit.Record{Kind: audit.KindServiceStop, Service: svc.Name()})
		}
	}

	c.closeSession(ctx)
	c.bus.Publish(event.New(event.ApplicationShutdown, "coordinator", nil))

	c.mu.Lock()
	c.state = StateStopped
	close(c.shutdownCh)
	c.mu.Unlock()
	metrics.SetCoordinatorState(string(StateStopped), true)
	metrics.SetCoordinatorState(string(StateShuttingDown), false)

	c.log.Info("Coordinator stopped")
	return nil
}

// WaitForShutdown blocks until the current run's Stop completes or ctx is
// done. This is the one intentional unbounded wait in the backend.
func (c *Coordinator) WaitForShutdown(ctx context.Context) error {
	c.mu.Lock()
	ch := c.shutdownCh
	c.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause suspends every pausable service and marks the session paused.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.paused = true
	c.mu.Unlock()
	for _, svc := range c.services {
		if p, ok := svc.(Pauser); ok {
			if err := p.Pause(); err != nil {
				c.log.Warn("Pause failed", "service", svc.Name(), "error", err)
			}
		}
	}
	c.bus.Publish(event.New(event.CapturePaused, "coordinator", nil))
	return nil
}

// Resume restarts paused work.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.paused = false
	c.mu.Unlock()
	for _, svc := range c.services {
		if p, ok := svc.(Pauser); ok {
			if err := p.Resume(); err != nil {
				c.log.Warn("Resume failed", "service", svc.Name(), "error", err)
			}
		}
	}
	c.bus.Publish(event.New(event.CaptureResumed, "coordinator", nil))
	return nil
}

// EmergencyStop forwards to the automation executor regardless of state.
// A missing executor is a logged no-op.
func (c *Coordinator) EmergencyStop() error {
	exec := c.automation()
	if exec == nil {
		c.log.Warn("Emergency stop requested with no automation executor")
		return nil
	}
	return exec.EmergencyStop()
}

// Health returns a copy of the service health map.
func (c *Coordinator) Health() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.health))
	for k, v := range c.health {
		out[k] = v
	}
	return out
}

// RestartCounts returns a copy of the per-service restart counters.
func (c *Coordinator) RestartCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.restartCounts))
	for k, v := range c.restartCounts {
		out[k] = v
	}
	return out
}

// BackendState returns the flat snapshot polled by the state sync loop.
func (c *Coordinator) BackendState() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	health := make(map[string]bool, len(c.health))
	for k, v := range c.health {
		health[k] = v
	}
	state := map[string]any{
		"is_recording":    c.state == StateRunning,
		"is_paused":       c.paused,
		"session_id":      c.sessionID,
		"service_health":  health,
		"frames_captured": c.frames,
	}
	if !c.sessionStart.IsZero() {
		state["session_start_time"] = c.sessionStart.Format(time.RFC3339)
	}
	return state
}

// Status reports the coordinator state plus each service's own status map.
func (c *Coordinator) Status() map[string]any {
	c.mu.Lock()
	state := c.state
	session := c.sessionID
	paused := c.paused
	c.mu.Unlock()

	services := make(map[string]any, len(c.services))
	for _, svc := range c.services {
		st := svc.Status()
		if st == nil {
			st = map[string]any{}
		}
		st["running"] = svc.Running()
		services[svc.Name()] = st
	}
	return map[string]any{
		"state":      string(state),
		"session_id": session,
		"is_paused":  paused,
		"services":   services,
	}
}

func (c *Coordinator) onBusEvent(e event.Event) {
	c.mu.Lock()
	switch e.Type {
	case event.ScreenshotCaptured, event.VideoSegmentComplete:
		c.frames++
	case event.ActionDetected:
		c.actions++
	case event.PatternDetected, event.WorkflowSuggestionGenerated:
		c.patterns++
	}
	c.mu.Unlock()
}

func (c *Coordinator) openSession(ctx context.Context) error {
	id := uuid.NewString()
	start := time.Now().UTC()
	if c.st != nil {
		if err := c.st.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		if err := c.st.CreateSession(ctx, store.Session{ID: id, StartTime: start, Status: store.StatusActive}); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}
	c.mu.Lock()
	c.sessionID = id
	c.sessionStart = start
	c.mu.Unlock()

	if e, err := event.NewSessionEvent(event.SessionCreated, "coordinator", id, nil); err == nil {
		c.bus.Publish(e)
	}
	c.trail.Record(ctx, audit.Record{Kind: audit.KindSessionCreated, SessionID: id})
	return nil
}

func (c *Coordinator) closeSession(ctx context.Context) {
	c.mu.Lock()
	id := c.sessionID
	actions := int(c.actions)
	patterns := int(c.patterns)
	c.sessionID = ""
	c.sessionStart = time.Time{}
	c.mu.Unlock()
	if id == "" {
		return
	}
	if c.st != nil {
		if err := c.st.FinalizeSession(ctx, id, time.Now().UTC(), store.StatusCompleted, actions, patterns); err != nil {
			c.log.Error("Session finalize failed", "session", id, "error", err)
		}
	}
	if e, err := event.NewSessionEvent(event.SessionCompleted, "coordinator", id, map[string]any{
		"actions_count":  actions,
		"patterns_count": patterns,
	}); err == nil {
		c.bus.Publish(e)
	}
	c.trail.Record(ctx, audit.Record{Kind: audit.KindSessionCompleted, SessionID: id})
}

func (c *Coordinator) publishServiceEvent(t event.Type, name string) {
	if e, err := event.NewServiceEvent(t, "coordinator", name, nil); err == nil {
		c.bus.Publish(e)
	}
}

func (c *Coordinator) setHealth(name string, healthy bool) {
	c.mu.Lock()
	c.health[name] = healthy
	c.mu.Unlock()
	metrics.SetServiceHealthy(name, healthy)
}

func (c *Coordinator) automation() AutomationExecutor {
	for _, svc := range c.services {
		if exec, ok := svc.(AutomationExecutor); ok {
			return exec
		}
	}
	return nil
}

func (c *Coordinator) hotkeys() HotkeyService {
	for _, svc := range c.services {
		if hk, ok := svc.(HotkeyService); ok {
			return hk
		}
	}
	return nil
}

// refreshLoop drives the periodic UI push. Every HeavyEveryTicks-th tick is
// the heavy refresh that also pushes storage stats and the session list.
func (c *Coordinator) refreshLoop(ctx context.Context) {
	defer c.loopWG.Done()
	t := time.NewTicker(c.opts.RefreshInterval)
	defer t.Stop()
	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick++
			c.mu.Lock()
			fn := c.refreshFn
			c.mu.Unlock()
			if fn == nil {
				continue
			}
			heavy := tick%c.opts.HeavyEveryTicks == 0
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.log.Error("UI refresh panicked", "panic", r)
					}
				}()
				fn(heavy)
			}()
		}
	}
}
