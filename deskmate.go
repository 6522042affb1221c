package deskmate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deskmate/deskmate/internal/audit"
	auditfactory "github.com/deskmate/deskmate/internal/audit/factory"
	"github.com/deskmate/deskmate/internal/bridge"
	"github.com/deskmate/deskmate/internal/bus"
	"github.com/deskmate/deskmate/internal/config"
	"github.com/deskmate/deskmate/internal/event"
	"github.com/deskmate/deskmate/internal/gui"
	"github.com/deskmate/deskmate/internal/metrics"
	iapi "github.com/deskmate/deskmate/internal/server"
	"github.com/deskmate/deskmate/internal/store"
	storefactory "github.com/deskmate/deskmate/internal/store/factory"
	"github.com/deskmate/deskmate/internal/supervisor"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Event = event.Event

type EventType = event.Type

type Config = config.Config

type Service = supervisor.Service

type Result = supervisor.Result

type Session = store.Session

type Settings = store.Settings

type Port = gui.Port

type NopPort = gui.NopPort

type Metrics = bridge.Metrics

// LoadConfig reads and validates a TOML config file. An empty path
// yields the defaults with DESKMATE_* environment overrides applied.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Backend wires the event bus, store, audit trail, coordinator, backend
// bridge and optional HTTP API into one embeddable unit.
type Backend struct {
	cfg    *config.Config
	log    *slog.Logger
	bus    *bus.Bus
	store  store.Store
	trail  *audit.Trail
	coord  *supervisor.Coordinator
	bridge *bridge.Bridge
	server *http.Server
	router *iapi.Router

	uiBridges  []*gui.Bridge
	stateSyncs []*gui.StateSync
}

// New builds an idle backend from the configuration. Capture, analysis,
// hotkey and automation services are supplied by the embedder through
// Register before Start.
func New(cfg *config.Config) (*Backend, error) {
	if cfg == nil {
		c := config.Default()
		cfg = &c
	}
	log := cfg.Log.NewSlogger()

	st, err := storefactory.NewFromDSN(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sinks := make([]audit.Sink, 0, len(cfg.Audit.Sinks))
	for _, dsn := range cfg.Audit.Sinks {
		sink, err := auditfactory.NewSinkFromDSN(dsn)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open audit sink %s: %w", dsn, err)
		}
		sinks = append(sinks, sink)
	}
	trail := audit.NewTrail(log, sinks...)

	b := bus.New(log)
	coord := supervisor.New(b, st, trail, log, cfg.SupervisorOptions())
	br := bridge.New(b, coord.Health, log, cfg.BridgeOptions())
	if err := coord.Register(br); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &Backend{
		cfg:    cfg,
		log:    log,
		bus:    b,
		store:  st,
		trail:  trail,
		coord:  coord,
		bridge: br,
	}, nil
}

// Register adds a backend service. Services start in registration order
// and stop in reverse; the event bridge is always registered first.
func (d *Backend) Register(svc Service) error { return d.coord.Register(svc) }

// AttachUI connects a UI port: backend events flow to it through a
// throttled delivery bridge and a periodic state sync loop. Call before
// Start. The returned bridge exposes delivery stats.
func (d *Backend) AttachUI(port Port) *gui.Bridge {
	ub := gui.NewBridge(port, d.log, d.cfg.UIOptions())
	sync := gui.NewStateSync(port, d.coord.BackendState, d.cfg.UI.SyncInterval, d.log)
	d.bridge.RegisterClient(ub)
	d.uiBridges = append(d.uiBridges, ub)
	d.stateSyncs = append(d.stateSyncs, sync)
	d.coord.SetRefreshFunc(d.refreshUI)
	return ub
}

// refreshUI pushes storage stats and the session list on heavy ticks.
func (d *Backend) refreshUI(heavy bool) {
	if !heavy {
		return
	}
	ctx := context.Background()
	if res := d.coord.Dispatch(ctx, "get_storage_stats", nil); res.Success {
		stats := res.Result
		for _, ub := range d.uiBridges {
			ub.Call(func(p Port) { p.UpdateStorageStats(stats) })
		}
	}
	if res := d.coord.Dispatch(ctx, "get_sessions", nil); res.Success {
		sessions, _ := res.Result["sessions"].([]map[string]any)
		for _, ub := range d.uiBridges {
			ub.Call(func(p Port) { p.UpdateSessionsList(sessions) })
		}
	}
}

// Start brings up the store schema, the coordinator with all registered
// services, every attached UI pipeline and, when enabled, the HTTP API.
func (d *Backend) Start(ctx context.Context) error {
	if err := d.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("store schema: %w", err)
	}
	d.seedSettings(ctx)

	for _, ub := range d.uiBridges {
		ub.Start()
	}
	if err := d.coord.Start(ctx); err != nil {
		for _, ub := range d.uiBridges {
			ub.Stop()
		}
		return err
	}
	for _, sync := range d.stateSyncs {
		sync.Start()
	}

	if d.cfg.Server.Enabled {
		d.server, d.router = iapi.NewServer(d.cfg.Server.Listen, d.cfg.Server.BasePath, d.coord, d.bus, d.log)
		d.bridge.RegisterClient(d.router.Hub())
		d.log.Info("HTTP API listening", "addr", d.cfg.Server.Listen, "base_path", d.cfg.Server.BasePath)
	}
	return nil
}

// seedSettings writes the configured defaults once, before the user has
// customized anything. Stored settings that differ from the built-in
// defaults are left alone.
func (d *Backend) seedSettings(ctx context.Context) {
	if d.cfg.Settings == (config.SettingsConfig{}) {
		return
	}
	current, err := d.store.GetSettings(ctx)
	if err != nil || current != store.DefaultSettings() {
		return
	}
	if err := d.store.UpdateSettings(ctx, d.cfg.SeedSettings()); err != nil {
		d.log.Warn("Seeding settings failed", "error", err)
	}
}

// Stop tears everything down in reverse order of Start and closes the
// store and the audit sinks. The coordinator alone can be stopped and
// restarted through the dispatcher; Stop is final for this Backend.
func (d *Backend) Stop(ctx context.Context) error {
	if d.server != nil {
		d.bridge.UnregisterClient(d.router.Hub())
		d.router.Hub().Close()
		_ = d.server.Shutdown(ctx)
		d.server = nil
		d.router = nil
	}
	for _, sync := range d.stateSyncs {
		sync.Stop()
	}
	err := d.coord.Stop(ctx)
	for _, ub := range d.uiBridges {
		d.bridge.UnregisterClient(ub)
		ub.Stop()
	}
	if cerr := d.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := d.trail.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// APIHandler returns the HTTP API as a mountable handler for embedders
// that run their own server instead of enabling the built-in one. The
// handler's websocket hub receives backend pushes until Stop.
func (d *Backend) APIHandler(basePath string) http.Handler {
	r := iapi.NewRouter(d.coord, d.bus, basePath, d.log)
	d.bridge.RegisterClient(r.Hub())
	return r.Handler()
}

// Dispatch routes an external command by name, exactly as the HTTP API
// does.
func (d *Backend) Dispatch(ctx context.Context, command string, params map[string]any) Result {
	return d.coord.Dispatch(ctx, command, params)
}

// WaitForShutdown blocks until Stop completes or the context is done.
func (d *Backend) WaitForShutdown(ctx context.Context) error {
	return d.coord.WaitForShutdown(ctx)
}

// Bus exposes the event bus for embedders that publish their own events.
func (d *Backend) Bus() *bus.Bus { return d.bus }

// Health returns the current per-service health map.
func (d *Backend) Health() map[string]bool { return d.coord.Health() }

// Status returns the coordinator status document.
func (d *Backend) Status() map[string]any { return d.coord.Status() }

// Publish puts an event on the bus, routed by its type.
func (d *Backend) Publish(e Event) bool { return d.bus.Publish(e) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }
