package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/deskmate/deskmate/internal/bridge"
	"github.com/deskmate/deskmate/internal/gui"
	"github.com/deskmate/deskmate/internal/logger"
	"github.com/deskmate/deskmate/internal/store"
	"github.com/deskmate/deskmate/internal/supervisor"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// DESKMATE_SERVER_LISTEN overrides server.listen.
const EnvPrefix = "DESKMATE"

// Settings value ranges enforced at load time and again when the
// dispatcher applies an update.
const (
	MinScreenshotInterval = 1
	MaxScreenshotInterval = 60
	MinSampleRate         = 8000
	MaxSampleRate         = 48000
	MinStorageGB          = 1
	MaxStorageGB          = 1000
)

// Config is the top-level TOML structure.
type Config struct {
	Log        logger.Config    `toml:"log" mapstructure:"log"`
	Store      StoreConfig      `toml:"store" mapstructure:"store"`
	Audit      AuditConfig      `toml:"audit" mapstructure:"audit"`
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	Bus        BusConfig        `toml:"bus" mapstructure:"bus"`
	Supervisor SupervisorConfig `toml:"supervisor" mapstructure:"supervisor"`
	Bridge     BridgeConfig     `toml:"bridge" mapstructure:"bridge"`
	UI         UIConfig         `toml:"ui" mapstructure:"ui"`
	Settings   SettingsConfig   `toml:"settings" mapstructure:"settings"`
}

// StoreConfig selects the session/settings store backend.
// DSN accepts postgres://, sqlite://<path>, or a bare sqlite path.
type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// AuditConfig lists the audit sink DSNs (sqlite://, postgres://,
// clickhouse://). Empty means auditing is disabled.
type AuditConfig struct {
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

type ServerConfig struct {
	Enabled      bool          `toml:"enabled" mapstructure:"enabled"`
	Listen       string        `toml:"listen" mapstructure:"listen"`
	BasePath     string        `toml:"base_path" mapstructure:"base_path"`
	ReadTimeout  time.Duration `toml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout" mapstructure:"write_timeout"`
}

type BusConfig struct {
	QueueSize   int `toml:"queue_size" mapstructure:"queue_size"`
	HistorySize int `toml:"history_size" mapstructure:"history_size"`
}

type SupervisorConfig struct {
	MaxRestarts     int                      `toml:"max_restarts" mapstructure:"max_restarts"`
	HealthInterval  time.Duration            `toml:"health_interval" mapstructure:"health_interval"`
	RefreshInterval time.Duration            `toml:"refresh_interval" mapstructure:"refresh_interval"`
	HeavyEveryTicks int                      `toml:"heavy_every_ticks" mapstructure:"heavy_every_ticks"`
	DefaultCooldown time.Duration            `toml:"default_cooldown" mapstructure:"default_cooldown"`
	Cooldowns       map[string]time.Duration `toml:"cooldowns" mapstructure:"cooldowns"`
}

type BridgeConfig struct {
	PollInterval    time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	CPUWarnPercent  float64       `toml:"cpu_warn_percent" mapstructure:"cpu_warn_percent"`
	DisableSampling bool          `toml:"disable_sampling" mapstructure:"disable_sampling"`
}

type UIConfig struct {
	Throttle     time.Duration `toml:"throttle" mapstructure:"throttle"`
	QueueSize    int           `toml:"queue_size" mapstructure:"queue_size"`
	DrainTick    time.Duration `toml:"drain_tick" mapstructure:"drain_tick"`
	SyncInterval time.Duration `toml:"sync_interval" mapstructure:"sync_interval"`
}

// SettingsConfig seeds the persisted user settings when the store has
// none yet. Zero fields fall back to store.DefaultSettings.
type SettingsConfig struct {
	ScreenshotInterval int `toml:"screenshot_interval" mapstructure:"screenshot_interval"`
	SampleRate         int `toml:"sample_rate" mapstructure:"sample_rate"`
	MaxStorageGB       int `toml:"max_storage_gb" mapstructure:"max_storage_gb"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store:  StoreConfig{DSN: "deskmate.db"},
		Server: ServerConfig{Listen: "127.0.0.1:8080", BasePath: "/api"},
	}
}

// Load reads a TOML config file, applies DESKMATE_* environment
// overrides and validates the result. An empty path yields Default()
// with env overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindKeys(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindKeys registers every key with viper so AutomaticEnv can override
// keys that are absent from the file.
func bindKeys(v *viper.Viper) {
	for _, key := range []string{
		"store.dsn",
		"server.enabled", "server.listen", "server.base_path",
		"server.read_timeout", "server.write_timeout",
		"bus.queue_size", "bus.history_size",
		"supervisor.max_restarts", "supervisor.health_interval",
		"supervisor.refresh_interval", "supervisor.heavy_every_ticks",
		"supervisor.default_cooldown",
		"bridge.poll_interval", "bridge.cpu_warn_percent",
		"bridge.disable_sampling",
		"ui.throttle", "ui.queue_size", "ui.drain_tick", "ui.sync_interval",
		"settings.screenshot_interval", "settings.sample_rate",
		"settings.max_storage_gb",
		"log.slog.level", "log.slog.format", "log.slog.color",
		"log.file.path", "log.file.dir",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate rejects out-of-range values. Zero values are allowed
// everywhere a component has its own default.
func (c *Config) Validate() error {
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required when the server is enabled")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /: %q", c.Server.BasePath)
	}
	if c.Bus.QueueSize < 0 || c.Bus.HistorySize < 0 {
		return fmt.Errorf("bus sizes must not be negative")
	}
	if c.Supervisor.MaxRestarts < 0 {
		return fmt.Errorf("supervisor.max_restarts must not be negative")
	}
	if c.Bridge.CPUWarnPercent < 0 || c.Bridge.CPUWarnPercent > 100 {
		return fmt.Errorf("bridge.cpu_warn_percent must be between 0 and 100, got %v", c.Bridge.CPUWarnPercent)
	}
	if c.UI.QueueSize < 0 {
		return fmt.Errorf("ui.queue_size must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":         c.Server.ReadTimeout,
		"server.write_timeout":        c.Server.WriteTimeout,
		"supervisor.health_interval":  c.Supervisor.HealthInterval,
		"supervisor.refresh_interval": c.Supervisor.RefreshInterval,
		"supervisor.default_cooldown": c.Supervisor.DefaultCooldown,
		"bridge.poll_interval":        c.Bridge.PollInterval,
		"ui.throttle":                 c.UI.Throttle,
		"ui.drain_tick":               c.UI.DrainTick,
		"ui.sync_interval":            c.UI.SyncInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return c.validateSettings()
}

func (c *Config) validateSettings() error {
	s := c.Settings
	if s.ScreenshotInterval != 0 && (s.ScreenshotInterval < MinScreenshotInterval || s.ScreenshotInterval > MaxScreenshotInterval) {
		return fmt.Errorf("settings.screenshot_interval must be between %d and %d, got %d",
			MinScreenshotInterval, MaxScreenshotInterval, s.ScreenshotInterval)
	}
	if s.SampleRate != 0 && (s.SampleRate < MinSampleRate || s.SampleRate > MaxSampleRate) {
		return fmt.Errorf("settings.sample_rate must be between %d and %d, got %d",
			MinSampleRate, MaxSampleRate, s.SampleRate)
	}
	if s.MaxStorageGB != 0 && (s.MaxStorageGB < MinStorageGB || s.MaxStorageGB > MaxStorageGB) {
		return fmt.Errorf("settings.max_storage_gb must be between %d and %d, got %d",
			MinStorageGB, MaxStorageGB, s.MaxStorageGB)
	}
	return nil
}

// SupervisorOptions converts the section to coordinator options.
func (c *Config) SupervisorOptions() supervisor.Options {
	return supervisor.Options{
		MaxRestarts:     c.Supervisor.MaxRestarts,
		HealthInterval:  c.Supervisor.HealthInterval,
		RefreshInterval: c.Supervisor.RefreshInterval,
		HeavyEveryTicks: c.Supervisor.HeavyEveryTicks,
		Cooldowns:       c.Supervisor.Cooldowns,
		DefaultCooldown: c.Supervisor.DefaultCooldown,
	}
}

// BridgeOptions converts the section to backend bridge options.
func (c *Config) BridgeOptions() bridge.Options {
	return bridge.Options{
		PollInterval:    c.Bridge.PollInterval,
		CPUWarnPercent:  c.Bridge.CPUWarnPercent,
		DisableSampling: c.Bridge.DisableSampling,
	}
}

// UIOptions converts the section to UI delivery bridge options.
func (c *Config) UIOptions() gui.Options {
	return gui.Options{
		Throttle:  c.UI.Throttle,
		QueueSize: c.UI.QueueSize,
		DrainTick: c.UI.DrainTick,
	}
}

// SeedSettings returns the initial persisted settings, falling back to
// the store defaults field by field.
func (c *Config) SeedSettings() store.Settings {
	s := store.DefaultSettings()
	if c.Settings.ScreenshotInterval != 0 {
		s.ScreenshotInterval = c.Settings.ScreenshotInterval
	}
	if c.Settings.SampleRate != 0 {
		s.SampleRate = c.Settings.SampleRate
	}
	if c.Settings.MaxStorageGB != 0 {
		s.MaxStorageGB = c.Settings.MaxStorageGB
	}
	return s
}
