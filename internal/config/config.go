// Package config loads and validates progressrun configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/engine"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Display DisplayConfig `mapstructure:"display"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Hub     HubConfig     `mapstructure:"hub"`
	Store   StoreConfig   `mapstructure:"store"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Render  RenderConfig  `mapstructure:"render"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// DisplayConfig seeds the engine's display preferences.
type DisplayConfig struct {
	Counts           bool   `mapstructure:"counts"`
	TimeEstimates    bool   `mapstructure:"time_estimates"`
	EstimateDelayMs  int    `mapstructure:"estimate_delay_ms"`
	RenderIntervalMs int    `mapstructure:"render_interval_ms"`
	Title            string `mapstructure:"title"`
}

// LoggingConfig toggles zap development features. File redirects logs away
// from the terminal, which the tui render surface owns while a run is active.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
}

// ServerConfig controls the observer HTTP API.
type ServerConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	Port                  int    `mapstructure:"port"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// HubConfig tunes event batching between the engine and its sinks.
type HubConfig struct {
	BufferSize         int `mapstructure:"buffer_size"`
	MaxBatchEvents     int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs     int `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSeconds int `mapstructure:"sink_timeout_seconds"`
}

// StoreConfig selects the run-history backend.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
	MaxConns   int    `mapstructure:"max_conns"`
}

// ArchiveConfig selects where run summaries are written.
type ArchiveConfig struct {
	Driver    string `mapstructure:"driver"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for outcome notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RenderConfig picks the render surface.
type RenderConfig struct {
	Mode  string `mapstructure:"mode"`
	Width int    `mapstructure:"width"`
}

// FetchConfig configures the URL fetch workload.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxDepth       int     `mapstructure:"max_depth"`
	MaxPages       int     `mapstructure:"max_pages"`
	// RateLimitRPS paces requests per host; 0 disables pacing.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// TracingConfig enables run and fetch spans, exported to the log.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Supported driver and mode names.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"

	RenderTUI  = "tui"
	RenderText = "text"
	RenderNone = "none"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

// Watch re-reads the file at path whenever it changes on disk and hands the
// new display section to apply. Invalid edits are logged and skipped. The
// watcher lives for the rest of the process.
func Watch(path string, apply func(DisplayConfig), logger *zap.Logger) error {
	if path == "" {
		return errors.New("watch config: path is required")
	}
	if apply == nil {
		return errors.New("watch config: apply callback is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	v.OnConfigChange(func(evt fsnotify.Event) {
		if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("config reload rejected", zap.String("file", evt.Name), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("file", evt.Name))
		apply(cfg.Display)
	})
	v.WatchConfig()
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PROGRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	prefs := engine.DefaultPreferences()
	v.SetDefault("display.counts", prefs.DisplayCounts)
	v.SetDefault("display.time_estimates", prefs.DisplayTimeEstimates)
	v.SetDefault("display.estimate_delay_ms", prefs.TimeEstimateInitialDelay.Milliseconds())
	v.SetDefault("display.render_interval_ms", prefs.DisplayInterval.Milliseconds())
	v.SetDefault("display.title", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout_seconds", 15)
	v.SetDefault("hub.buffer_size", 1024)
	v.SetDefault("hub.max_batch_events", 256)
	v.SetDefault("hub.max_batch_wait_ms", 250)
	v.SetDefault("hub.sink_timeout_seconds", 5)
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.sqlite_path", "progress.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "runs")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("archive.driver", ArchiveNone)
	v.SetDefault("archive.prefix", "runs")
	v.SetDefault("archive.local_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("render.mode", RenderTUI)
	v.SetDefault("render.width", 60)
	v.SetDefault("fetch.user_agent", "modalprogress/0.1")
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_depth", 1)
	v.SetDefault("fetch.max_pages", 25)
	v.SetDefault("fetch.rate_limit_rps", 2.0)
	v.SetDefault("fetch.rate_limit_burst", 1)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "progressrun")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Display.Validate(); err != nil {
		return err
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("server.request_timeout_seconds must be >= 0")
	}
	if c.Hub.BufferSize < 0 || c.Hub.MaxBatchEvents < 0 || c.Hub.MaxBatchWaitMs < 0 || c.Hub.SinkTimeoutSeconds < 0 {
		return fmt.Errorf("hub settings must be >= 0")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path must be set for the sqlite driver")
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	switch c.Archive.Driver {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local driver")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs driver")
		}
	default:
		return fmt.Errorf("archive.driver %q is not supported", c.Archive.Driver)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	switch c.Render.Mode {
	case RenderTUI, RenderText, RenderNone:
	default:
		return fmt.Errorf("render.mode %q is not supported", c.Render.Mode)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.RateLimitRPS < 0 || c.Fetch.RateLimitBurst < 0 {
		return fmt.Errorf("fetch rate limit settings must be >= 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}

// Validate checks the display section on its own so reloads can reuse it.
func (d DisplayConfig) Validate() error {
	if d.EstimateDelayMs < 0 {
		return fmt.Errorf("display.estimate_delay_ms must be >= 0")
	}
	if d.RenderIntervalMs < 0 {
		return fmt.Errorf("display.render_interval_ms must be >= 0")
	}
	return nil
}

// Preferences converts the display section into engine preferences.
func (d DisplayConfig) Preferences() engine.Preferences {
	return engine.Preferences{
		DisplayCounts:            d.Counts,
		DisplayTimeEstimates:     d.TimeEstimates,
		TimeEstimateInitialDelay: time.Duration(d.EstimateDelayMs) * time.Millisecond,
		DisplayInterval:          time.Duration(d.RenderIntervalMs) * time.Millisecond,
	}
}

// MaxBatchWait returns the hub flush interval as a duration.
func (h HubConfig) MaxBatchWait() time.Duration {
	return time.Duration(h.MaxBatchWaitMs) * time.Millisecond
}

// SinkTimeout returns the per-sink deadline as a duration.
func (h HubConfig) SinkTimeout() time.Duration {
	return time.Duration(h.SinkTimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-request API deadline as a duration.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-page fetch deadline as a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}
