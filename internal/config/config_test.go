package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/engine"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, engine.DefaultPreferences(), cfg.Display.Preferences())
	require.True(t, cfg.Logging.Development)
	require.False(t, cfg.Server.Enabled)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, StoreMemory, cfg.Store.Driver)
	require.Equal(t, "runs", cfg.Store.Table)
	require.Equal(t, ArchiveNone, cfg.Archive.Driver)
	require.Equal(t, RenderTUI, cfg.Render.Mode)
	require.Equal(t, 250*time.Millisecond, cfg.Hub.MaxBatchWait())
	require.Equal(t, 5*time.Second, cfg.Hub.SinkTimeout())
	require.Equal(t, 15*time.Second, cfg.Fetch.Timeout())
	require.InDelta(t, 2.0, cfg.Fetch.RateLimitRPS, 1e-9)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "progressrun", cfg.Tracing.ServiceName)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `
display:
  counts: false
  time_estimates: true
  estimate_delay_ms: 5000
  render_interval_ms: 100
  title: Copying files
logging:
  development: false
server:
  enabled: true
  port: 9090
  api_key: secret
  request_timeout_seconds: 3
hub:
  buffer_size: 16
  max_batch_events: 4
  max_batch_wait_ms: 50
store:
  driver: sqlite
  sqlite_path: /tmp/runs.db
archive:
  driver: gcs
  prefix: summaries
  gcs_bucket: bucket
pubsub:
  enabled: true
  project_id: proj
  topic_name: run-outcomes
render:
  mode: text
fetch:
  user_agent: test-agent
  max_pages: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, engine.Preferences{
		DisplayCounts:            false,
		DisplayTimeEstimates:     true,
		TimeEstimateInitialDelay: 5 * time.Second,
		DisplayInterval:          100 * time.Millisecond,
	}, cfg.Display.Preferences())
	require.Equal(t, "Copying files", cfg.Display.Title)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, ServerConfig{Enabled: true, Port: 9090, APIKey: "secret", RequestTimeoutSeconds: 3}, cfg.Server)
	require.Equal(t, 3*time.Second, cfg.Server.RequestTimeout())
	require.Equal(t, 16, cfg.Hub.BufferSize)
	require.Equal(t, 50*time.Millisecond, cfg.Hub.MaxBatchWait())
	require.Equal(t, StoreSQLite, cfg.Store.Driver)
	require.Equal(t, "/tmp/runs.db", cfg.Store.SQLitePath)
	require.Equal(t, ArchiveConfig{Driver: ArchiveGCS, Prefix: "summaries", GCSBucket: "bucket"}, cfg.Archive)
	require.Equal(t, PubSubConfig{Enabled: true, ProjectID: "proj", TopicName: "run-outcomes"}, cfg.PubSub)
	require.Equal(t, RenderText, cfg.Render.Mode)
	require.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	require.Equal(t, 3, cfg.Fetch.MaxPages)
	require.True(t, cfg.Fetch.RespectRobots)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PROGRESS_RENDER_MODE", "none")
	t.Setenv("PROGRESS_DISPLAY_COUNTS", "false")
	t.Setenv("PROGRESS_STORE_DRIVER", "postgres")
	t.Setenv("PROGRESS_STORE_DSN", "postgres://localhost/progress")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, RenderNone, cfg.Render.Mode)
	require.False(t, cfg.Display.Counts)
	require.Equal(t, StorePostgres, cfg.Store.Driver)
	require.Equal(t, "postgres://localhost/progress", cfg.Store.DSN)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")

	path := writeConfig(t, t.TempDir(), "store:\n  driver: mongo\n")
	_, err = Load(path)
	require.ErrorContains(t, err, "store.driver")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative estimate delay", func(c *Config) { c.Display.EstimateDelayMs = -1 }, "display.estimate_delay_ms"},
		{"negative interval", func(c *Config) { c.Display.RenderIntervalMs = -1 }, "display.render_interval_ms"},
		{"server port", func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 }, "server.port"},
		{"request timeout", func(c *Config) { c.Server.RequestTimeoutSeconds = -1 }, "server.request_timeout_seconds"},
		{"hub", func(c *Config) { c.Hub.BufferSize = -1 }, "hub settings"},
		{"sqlite path", func(c *Config) { c.Store.Driver = StoreSQLite; c.Store.SQLitePath = "" }, "store.sqlite_path"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = StorePostgres }, "store.dsn"},
		{"archive driver", func(c *Config) { c.Archive.Driver = "s3" }, "archive.driver"},
		{"local dir", func(c *Config) { c.Archive.Driver = ArchiveLocal }, "archive.local_dir"},
		{"gcs bucket", func(c *Config) { c.Archive.Driver = ArchiveGCS }, "archive.gcs_bucket"},
		{"pubsub", func(c *Config) { c.PubSub.Enabled = true }, "pubsub.project_id"},
		{"render mode", func(c *Config) { c.Render.Mode = "gui" }, "render.mode"},
		{"fetch timeout", func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, "fetch.timeout_seconds"},
		{"fetch rate", func(c *Config) { c.Fetch.RateLimitRPS = -1 }, "fetch rate limit"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestWatchAppliesDisplayChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, "display:\n  counts: true\n")

	var (
		mu  sync.Mutex
		got []DisplayConfig
	)
	err := Watch(path, func(d DisplayConfig) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, d)
	}, zap.NewNop())
	require.NoError(t, err)

	writeConfig(t, dir, "display:\n  counts: false\n  render_interval_ms: 50\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, d := range got {
			if !d.Counts && d.RenderIntervalMs == 50 {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchRejectsBadInput(t *testing.T) {
	t.Parallel()

	require.ErrorContains(t, Watch("", func(DisplayConfig) {}, nil), "path is required")
	require.ErrorContains(t, Watch("config.yaml", nil, nil), "apply callback")
	require.ErrorContains(t, Watch(filepath.Join(t.TempDir(), "missing.yaml"), func(DisplayConfig) {}, nil), "read config")
}
