// Package app builds the long-lived services behind progressrun: run history,
// archive and notification sinks, the event hub, the render surface, the
// engine and the observer API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/api"
	"github.com/JakeFAU/modalprogress/internal/config"
	"github.com/JakeFAU/modalprogress/internal/engine"
	"github.com/JakeFAU/modalprogress/internal/logging"
	"github.com/JakeFAU/modalprogress/internal/metrics"
	"github.com/JakeFAU/modalprogress/internal/progress"
	progresssinks "github.com/JakeFAU/modalprogress/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/modalprogress/internal/publisher/pubsub"
	"github.com/JakeFAU/modalprogress/internal/render/text"
	"github.com/JakeFAU/modalprogress/internal/render/tui"
	gcsstorage "github.com/JakeFAU/modalprogress/internal/storage/gcs"
	localstorage "github.com/JakeFAU/modalprogress/internal/storage/local"
	memorystorage "github.com/JakeFAU/modalprogress/internal/storage/memory"
	pgstore "github.com/JakeFAU/modalprogress/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/modalprogress/internal/storage/sqlite"
	"github.com/JakeFAU/modalprogress/internal/store"
	"github.com/JakeFAU/modalprogress/internal/telemetry"
	"github.com/JakeFAU/modalprogress/internal/workload"
)

// Options carries process-level dependencies that do not belong in Config.
type Options struct {
	// ConfigPath enables live reload of the display section when set.
	ConfigPath string
	// Logger replaces the logger built from cfg.Logging.
	Logger *zap.Logger
	// Stdin and Stdout back the render surface; nil means the process streams.
	Stdin  io.Reader
	Stdout io.Writer
	// Registerer receives the run collectors; nil means the default registry.
	Registerer prometheus.Registerer
	// Listener serves the API instead of binding server.port.
	Listener net.Listener
	// TracerProvider replaces the provider built from cfg.Tracing.
	TracerProvider trace.TracerProvider
}

// Job is one unit of work for Run.
type Job struct {
	// Title falls back to display.title when empty.
	Title         string
	InitialAction string
	Estimate      int64
	Work          engine.WorkFunc
	Arg           any
}

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	ownsLogger bool

	engine      *engine.Engine
	progressHub *progress.Hub
	runRepo     store.RunRepository
	closeRepo   func() error

	storage         *storage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher

	apiServer *api.Server
	listener  net.Listener

	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
}

const (
	shutdownTimeout = 10 * time.Second
	tracerName      = "github.com/JakeFAU/modalprogress"
)

// Build creates the application's dependencies. On error everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	a := &App{cfg: cfg, logger: opts.Logger}
	if a.logger == nil {
		a.logger, err = logging.NewWithOptions(cfg.Logging.Development, logging.Options{
			Level: cfg.Logging.Level,
			File:  cfg.Logging.File,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		a.ownsLogger = true
	}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = a.Close(closeCtx) //nolint:errcheck // the build error wins
		}
	}()

	a.logger.Info("building application dependencies",
		zap.String("store", cfg.Store.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("render", cfg.Render.Mode),
		zap.Bool("api", cfg.Server.Enabled),
	)
	metrics.Init()

	if err = a.setupTracing(ctx, opts.TracerProvider); err != nil {
		return nil, err
	}
	if err = a.setupRunStore(ctx); err != nil {
		return nil, err
	}
	blobs, err := a.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	emitter, err := a.setupProgress(ctx, opts.Registerer, blobs, publisher)
	if err != nil {
		return nil, err
	}

	prefs := cfg.Display.Preferences()
	a.engine = engine.New(engine.Config{
		Preferences: &prefs,
		Renderer:    a.setupRenderer(opts),
		Emitter:     emitter,
		Logger:      a.logger.Named("engine"),
	})

	if cfg.Server.Enabled {
		if err = a.setupAPI(opts.Listener); err != nil {
			return nil, err
		}
	}

	if opts.ConfigPath != "" {
		if err = config.Watch(opts.ConfigPath, a.applyDisplay, a.logger.Named("config")); err != nil {
			return nil, fmt.Errorf("config watch failed: %w", err)
		}
	}
	return a, nil
}

// Engine exposes the engine for callers that drive it directly.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Runs exposes the run history repository.
func (a *App) Runs() store.RunRepository {
	return a.runRepo
}

// APIAddr returns the address the API listens on, or "" when it is disabled.
func (a *App) APIAddr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// NewFetcher builds the URL fetch workload from the fetch section.
func (a *App) NewFetcher() *workload.Fetcher {
	return workload.NewFetcher(workload.FetchConfig{
		UserAgent:      a.cfg.Fetch.UserAgent,
		RespectRobots:  a.cfg.Fetch.RespectRobots,
		Timeout:        a.cfg.Fetch.Timeout(),
		MaxDepth:       a.cfg.Fetch.MaxDepth,
		MaxPages:       a.cfg.Fetch.MaxPages,
		RateLimitRPS:   a.cfg.Fetch.RateLimitRPS,
		RateLimitBurst: a.cfg.Fetch.RateLimitBurst,
		Tracer:         a.tracer,
	}, a.logger.Named("fetch"))
}

// Run executes job on the engine, serving the API for the duration of the
// run when it is enabled. Cancelling ctx cancels the run. The API listener is
// released when the first Run returns.
func (a *App) Run(ctx context.Context, job Job) (engine.Result, error) {
	title := job.Title
	if title == "" {
		title = a.cfg.Display.Title
	}

	var srv *http.Server
	serveErr := make(chan error, 1)
	if a.apiServer != nil {
		srv = &http.Server{
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.String("addr", a.APIAddr()))
			if err := srv.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				serveErr <- err
			}
		}()
	}

	ctx, span := a.tracer.Start(ctx, "progress.run", trace.WithAttributes(
		attribute.String("run.title", title),
		attribute.Int64("run.estimate", job.Estimate),
	))
	res, runErr := a.engine.Start(ctx, title, job.InitialAction, job.Estimate, job.Work, job.Arg)
	span.SetAttributes(
		attribute.String("run.id", res.RunID.String()),
		attribute.String("run.outcome", string(res.Outcome)),
		attribute.Int64("run.current", res.Current),
		attribute.Int64("run.total", res.Total),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run failed")
	}
	span.End()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown error", zap.Error(err))
		}
		select {
		case err := <-serveErr:
			runErr = errors.Join(runErr, fmt.Errorf("serve api: %w", err))
		default:
		}
	}
	return res, runErr
}

// Close flushes pending run events and releases every client. Safe to call
// on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, err)
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.listener != nil {
		_ = a.listener.Close() //nolint:errcheck // already closed after Run
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client close: %w", err))
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client close: %w", err))
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.closeRepo != nil {
		if err := a.closeRepo(); err != nil {
			errs = append(errs, fmt.Errorf("run store close: %w", err))
			a.logger.Warn("run store close failed", zap.Error(err))
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	if a.ownsLogger {
		_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
	}
	return errors.Join(errs...)
}

func (a *App) applyDisplay(d config.DisplayConfig) {
	a.engine.SetPreferences(d.Preferences())
	a.logger.Info("display preferences reloaded",
		zap.Bool("counts", d.Counts),
		zap.Bool("time_estimates", d.TimeEstimates),
		zap.Int("estimate_delay_ms", d.EstimateDelayMs),
		zap.Int("render_interval_ms", d.RenderIntervalMs),
	)
}

func (a *App) setupTracing(ctx context.Context, provided trace.TracerProvider) error {
	switch {
	case provided != nil:
		a.tracer = provided.Tracer(tracerName)
	case a.cfg.Tracing.Enabled:
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: a.cfg.Tracing.ServiceName,
			SampleRatio: a.cfg.Tracing.SampleRatio,
			SetGlobal:   true,
		}, a.logger.Named("trace"))
		if err != nil {
			return fmt.Errorf("tracing init failed: %w", err)
		}
		a.tracerProvider = tp
		a.tracer = tp.Tracer(tracerName)
		a.logger.Info("tracing enabled", zap.Float64("sample_ratio", a.cfg.Tracing.SampleRatio))
	default:
		a.tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	return nil
}

func (a *App) setupRunStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.StoreSQLite:
		s, err := sqlitestore.Open(ctx, a.cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite run store init failed: %w", err)
		}
		a.runRepo, a.closeRepo = s, s.Close
		a.logger.Info("using sqlite run store", zap.String("path", a.cfg.Store.SQLitePath))
	case config.StorePostgres:
		s, err := pgstore.NewRunStore(ctx, pgstore.Config{
			DSN:      a.cfg.Store.DSN,
			Table:    a.cfg.Store.Table,
			MaxConns: int32(a.cfg.Store.MaxConns), //nolint:gosec // validated small value
		})
		if err != nil {
			return fmt.Errorf("postgres run store init failed: %w", err)
		}
		a.runRepo = s
		a.closeRepo = func() error { s.Close(); return nil }
		if err := s.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema init failed: %w", err)
		}
		a.logger.Info("using postgres run store", zap.String("table", a.cfg.Store.Table))
	default:
		a.runRepo = memorystorage.NewRunStore()
		a.logger.Info("using in-memory run store")
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) (progresssinks.BlobStore, error) {
	switch a.cfg.Archive.Driver {
	case config.ArchiveMemory:
		a.logger.Info("using in-memory archive")
		return memorystorage.NewBlobStore(), nil
	case config.ArchiveLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("using local archive", zap.String("path", a.cfg.Archive.LocalDir))
		return blobs, nil
	case config.ArchiveGCS:
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket:      a.cfg.Archive.GCSBucket,
			Metadata:    map[string]string{"service": a.cfg.Tracing.ServiceName},
			NoOverwrite: true,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.logger.Info("using GCS archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
		return blobs, nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (progresssinks.Publisher, error) {
	if !a.cfg.PubSub.Enabled {
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = gcppublisher.New(a.pubsubClient, a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.pubsubPublisher, nil
}

func (a *App) setupProgress(
	ctx context.Context,
	reg prometheus.Registerer,
	blobs progresssinks.BlobStore,
	publisher progresssinks.Publisher,
) (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
		progresssinks.NewStoreSink(a.runRepo, a.logger.Named("progress_store")),
	}
	if blobs != nil {
		sinkList = append(sinkList,
			progresssinks.NewArchiveSink(blobs, a.cfg.Archive.Prefix, a.logger.Named("progress_archive")))
	}
	if publisher != nil {
		sinkList = append(sinkList,
			progresssinks.NewPublishSink(publisher, a.cfg.PubSub.TopicName, a.logger.Named("progress_publish")))
	}

	hubCfg := progress.Config{
		BufferSize:     a.cfg.Hub.BufferSize,
		MaxBatchEvents: a.cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Hub.MaxBatchWait(),
		SinkTimeout:    a.cfg.Hub.SinkTimeout(),
		// Sinks must still record the cancelled outcome after a signal.
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return a.progressHub, nil
}

func (a *App) setupRenderer(opts Options) engine.Renderer {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	switch a.cfg.Render.Mode {
	case config.RenderText:
		return text.New(out)
	case config.RenderNone:
		return nil
	default:
		return tui.New(tui.Config{
			Input:  opts.Stdin,
			Output: out,
			Width:  a.cfg.Render.Width,
		})
	}
}

func (a *App) setupAPI(ln net.Listener) error {
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
		if err != nil {
			return fmt.Errorf("listen api: %w", err)
		}
	}
	a.listener = ln
	a.apiServer = api.NewServer(a.engine, a.runRepo, api.Options{
		APIKey:         a.cfg.Server.APIKey,
		RequestTimeout: a.cfg.Server.RequestTimeout(),
	}, a.logger.Named("api"))
	return nil
}
