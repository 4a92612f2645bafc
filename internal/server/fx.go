package server

import (
	"context"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/fraud-detection/internal/api"
	"github.com/JakeFAU/fraud-detection/internal/audit"
	auditpg "github.com/JakeFAU/fraud-detection/internal/audit/postgres"
	auditsinks "github.com/JakeFAU/fraud-detection/internal/audit/sinks"
	"github.com/JakeFAU/fraud-detection/internal/client"
	"github.com/JakeFAU/fraud-detection/internal/clock"
	"github.com/JakeFAU/fraud-detection/internal/config"
	"github.com/JakeFAU/fraud-detection/internal/dashboard"
	"github.com/JakeFAU/fraud-detection/internal/dataset"
	"github.com/JakeFAU/fraud-detection/internal/ids"
	"github.com/JakeFAU/fraud-detection/internal/metrics"
	"github.com/JakeFAU/fraud-detection/internal/model"
	"github.com/JakeFAU/fraud-detection/internal/publisher"
	memorypublisher "github.com/JakeFAU/fraud-detection/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/fraud-detection/internal/publisher/pubsub"
	"github.com/JakeFAU/fraud-detection/internal/ratelimit"
	"github.com/JakeFAU/fraud-detection/internal/stats"
	"github.com/JakeFAU/fraud-detection/internal/storage"
	gcsstorage "github.com/JakeFAU/fraud-detection/internal/storage/gcs"
	localstorage "github.com/JakeFAU/fraud-detection/internal/storage/local"
	memorystorage "github.com/JakeFAU/fraud-detection/internal/storage/memory"
	"github.com/JakeFAU/fraud-detection/internal/telemetry"
	"github.com/JakeFAU/fraud-detection/internal/tracking"
	pgtracking "github.com/JakeFAU/fraud-detection/internal/tracking/postgres"
	sqlitetracking "github.com/JakeFAU/fraud-detection/internal/tracking/sqlite"
)

const rateLimitIdleTTL = 10 * time.Minute

// Build is the function signature shared by the service builders.
type Build func(ctx context.Context, cfg config.Config) (*App, error)

// BuildModelAPI wires the prediction service: the serving artifact, the
// audit hub and its sinks, rate limiting and tracing.
func BuildModelAPI(ctx context.Context, cfg config.Config) (*App, error) {
	app, err := NewApp(cfg, "model_api")
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = app.Close(ctx) //nolint:errcheck // build error wins
		return nil, err
	}
	if err := app.setupTracing(ctx); err != nil {
		return fail(err)
	}
	blobs, err := app.Blobs(ctx)
	if err != nil {
		return fail(err)
	}
	clf, err := model.Load(ctx, blobs, cfg.ModelAPI.ModelPath)
	if err != nil {
		return fail(fmt.Errorf("model load failed: %w", err))
	}
	art := clf.Artifact()
	metrics.Init()
	metrics.SetModelInfo(string(art.Kind), art.Version)
	app.logger.Info("model loaded",
		zap.String("path", cfg.ModelAPI.ModelPath),
		zap.String("kind", string(art.Kind)),
		zap.String("version", art.Version),
	)

	emitter, err := app.setupAudit(ctx)
	if err != nil {
		return fail(err)
	}
	srv, err := api.NewPredictServer(api.PredictDeps{
		Model:  clf,
		IDs:    ids.NewUUIDv7(),
		Clock:  clock.NewSystem(),
		Audit:  emitter,
		Tracer: telemetry.Tracer("fraud-detection/model_api"),
	}, app.apiOptions(cfg.ModelAPI.RequestTimeout()))
	if err != nil {
		return fail(fmt.Errorf("predict server init failed: %w", err))
	}
	app.handler = srv.Handler()
	app.port = cfg.ModelAPI.Port
	return app, nil
}

// BuildStatsAPI wires the statistics service and the run tracking read API.
func BuildStatsAPI(ctx context.Context, cfg config.Config) (*App, error) {
	app, err := NewApp(cfg, "stats_api")
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = app.Close(ctx) //nolint:errcheck // build error wins
		return nil, err
	}
	if err := app.setupTracing(ctx); err != nil {
		return fail(err)
	}
	blobs, err := app.Blobs(ctx)
	if err != nil {
		return fail(err)
	}
	ds, err := dataset.Open(ctx, blobs, cfg.StatsAPI.DatasetPath)
	if err != nil {
		return fail(fmt.Errorf("dataset load failed: %w", err))
	}
	snapshot := stats.Compute(ds, time.Now())
	summary := snapshot.Summary()
	metrics.Init()
	metrics.SetDatasetRows(summary.TotalTransactions-summary.TotalFraudCases, summary.TotalFraudCases)
	app.logger.Info("dataset loaded",
		zap.String("path", cfg.StatsAPI.DatasetPath),
		zap.Int("rows", summary.TotalTransactions),
		zap.Int("fraud", summary.TotalFraudCases),
	)

	repo, err := app.Tracking(ctx)
	if err != nil {
		app.logger.Warn("tracking store unavailable, run endpoints disabled", zap.Error(err))
		repo = nil
	}
	srv := api.NewStatsServer(snapshot, repo, app.apiOptions(0))
	app.handler = srv.Handler()
	app.port = cfg.StatsAPI.Port
	return app, nil
}

// BuildDashboard wires the dashboard against both services.
func BuildDashboard(ctx context.Context, cfg config.Config) (*App, error) {
	app, err := NewApp(cfg, "dashboard")
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = app.Close(ctx) //nolint:errcheck // build error wins
		return nil, err
	}
	if err := app.setupTracing(ctx); err != nil {
		return fail(err)
	}
	statsClient, err := client.NewStats(app.clientConfig(cfg.Dashboard.StatsAPIURL))
	if err != nil {
		return fail(err)
	}
	predictClient, err := client.NewPredict(app.clientConfig(cfg.Dashboard.ModelAPIURL))
	if err != nil {
		return fail(err)
	}
	srv, err := dashboard.New(statsClient, predictClient, app.apiOptions(0))
	if err != nil {
		return fail(err)
	}
	app.logger.Info("dashboard upstreams",
		zap.String("model_api", cfg.Dashboard.ModelAPIURL),
		zap.String("stats_api", cfg.Dashboard.StatsAPIURL),
		zap.Duration("timeout", cfg.Dashboard.ClientTimeout()),
	)
	app.handler = srv.Handler()
	app.port = cfg.Dashboard.Port
	return app, nil
}

// PredictClient builds a client for the configured prediction service.
func (a *App) PredictClient() (*client.Predict, error) {
	return client.NewPredict(a.clientConfig(a.cfg.Dashboard.ModelAPIURL))
}

func (a *App) clientConfig(baseURL string) client.Config {
	cfg := client.Config{BaseURL: baseURL, Timeout: a.cfg.Dashboard.ClientTimeout()}
	if a.cfg.Auth.Enabled {
		cfg.APIKey = a.cfg.Auth.APIKey
	}
	return cfg
}

func (a *App) apiOptions(timeout time.Duration) api.Options {
	opts := api.Options{
		Logger:         a.logger.Named("http"),
		Auth:           a.cfg.Auth,
		RequestTimeout: timeout,
	}
	if a.cfg.RateLimit.Enabled {
		opts.RateLimiter = ratelimit.New(ratelimit.Config{
			RPS:     a.cfg.RateLimit.RPS,
			Burst:   a.cfg.RateLimit.Burst,
			IdleTTL: rateLimitIdleTTL,
		})
		a.logger.Info("rate limiter enabled",
			zap.Float64("rps", a.cfg.RateLimit.RPS),
			zap.Int("burst", a.cfg.RateLimit.Burst),
		)
	}
	return opts
}

func (a *App) setupTracing(ctx context.Context) error {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Options{
		ServiceName: a.cfg.Telemetry.ServiceName + "-" + a.service,
		Exporter:    telemetry.NewLogExporter(a.logger.Named("trace")),
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.onClose("tracer", tp.Shutdown)
	a.logger.Info("tracing enabled")
	return nil
}

// Blobs opens the configured blob backend.
func (a *App) Blobs(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend")
		gcsClient, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.onClose("gcs client", func(context.Context) error { return gcsClient.Close() })
		store, err := gcsstorage.New(gcsClient, gcsstorage.Config{
			Bucket: a.cfg.Storage.Bucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Debug("GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		return store, nil
	case "local":
		a.logger.Info("using local storage backend")
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Debug("local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

// Tracking opens the configured run store.
func (a *App) Tracking(ctx context.Context) (tracking.Repository, error) {
	var (
		repo tracking.Repository
		err  error
	)
	switch a.cfg.Tracking.Backend {
	case "postgres":
		repo, err = pgtracking.NewStore(ctx, pgtracking.Config{
			DSN:             a.cfg.Tracking.DSN,
			MaxConns:        a.cfg.Tracking.MaxConns,
			MinConns:        a.cfg.Tracking.MinConns,
			MaxConnLifetime: a.cfg.Tracking.MaxConnLifetime(),
		})
	case "sqlite":
		repo, err = sqlitetracking.Open(a.cfg.Tracking.SQLitePath)
	default:
		repo = tracking.NewMemoryStore()
	}
	if err != nil {
		return nil, fmt.Errorf("tracking store init failed: %w", err)
	}
	a.onClose("tracking store", func(context.Context) error { return repo.Close() })
	a.logger.Info("tracking store initialized", zap.String("backend", a.cfg.Tracking.Backend))
	return repo, nil
}

func (a *App) setupPublisher(ctx context.Context) (publisher.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.onClose("pubsub publisher", func(context.Context) error { return pub.Close() })
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) setupAudit(ctx context.Context) (audit.Emitter, error) {
	if !a.cfg.Audit.Enabled {
		a.logger.Info("prediction audit disabled")
		return audit.Nop{}, nil
	}
	sinkList := []audit.Sink{auditsinks.NewLogSink(a.logger.Named("audit_log"))}

	promSink, err := auditsinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("audit prometheus sink: %w", err)
	}
	sinkList = append(sinkList, promSink)

	if a.cfg.Audit.DSN != "" {
		store, err := auditpg.NewPredictionStore(ctx, auditpg.Config{
			DSN:             a.cfg.Audit.DSN,
			Table:           a.cfg.Audit.PredictionsTable,
			MaxConns:        a.cfg.Tracking.MaxConns,
			MinConns:        a.cfg.Tracking.MinConns,
			MaxConnLifetime: a.cfg.Tracking.MaxConnLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("prediction store init failed: %w", err)
		}
		a.onClose("prediction store", func(context.Context) error { store.Close(); return nil })
		sinkList = append(sinkList, auditsinks.NewStoreSink(store))
		a.logger.Debug("Added prediction store sink", zap.String("table", a.cfg.Audit.PredictionsTable))
	} else {
		a.logger.Warn("No DSN specified for audit, predictions will not be persisted")
	}

	if a.cfg.Audit.AlertsEnabled {
		pub, err := a.setupPublisher(ctx)
		if err != nil {
			return nil, err
		}
		sinkList = append(sinkList, auditsinks.NewAlertSink(pub, a.cfg.PubSub.TopicName))
		a.logger.Debug("Added fraud alert sink")
	}

	hubCfg := audit.Config{
		BufferSize:     a.cfg.Audit.BufferSize,
		MaxBatchEvents: a.cfg.Audit.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Audit.MaxBatchWait(),
		SinkTimeout:    a.cfg.Audit.SinkTimeout(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("audit_hub"),
	}
	hub := audit.NewHub(hubCfg, sinkList...)
	a.onClose("audit hub", hub.Close)
	a.logger.Info("audit hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return hub, nil
}
