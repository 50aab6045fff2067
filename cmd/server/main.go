package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/application/bulksync"
	"github.com/omnisync/backend/internal/application/ingest"
	jobsapp "github.com/omnisync/backend/internal/application/jobs"
	"github.com/omnisync/backend/internal/application/reconcile"
	returnsapp "github.com/omnisync/backend/internal/application/returns"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
	"github.com/omnisync/backend/internal/infrastructure/cache"
	"github.com/omnisync/backend/internal/infrastructure/channelapi"
	"github.com/omnisync/backend/internal/infrastructure/config"
	"github.com/omnisync/backend/internal/infrastructure/ecommerce"
	"github.com/omnisync/backend/internal/infrastructure/jobs"
	"github.com/omnisync/backend/internal/infrastructure/logger"
	"github.com/omnisync/backend/internal/infrastructure/messaging"
	"github.com/omnisync/backend/internal/infrastructure/persistence"
	"github.com/omnisync/backend/internal/infrastructure/scheduler"
	"github.com/omnisync/backend/internal/infrastructure/shipping"
	"github.com/omnisync/backend/internal/infrastructure/storage"
	"github.com/omnisync/backend/internal/infrastructure/telemetry"
	"github.com/omnisync/backend/internal/interfaces/http/handler"
	"github.com/omnisync/backend/internal/interfaces/http/middleware"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// A missing .env is fine; real deployments set OMNI_* directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting omnisync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := telemetry.ConfigFrom(cfg.Telemetry)
	telemetryCfg.ServiceVersion = version
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	metricsCfg := telemetry.MetricsConfigFrom(cfg.Telemetry)
	metricsCfg.ServiceVersion = version
	meterProvider, err := telemetry.NewMeterProvider(ctx, metricsCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.DefaultGormConfig(logger.MapGormLogLevel(cfg.Log.Level)))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfigFrom(cfg.Telemetry), log); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}
	if meterProvider.IsEnabled() {
		poolMetrics, err := db.RegisterPoolMetrics(meterProvider.Meter("omnisync.database"))
		if err != nil {
			log.Warn("Database pool metrics disabled", zap.Error(err))
		} else {
			defer func() { _ = poolMetrics.Unregister() }()
		}
	}
	log.Info("Database connected successfully")

	backend, err := cache.NewBackendFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).Create(ctx)
	if err != nil {
		log.Fatal("Failed to initialize cache backend", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("Error closing cache backend", zap.Error(err))
		}
	}()

	labels, err := storage.NewLabelStore(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to initialize label storage", zap.Error(err))
	}

	// Repositories
	integrationRepo := persistence.NewGormIntegrationRepository(db.DB)
	receiptRepo := persistence.NewGormWebhookReceiptRepository(db.DB)
	jobRepo := persistence.NewGormJobRepository(db.DB)
	batchRepo := persistence.NewGormSyncBatchRepository(db.DB)
	currencyRepo := persistence.NewGormCurrencyRepository(db.DB)
	rateTable := persistence.NewGormCarrierRateTable(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Audit entries always land in the database; NATS is an optional mirror
	var (
		audit  shared.AuditSink      = persistence.NewGormAuditSink(db.DB)
		events shared.EventPublisher = shared.NopEventPublisher{}
	)
	publisher, err := messaging.Connect(cfg.Messaging, log)
	switch {
	case errors.Is(err, messaging.ErrMessagingDisabled):
		log.Info("Messaging disabled, domain events are not published")
	case err != nil:
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	default:
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error("Error closing NATS connection", zap.Error(err))
			}
		}()
		audit = messaging.NewFanOutAuditSink(log, audit, publisher)
		events = messaging.NewFanOutPublisher(log, publisher)
	}

	// Channel and carrier adapters
	shopifyClient := ecommerce.NewShopifyClient(channelapi.OptionsFromConfig(cfg.Channels.Shopify), log)
	trendyolClient := ecommerce.NewTrendyolClient(channelapi.OptionsFromConfig(cfg.Channels.Trendyol), log)
	geliverClient := shipping.NewGeliverClient(channelapi.OptionsFromConfig(cfg.Channels.Geliver), integrationRepo, log)

	clock := shared.SystemClock{}
	reconcileDeps := reconcile.Deps{
		Tx:       txScope,
		Clock:    clock,
		Audit:    audit,
		Events:   events,
		Currency: reconcile.NewCurrencyResolver(currencyRepo, valueobject.Currency(cfg.Currency.Accounting), log),
		Shipping: reconcile.NewShippingCostCalculator(geliverClient, rateTable, log),
		Logger:   log,
	}

	dispatcher := ingest.NewDispatcher(ingest.DispatcherConfig{
		Integrations: integrationRepo,
		Tx:           txScope,
		Normalizers: []integration.Normalizer{
			ecommerce.NewShopifyNormalizer(),
			ecommerce.NewTrendyolNormalizer(),
		},
		Pushers:    []integration.ReturnStatusPusher{shopifyClient, trendyolClient},
		Aggregator: geliverClient,
		Deps:       reconcileDeps,
		Logger:     log,
	})

	ingestService := ingest.NewService(ingest.Config{
		Integrations: integrationRepo,
		Receipts:     receiptRepo,
		Jobs:         jobRepo,
		Idempotency:  backend.Idempotency,
		Dedupe: shared.IdempotencyConfig{
			Enabled: cfg.Idempotency.Enabled,
			TTL:     cfg.Idempotency.TTL,
		},
		Providers: []ingest.Provider{shopifyClient, trendyolClient, geliverClient},
		Clock:     clock,
		Logger:    log,
	})

	lifecycleService := returnsapp.NewLifecycleService(returnsapp.Deps{
		Tx:         txScope,
		Aggregator: geliverClient,
		Labels:     labels,
		Clock:      clock,
		Audit:      audit,
		Events:     events,
		Logger:     log,
	})

	jobService := jobsapp.NewJobService(jobRepo, clock, log)

	bulkSyncService := bulksync.NewBulkSyncService(bulksync.Deps{
		Integrations: integrationRepo,
		Batches:      batchRepo,
		Jobs:         jobRepo,
		Pullers:      []integration.ChannelPuller{shopifyClient, trendyolClient},
		Locker:       backend.Locker,
		Clock:        clock,
		Logger:       log,
	}, bulksync.Config{
		LockTTL:  cfg.Sync.LockTTL,
		MaxPages: cfg.Sync.MaxPages,
		Lookback: cfg.Sync.InitialLookback,
	})

	// Background workers
	var processor *jobs.Processor
	if cfg.Jobs.ProcessorEnabled {
		processor = jobs.NewProcessor(jobRepo, receiptRepo, dispatcher, clock, jobs.ProcessorConfig{
			Workers:          cfg.Jobs.Workers,
			BatchSize:        cfg.Jobs.BatchSize,
			PollInterval:     cfg.Jobs.PollInterval,
			StaleAfter:       cfg.Jobs.StaleAfter,
			CleanupEnabled:   cfg.Jobs.CleanupEnabled,
			CleanupRetention: cfg.Jobs.CleanupRetention,
			CleanupInterval:  cfg.Jobs.CleanupInterval,
			Meter:            meterProvider.Meter("omnisync.jobs"),
		}, log)
		if err := processor.Start(ctx); err != nil {
			log.Fatal("Failed to start job processor", zap.Error(err))
		}
	}

	var syncScheduler *scheduler.SyncScheduler
	if cfg.Sync.SchedulerEnabled {
		schedCfg := scheduler.DefaultSyncSchedulerConfig()
		if cfg.Sync.Interval > 0 {
			schedCfg.Interval = cfg.Sync.Interval
			schedCfg.SweepTimeout = cfg.Sync.Interval - cfg.Sync.Interval/6
		}
		syncScheduler, err = scheduler.NewSyncScheduler(schedCfg, bulkSyncService, log)
		if err != nil {
			log.Fatal("Invalid sync scheduler configuration", zap.Error(err))
		}
		if err := syncScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	tracingCfg := middleware.DefaultTracingConfig()
	tracingCfg.Enabled = tracerProvider.IsEnabled()
	if cfg.Telemetry.ServiceName != "" {
		tracingCfg.ServiceName = cfg.Telemetry.ServiceName
	}

	// Order: request id, recovery, tracing, logging, security headers, CORS, body limit
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(tracingCfg))
	engine.Use(middleware.SpanAttributes())
	if meterProvider.IsEnabled() {
		engine.Use(middleware.HTTPMetrics(meterProvider.Meter("omnisync.http")))
	}
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.HTTP.CORSAllowOrigins,
		AllowMethods:  cfg.HTTP.CORSAllowMethods,
		AllowHeaders:  cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders: []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var apiMiddleware []gin.HandlerFunc
	if cfg.HTTP.RateLimitPerSec > 0 {
		apiMiddleware = append(apiMiddleware,
			middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimitPerSec, cfg.HTTP.RateLimitBurst)))
		log.Info("Rate limiting enabled",
			zap.Float64("per_sec", cfg.HTTP.RateLimitPerSec),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
		)
	}

	probes := map[string]handler.HealthProbe{
		"database": db.Ping,
	}
	if backend.Redis != nil {
		probes["redis"] = func(ctx context.Context) error { return backend.Redis.Ping(ctx).Err() }
	}

	handler.RegisterRoutes(engine, handler.Handlers{
		Webhook: handler.NewWebhookHandler(ingestService),
		Return:  handler.NewReturnHandler(lifecycleService),
		Job:     handler.NewJobHandler(jobService),
		Sync:    handler.NewSyncHandler(bulkSyncService),
		System:  handler.NewSystemHandler(version, probes),
	}, apiMiddleware...)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if syncScheduler != nil {
		if err := syncScheduler.Stop(shutdownCtx); err != nil {
			log.Warn("Sync scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if processor != nil {
		if err := processor.Stop(shutdownCtx); err != nil {
			log.Warn("Job processor did not stop cleanly", zap.Error(err))
		}
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
