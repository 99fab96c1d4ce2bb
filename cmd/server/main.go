package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	procapp "github.com/manavault/backend/internal/application/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/cache"
	"github.com/manavault/backend/internal/infrastructure/config"
	"github.com/manavault/backend/internal/infrastructure/event"
	csvimport "github.com/manavault/backend/internal/infrastructure/import"
	"github.com/manavault/backend/internal/infrastructure/logger"
	"github.com/manavault/backend/internal/infrastructure/persistence"
	"github.com/manavault/backend/internal/infrastructure/scheduler"
	"github.com/manavault/backend/internal/infrastructure/security"
	"github.com/manavault/backend/internal/infrastructure/supplier"
	"github.com/manavault/backend/internal/infrastructure/telemetry"
	"github.com/manavault/backend/internal/interfaces/http/handler"
	"github.com/manavault/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// closer is something released during shutdown, in reverse registration order
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	ctx := context.Background()

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	var closers []closer
	onShutdown := func(name string, fn func(ctx context.Context) error) {
		closers = append(closers, closer{name: name, fn: fn})
	}

	// OTLP log export tees into the main logger, so it is built first
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log export", zap.Error(err))
	}
	onShutdown("log provider", logProvider.Shutdown)

	log, err := logger.New(logCfg, logProvider.ZapCore(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Manavault backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	onShutdown("tracer provider", tracerProvider.Shutdown)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	onShutdown("meter provider", meterProvider.Shutdown)
	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	onShutdown("profiler", func(context.Context) error { return profiler.Stop() })
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithParameterizedQueries(!cfg.Telemetry.DBLogFullSQL),
	)
	db, err := persistence.Open(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	onShutdown("database", func(context.Context) error { return db.Close() })
	log.Info("Database connected successfully")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meter, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.MetricsEnabled,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	onShutdown("db metrics", func(context.Context) error { return dbMetrics.Stop() })

	if cfg.Voucher.EncryptionKey == "" {
		log.Fatal("voucher.encryption_key is required to store voucher codes")
	}
	cipher, err := security.NewVoucherCipherFromBase64(cfg.Voucher.EncryptionKey)
	if err != nil {
		log.Fatal("Invalid voucher encryption key", zap.Error(err))
	}

	catalogRepo := persistence.NewGormCatalogRepository(db.DB)
	subOrderRepo := persistence.NewGormSubOrderRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	procMetrics, err := telemetry.NewProcurementMetrics(telemetry.ProcurementMetricsConfig{
		Meter:           meter,
		Logger:          log,
		PendingProvider: subOrderRepo,
	})
	if err != nil {
		log.Fatal("Failed to initialize procurement metrics", zap.Error(err))
	}
	if cfg.Telemetry.MetricsEnabled {
		procMetrics.StartPeriodicCollection(ctx, cfg.Telemetry.MetricsExportInterval)
	}
	onShutdown("procurement metrics", func(context.Context) error { procMetrics.Stop(); return nil })

	clients, err := supplier.NewClients(cfg.Suppliers, procMetrics, log)
	if err != nil {
		log.Fatal("Invalid supplier configuration", zap.Error(err))
	}

	publisher, closePublisher := newEventPublisher(cfg.Events, log)
	onShutdown("event publisher", func(context.Context) error { return closePublisher() })

	orderService := procapp.NewPurchaseOrderService(catalogRepo, txScope, clients, cipher, log)
	orderService.SetEventPublisher(publisher)
	orderService.SetMetrics(procMetrics)

	reconciliationService := procapp.NewReconciliationService(catalogRepo, subOrderRepo, txScope, clients.EzCards, cipher, log)
	reconciliationService.SetEventPublisher(publisher)
	reconciliationService.SetMetrics(procMetrics)

	importService := procapp.NewVoucherImportService(txScope, cipher, csvimport.NewExtractor(csvimport.Limits{
		MaxFileSize:   cfg.Import.MaxFileSize,
		MaxZipEntries: cfg.Import.MaxZipEntries,
		MaxEntrySize:  cfg.Import.MaxEntrySize,
	}), log)
	importService.SetEventPublisher(publisher)
	importService.SetMetrics(procMetrics)

	voucherService := procapp.NewVoucherService(txScope, cipher, log)

	var idempotencyStore shared.IdempotencyStore
	if cfg.Idempotency.Enabled {
		idempotencyStore, err = cache.NewIdempotencyStoreFactory(cfg.Redis,
			cache.WithLogger(log),
			cache.WithInMemoryFallback(cfg.App.Env != "production"),
		).CreateStore(ctx)
		if err != nil {
			log.Fatal("Failed to initialize idempotency store", zap.Error(err))
		}
		onShutdown("idempotency store", func(context.Context) error { return idempotencyStore.Close() })
	}

	reconciliationScheduler, err := scheduler.NewReconciliationScheduler(reconciliationService, log, scheduler.ReconciliationSchedulerConfig{
		Enabled:    cfg.Reconciliation.Enabled,
		Interval:   cfg.Reconciliation.Interval,
		RunTimeout: cfg.Reconciliation.RunTimeout,
		RunOnStart: cfg.Reconciliation.RunOnStart,
	})
	if err != nil {
		log.Fatal("Invalid reconciliation scheduler configuration", zap.Error(err))
	}
	if err := reconciliationScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start reconciliation scheduler", zap.Error(err))
	}
	onShutdown("reconciliation scheduler", reconciliationScheduler.Stop)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   tracerProvider.IsEnabled(),
		MaxBodySize:      cfg.HTTP.MaxBodySize,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
		IdempotencyStore: idempotencyStore,
		IdempotencyTTL:   cfg.Idempotency.TTL,
		Meter:            meter,
		Logger:           log,
	}, router.Handlers{
		PurchaseOrders: handler.NewPurchaseOrderHandler(orderService, importService, cfg.Import.MaxFileSize),
		Vouchers:       handler.NewVoucherHandler(voucherService),
		Reconciliation: handler.NewReconciliationHandler(reconciliationService),
		System:         handler.NewSystemHandler(db, version),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

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

	// SIGHUP runs reconciliation now without waiting for the interval
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		if err := reconciliationScheduler.TriggerImmediate(); err != nil {
			log.Warn("Reconciliation trigger ignored", zap.Error(err))
		}
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(shutdownCtx); err != nil {
			log.Error("Shutdown step failed", zap.String("component", closers[i].name), zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

// newEventPublisher returns the Kafka publisher when enabled, otherwise one
// that only logs events.
func newEventPublisher(cfg config.EventsConfig, log *zap.Logger) (shared.EventPublisher, func() error) {
	if !cfg.KafkaEnabled {
		p := event.NewLogPublisher(log)
		return p, p.Close
	}
	p, err := event.NewKafkaPublisher(event.KafkaConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		WriteTimeout: cfg.WriteTimeout,
	}, event.NewEventSerializer(), log)
	if err != nil {
		log.Fatal("Failed to initialize Kafka publisher", zap.Error(err))
	}
	log.Info("Publishing domain events to Kafka", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return p, p.Close
}
