package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	appbilling "github.com/metering/backend/internal/application/billing"
	apptenancy "github.com/metering/backend/internal/application/tenancy"
	"github.com/metering/backend/internal/infrastructure/cache"
	"github.com/metering/backend/internal/infrastructure/config"
	"github.com/metering/backend/internal/infrastructure/logger"
	"github.com/metering/backend/internal/infrastructure/persistence"
	"github.com/metering/backend/internal/infrastructure/scheduler"
	"github.com/metering/backend/internal/infrastructure/telemetry"
	"github.com/metering/backend/internal/interfaces/http/handler"
	"github.com/metering/backend/internal/interfaces/http/middleware"
	"github.com/metering/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting metering backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry (optional)
	var tracerProvider *telemetry.TracerProvider
	var meterProvider *telemetry.MeterProvider
	if cfg.Telemetry.Enabled {
		tracerProvider, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			SamplingRatio:     cfg.Telemetry.SamplingRatio,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize tracer provider", zap.Error(err))
		}
		defer shutdownWithTimeout(tracerProvider.Shutdown, log, "tracer provider")

		meterProvider, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize meter provider", zap.Error(err))
		}
		defer shutdownWithTimeout(meterProvider.Shutdown, log, "meter provider")
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}
	log.Info("Database connected and migrated")

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        "postgresql",
		}, log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}

	// Idempotency store: Redis when available, in-memory only when the
	// deployment explicitly allows running without a shared store
	storeFactory := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.Ingest.RequireRedis),
	)
	idempotencyStore, err := storeFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Repositories
	eventRepo := persistence.NewGormUsageEventRepository(db.DB)
	periodRepo := persistence.NewGormBillingPeriodRepository(db.DB)
	rateCardRepo := persistence.NewGormRateCardRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	projectRepo := persistence.NewGormProjectRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Metrics
	var billingMetrics *telemetry.BillingMetrics
	if meterProvider != nil && meterProvider.IsEnabled() {
		billingMetrics, err = telemetry.NewBillingMetrics(meterProvider.Meter("metering/billing"), log)
		if err != nil {
			log.Fatal("Failed to create billing metrics", zap.Error(err))
		}
	}

	// Application services. The nil-interface dance keeps the services'
	// metrics field a true nil when telemetry is off.
	var ingestMetrics appbilling.IngestMetrics
	var closeMetrics appbilling.CloseMetrics
	if billingMetrics != nil {
		ingestMetrics = billingMetrics
		closeMetrics = billingMetrics
	}

	ingestService := appbilling.NewIngestService(idempotencyStore, txScope, ingestMetrics, log,
		appbilling.IngestServiceConfig{
			ClockSkewTolerance: cfg.Ingest.ClockSkewTolerance,
			KeyTTL:             cfg.Ingest.IdempotencyKeyTTL,
			MaxRetries:         cfg.Ingest.MaxRetries,
		})
	closeService := appbilling.NewPeriodCloseService(
		periodRepo, invoiceRepo, rateCardRepo, tenantRepo, projectRepo, closeMetrics, log,
		appbilling.PeriodCloseServiceConfig{
			QuiescenceWindow: cfg.PeriodClose.QuiescenceWindow,
		})
	rateCardService := appbilling.NewRateCardService(rateCardRepo, periodRepo, tenantRepo, log)
	invoiceService := appbilling.NewInvoiceService(invoiceRepo)
	usageQueryService := appbilling.NewUsageQueryService(periodRepo)
	tenantService := apptenancy.NewTenantService(tenantRepo, projectRepo, log)

	// Schedulers
	closeScheduler := scheduler.NewPeriodCloseScheduler(closeService, log,
		scheduler.PeriodCloseSchedulerConfig{
			Enabled:       cfg.PeriodClose.Enabled,
			CheckInterval: cfg.PeriodClose.CheckInterval,
			SweepTimeout:  10 * time.Minute,
		})
	if err := closeScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start period close scheduler", zap.Error(err))
	}

	retentionScheduler := scheduler.NewEventRetentionScheduler(eventRepo, log,
		scheduler.EventRetentionSchedulerConfig{
			Enabled:        cfg.Retention.CleanupEnabled,
			Retention:      cfg.Retention.EventRetention,
			CheckInterval:  cfg.Retention.CheckInterval,
			CleanupTimeout: 10 * time.Minute,
		})
	if err := retentionScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start event retention scheduler", zap.Error(err))
	}

	// HTTP engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}
	middleware.SetupValidator()

	// Middleware order: request ID, panic recovery, request logging,
	// tracing, CORS, body limit
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}
	engine.Use(middleware.CORS())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Handlers
	usageHandler := handler.NewUsageHandler(ingestService, usageQueryService)
	rateCardHandler := handler.NewRateCardHandler(rateCardService)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	periodHandler := handler.NewPeriodHandler(closeService)
	tenantHandler := handler.NewTenantHandler(tenantService)
	systemHandler := handler.NewSystemHandler(db)

	// Health check endpoint (outside API versioning)
	engine.GET("/healthz", systemHandler.Health)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	usageRoutes := router.NewDomainGroup("usage", "/usage")
	usageRoutes.POST("/events", usageHandler.Ingest)

	tenantRoutes := router.NewDomainGroup("tenants", "/tenants")
	tenantRoutes.POST("", tenantHandler.Create)
	tenantRoutes.GET("", tenantHandler.List)
	tenantRoutes.GET("/:id", tenantHandler.Get)
	tenantRoutes.PUT("/:id/seats", tenantHandler.UpdateSeats)
	tenantRoutes.POST("/:id/projects", tenantHandler.CreateProject)
	tenantRoutes.GET("/:id/projects", tenantHandler.ListProjects)
	tenantRoutes.PUT("/:id/rate-card", rateCardHandler.Upsert)
	tenantRoutes.GET("/:id/rate-card", rateCardHandler.Get)
	tenantRoutes.GET("/:id/usage", usageHandler.GetTenantUsage)
	tenantRoutes.GET("/:id/periods", usageHandler.ListTenantPeriods)
	tenantRoutes.GET("/:id/invoices", invoiceHandler.ListByTenant)
	tenantRoutes.POST("/:id/periods/close", periodHandler.CloseTenantDue)

	projectRoutes := router.NewDomainGroup("projects", "/projects")
	projectRoutes.PUT("/:id/stage", tenantHandler.SetProjectStage)

	periodRoutes := router.NewDomainGroup("periods", "/periods")
	periodRoutes.GET("/:id/usage", usageHandler.GetPeriodUsage)
	periodRoutes.GET("/:id/invoice", invoiceHandler.GetByPeriod)
	periodRoutes.POST("/:id/close", periodHandler.Close)
	periodRoutes.POST("/close-due", periodHandler.CloseDue)

	invoiceRoutes := router.NewDomainGroup("invoices", "/invoices")
	invoiceRoutes.GET("/:id", invoiceHandler.Get)

	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(usageRoutes).
		Register(tenantRoutes).
		Register(projectRoutes).
		Register(periodRoutes).
		Register(invoiceRoutes).
		Register(systemRoutes)
	r.Setup()

	// HTTP server
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
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := closeScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping period close scheduler", zap.Error(err))
	}
	if err := retentionScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event retention scheduler", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// shutdownWithTimeout runs a shutdown function with its own deadline so a
// hung exporter cannot stall process exit.
func shutdownWithTimeout(fn func(context.Context) error, log *zap.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}
