package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
	"github.com/erp/fulfillment/internal/domain/fulfillment"
	"github.com/erp/fulfillment/internal/infrastructure/cache"
	"github.com/erp/fulfillment/internal/infrastructure/config"
	"github.com/erp/fulfillment/internal/infrastructure/event"
	"github.com/erp/fulfillment/internal/infrastructure/logger"
	"github.com/erp/fulfillment/internal/infrastructure/messaging"
	"github.com/erp/fulfillment/internal/infrastructure/persistence"
	"github.com/erp/fulfillment/internal/infrastructure/telemetry"
	"github.com/erp/fulfillment/internal/interfaces/http/handler"
	"github.com/erp/fulfillment/internal/interfaces/http/router"
)

const version = "1.0.0"

//	@title			Inventory Fulfillment API
//	@version		1.0
//	@description	Multi-warehouse stock ledger with order reservation, backorders and transfers

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	})
	if err != nil {
		panic("Failed to initialize log export: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Export:     logsProvider.Provider(),
		ExportName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync(log)

	log.Info("Starting inventory fulfillment service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("log_export", logsProvider.Provider() != nil),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	var busOpts []event.BusOption
	if cfg.Notifier.Workers > 0 {
		busOpts = append(busOpts, event.WithAsyncDispatch(cfg.Notifier.Workers, cfg.Notifier.BufferSize))
	}
	bus := event.NewInMemoryEventBus(log, busOpts...)
	serializer := event.NewRegisteredSerializer()

	core := appinventory.NewCore(bus, appinventory.CoreConfig{
		BackorderLeadTime:        cfg.Fulfillment.BackorderLeadTime,
		DefaultLowStockThreshold: cfg.Fulfillment.DefaultLowStockThreshold,
	}, log)

	svcOpts := []appinventory.Option{
		appinventory.WithDefaultBackorderPolicy(fulfillment.BackorderPolicy(cfg.Fulfillment.DefaultBackorderPolicy)),
	}
	metrics, err := telemetry.NewInventoryMetrics(meterProvider.Meter("inventory"), log)
	if err != nil {
		log.Fatal("Failed to create inventory metrics", zap.Error(err))
	}
	bus.Subscribe(metrics)
	svcOpts = append(svcOpts, appinventory.WithOperationRecorder(metrics))
	service := appinventory.NewInventoryService(core, log, svcOpts...)

	alerts := appinventory.NewStockAlertHandler(log).
		WithNotifier(appinventory.NewLoggingStockAlertNotifier(log)).
		WithMinInterval(cfg.Fulfillment.AlertMinInterval)

	var closers []io.Closer
	system := handler.NewSystemHandler(service, cfg.App.Name, version).WithSubscriptions(bus)

	if cfg.Notifier.JournalEnabled {
		db, err := persistence.NewDatabase(&cfg.Database, persistence.DatabaseOptions{
			Logger:        log,
			LogLevel:      logger.MapGormLogLevel(cfg.Log.Level),
			SlowThreshold: cfg.Telemetry.DBSlowQueryThresh,
			Tracing: telemetry.DBTracingConfig{
				Enabled:         cfg.Telemetry.DBTraceEnabled,
				LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
				SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
				DBSystem:        "postgresql",
			},
		})
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		closers = append(closers, db)
		bus.Subscribe(persistence.NewGormEventJournal(db.DB, serializer, log))
		alerts.WithNotifier(persistence.NewGormStockAlertStore(db.DB))
		system.WithPinger("database", db)
		log.Info("Event journal enabled")
	}

	if cfg.Notifier.CacheEnabled {
		availability, err := cache.NewAvailabilityCache(cfg.Redis, log, true)
		if err != nil {
			log.Fatal("Failed to create availability cache", zap.Error(err))
		}
		if c, ok := availability.(io.Closer); ok {
			closers = append(closers, c)
		}
		bus.Subscribe(cache.NewAvailabilityProjection(availability, log))
		log.Info("Availability projection enabled")
	}

	if cfg.Notifier.KafkaEnabled {
		producer, err := messaging.NewKafkaProducer(cfg.Kafka, cfg.Telemetry.ServiceName)
		if err != nil {
			log.Fatal("Failed to create kafka producer", zap.Error(err))
		}
		publisher := messaging.NewKafkaEventPublisher(producer, serializer, cfg.Kafka.WriteTimeout, log)
		closers = append(closers, publisher)
		bus.Subscribe(publisher)
		alerts.WithNotifier(publisher)
		log.Info("Kafka fan-out enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	bus.Subscribe(alerts)

	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	metrics.StartPeriodicCollection(ctx, service, cfg.Telemetry.StatsInterval)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		Meter:          meterProvider.Meter("http.server"),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		log.Fatal("Failed to configure HTTP engine", zap.Error(err))
	}
	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(system).
		Register(handler.NewCatalogHandler(service)).
		Register(handler.NewWarehouseHandler(service)).
		Register(handler.NewStockHandler(service)).
		Register(handler.NewOrderHandler(service)).
		Register(handler.NewBackorderHandler(service)).
		Setup()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	metrics.Stop()
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus did not drain", zap.Error(err))
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Error("Error closing resource", zap.Error(err))
		}
	}
	shutdownTelemetry(shutdownCtx, tracerProvider, meterProvider, log)

	log.Info("Server exited gracefully", zap.Duration("uptime", time.Since(startedAt)))
	logger.Sync(log)
	if err := logsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Log export shutdown failed", zap.Error(err))
	}
}

var startedAt = time.Now()

func shutdownTelemetry(ctx context.Context, tp *telemetry.TracerProvider, mp *telemetry.MeterProvider, log *zap.Logger) {
	if err := mp.Shutdown(ctx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tp.Shutdown(ctx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}
}
