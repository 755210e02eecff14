package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"panel-energy/internal/audit"
	"panel-energy/internal/config"
	"panel-energy/internal/live"
	"panel-energy/internal/live/sink"
	"panel-energy/internal/observability/logging"
	"panel-energy/internal/observability/metrics"
	"panel-energy/internal/reporting/application"
	"panel-energy/internal/reporting/application/eventbus"
	reportrepo "panel-energy/internal/reporting/infrastructure/postgres"
	reportinterfaces "panel-energy/internal/reporting/interfaces"
	reporthttp "panel-energy/internal/reporting/interfaces/http"
	"panel-energy/internal/scheduling"
	telemetrypostgres "panel-energy/internal/telemetry/infrastructure/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}
	metrics.Init(db, logger)

	readings, err := telemetrypostgres.NewReadingQuery(db, cfg.Views())
	if err != nil {
		logger.Fatal("telemetry query error", zap.Error(err))
	}
	store, err := reportrepo.NewReportStore(db)
	if err != nil {
		logger.Fatal("report store error", zap.Error(err))
	}

	schedules, err := cfg.Schedules()
	if err != nil {
		logger.Fatal("schedule error", zap.Error(err))
	}
	sources := make([]application.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sources = append(sources, application.Source{ID: src.ID, Schedule: schedules[src.ID], CapacityKW: src.CapacityKW})
	}

	broker := sink.NewSSEBroker()
	sinks := []sink.PublishSink{broker}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed, publishing anyway", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		redisSink, err := sink.NewRedisSink(client)
		if err != nil {
			logger.Fatal("redis sink error", zap.Error(err))
		}
		sinks = append(sinks, redisSink)
	}
	publishSink := sink.NewMulti(sinks...)

	reportSink := sink.PublishSink(publishSink)
	if cfg.ReportWebhookURL != "" {
		webhook, err := sink.NewWebhookSink(cfg.ReportWebhookURL, nil)
		if err != nil {
			logger.Fatal("report webhook error", zap.Error(err))
		}
		reportSink = sink.NewMulti(publishSink, webhook)
	}

	bus := eventbus.NewInMemoryBus()
	forwarder, err := reportinterfaces.NewReportForwarder(reportSink, reportinterfaces.DefaultReportTopicPrefix)
	if err != nil {
		logger.Fatal("report forwarder error", zap.Error(err))
	}
	forwarder.Subscribe(bus)

	svc, err := application.NewReportService(readings, store, sources,
		application.WithLogger(logger),
		application.WithEventBus(bus),
		application.WithSamplingInterval(cfg.SamplingInterval),
		application.WithMaxRangeDays(cfg.MaxRangeDays),
	)
	if err != nil {
		logger.Fatal("report service error", zap.Error(err))
	}

	scheduler, err := application.NewScheduler(svc, application.SchedulerConfig{
		HourlySettleMinute: cfg.HourlySettleMinute,
		DayCloseAt:         cfg.DayCloseAt,
		RetentionDays:      cfg.RetentionDays,
	}, logger)
	if err != nil {
		logger.Fatal("scheduler error", zap.Error(err))
	}
	runner := scheduling.NewRunner(scheduling.SystemClock{}, logger)
	runner.Go(ctx, scheduler.Tasks()...)

	registry := live.NewRegistry(publishSink,
		live.WithLogger(logger),
		live.WithTopicPrefix(cfg.Live.TopicPrefix),
		live.WithDefaultInterval(cfg.Live.Interval),
	)
	defer registry.StopAll()
	for _, id := range cfg.Live.Autostart {
		registry.Start(id, live.FromLatestSource(readings, id), cfg.Live.Interval)
	}

	auditRepo, err := audit.NewRepository(db)
	if err != nil {
		logger.Fatal("audit repo error", zap.Error(err))
	}
	handler, err := reporthttp.NewHandler(svc,
		reporthttp.WithLive(registry, readings, cfg.Live.Interval),
		reporthttp.WithAudit(auditRepo),
		reporthttp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("report handler error", zap.Error(err))
	}
	stream := sink.NewStreamHandler(broker, cfg.Live.TopicPrefix, forwarder.Prefix())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           reporthttp.NewRouter(handler, stream, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	logger.Info("http listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Strings("sources", cfg.SourceIDs()),
		zap.Int("tasks", len(scheduler.Tasks())),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
	runner.Wait()
	logger.Info("shutdown complete")
}
