package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"series_fetcher/internal/config"
	"series_fetcher/internal/publisher"
	"series_fetcher/internal/scheduler"
	"series_fetcher/internal/service"
	"series_fetcher/internal/source"
	"series_fetcher/internal/source/alphavantage"
	"series_fetcher/internal/source/csvfile"
	"series_fetcher/internal/source/dbnomics"
	"series_fetcher/internal/source/eurostat"
	"series_fetcher/internal/source/fred"
	"series_fetcher/internal/source/worldbank"
	"series_fetcher/internal/source/yahoo"
	"series_fetcher/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	refreshSlug := flag.String("refresh", "", "fetch one series by slug and exit")
	runBucket := flag.String("run", "", "run one bucket (hourly, daily, weekly, cleanup) and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	txManager := postgres.NewTransactionManager(db)
	seriesStore := postgres.NewSeriesStore(db, txManager)
	logStore := postgres.NewLogStore(db)
	observationStore := postgres.NewObservationStore(db, logStore)
	settingsStore := postgres.NewSettingsStore(db)

	registry := buildRegistry(cfg.Sources, logger)

	collector := service.NewCollector(registry, seriesStore, observationStore, logStore, logger)

	sched := scheduler.New(collector, logStore, settingsStore, rabbitMQ, cfg.Schedule, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One-shot modes for cron jobs and manual runs.
	if *refreshSlug != "" {
		res := collector.FetchSeries(ctx, *refreshSlug)
		if !res.OK {
			logger.Error("refresh failed", "slug", *refreshSlug, "message", res.Message)
			os.Exit(1)
		}
		fmt.Println(res.Message)
		return
	}
	if *runBucket != "" {
		if err := sched.RunBucket(ctx, *runBucket); err != nil {
			logger.Error("bucket run failed", "bucket", *runBucket, "error", err)
			os.Exit(1)
		}
		return
	}

	if settingsStore.GetBool(ctx, postgres.SettingAutoUpdate, true) {
		if err := sched.EnsureScheduled(); err != nil {
			logger.Error("failed to schedule buckets", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("auto update disabled, running without schedules")
	}

	sched.Start()
	logger.Info("series syncer started", "sources", registry.Types())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	sched.Stop()
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func buildRegistry(cfg config.SourcesConfig, logger *slog.Logger) *source.Registry {
	registry := source.NewRegistry()
	registry.Register(fred.New(fred.Config{APIKey: cfg.FREDAPIKey, Timeout: cfg.Timeout}, logger))
	registry.Register(worldbank.New(worldbank.Config{Timeout: cfg.Timeout}, logger))
	registry.Register(alphavantage.New(alphavantage.Config{APIKey: cfg.AlphaVantageAPIKey, Timeout: cfg.Timeout}, logger))
	registry.Register(dbnomics.New(dbnomics.Config{Timeout: cfg.Timeout}, logger))
	registry.Register(eurostat.New(eurostat.Config{Timeout: cfg.Timeout}, logger))
	registry.Register(yahoo.New(yahoo.Config{Timeout: cfg.Timeout}, logger))
	registry.Register(csvfile.New(csvfile.Config{Timeout: cfg.Timeout}, logger))
	return registry
}
