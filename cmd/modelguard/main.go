package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"modelguard/internal/alerting"
	"modelguard/internal/alerts"
	"modelguard/internal/api"
	"modelguard/internal/config"
	"modelguard/internal/engine"
	"modelguard/internal/ingest"
	"modelguard/internal/ledger"
	"modelguard/internal/logging"
	"modelguard/internal/metrics"
	"modelguard/internal/model"
	"modelguard/internal/notify"
	"modelguard/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "modelguard.yaml", "path to config file")
	flag.Parse()

	if err := run(config.ResolvePath(*configPath)); err != nil {
		fmt.Fprintln(os.Stderr, "modelguard:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	manager, err := config.NewManager(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.ModelName)
	logger.Info("starting modelguard", "version", version, "config", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		defer store.Close()
	}

	notifier, err := notify.FromConfig(cfg.Alerting.Notifier, cfg.ModelName, logger)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	dispatcher := alerting.NewDispatcher(alerting.Config{
		Floor:           cfg.AlertFloor(),
		Cooldown:        cfg.Alerting.Cooldown,
		QueueSize:       cfg.Alerting.QueueSize,
		DeliveryTimeout: cfg.Alerting.DeliveryTimeout,
	}, notifier, alertsStore, logger, m)
	go dispatcher.Run(ctx)

	incidents := ledger.New(cfg.Ledger.Retention, cfg.Ledger.StoreLimit, cfg.Ledger.TopN)
	detector, err := engine.NewDetector(cfg, logger, incidents, dispatcher, store, m)
	if err != nil {
		return fmt.Errorf("build detector: %w", err)
	}
	detector.StartSweeper(ctx)

	events := make(chan model.RawEvent, cfg.Ingest.ChannelBuffer)
	detector.Start(ctx, events)
	ingest.StartREST(ctx, cfg.Ingest.REST, events, logger)
	ingest.StartKafka(ctx, cfg.Ingest.Kafka, events, logger)
	ingest.StartRedis(ctx, cfg.Ingest.Redis, events, logger)
	ingest.StartFileTail(ctx, cfg.Ingest.FileTail, events, logger)

	err = manager.Watch(ctx, func(next *config.Config) {
		if err := detector.UpdateConfig(next); err != nil {
			logger.Error("config reload rejected", "err", err)
			return
		}
		logger.Info("config reloaded")
	}, func(err error) {
		logger.Warn("config watch error", "err", err)
	})
	if err != nil {
		logger.Warn("config watch unavailable", "err", err)
	}

	api.Start(ctx, manager, incidents, alertsStore, detector, registry, logger, version)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
