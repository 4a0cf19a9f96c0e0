package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"approval-tracker/internal/api"
	"approval-tracker/internal/audit"
	"approval-tracker/internal/config"
	"approval-tracker/internal/engine"
	"approval-tracker/internal/hierarchy"
	"approval-tracker/internal/logging"
	"approval-tracker/internal/metrics"
	"approval-tracker/internal/notify"
	"approval-tracker/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("load config", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer store.Close()

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("postgres ping", zap.Error(err))
	}

	lookup, err := hierarchy.Load(cfg.HierarchyFile)
	if err != nil {
		logger.Fatal("load hierarchy", zap.Error(err))
	}

	notifier, closeNotifier := notify.New(cfg.RedisAddr, cfg.NotifyChannel, store, logger)
	defer func() { _ = closeNotifier() }()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	recorder := metrics.New()
	eng := &engine.Engine{
		Store:     store,
		Files:     blob,
		Notifier:  notifier,
		Hierarchy: lookup,
		Metrics:   recorder,
		Logger:    logger.Named("engine"),
	}
	auditor := &audit.Auditor{
		Store:     store,
		Syncer:    eng,
		Metrics:   recorder,
		Logger:    logger.Named("audit"),
		BatchSize: cfg.SyncBatchSize,
	}

	h := api.NewHandler(cfg, api.Deps{
		Store:    store,
		Engine:   eng,
		Auditor:  auditor,
		Temporal: temporalClient,
		Metrics:  recorder.Handler(),
		Logger:   logger.Named("http"),
	})
	router := api.NewRouter(h)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
