package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"approval-tracker/internal/audit"
	"approval-tracker/internal/config"
	"approval-tracker/internal/engine"
	"approval-tracker/internal/hierarchy"
	"approval-tracker/internal/logging"
	"approval-tracker/internal/metrics"
	"approval-tracker/internal/notify"
	"approval-tracker/internal/scheduler"
	"approval-tracker/internal/storage"
	appTemporal "approval-tracker/internal/temporal"
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

	activities := &appTemporal.Activities{
		Documents: store,
		Auditor:   auditor,
		Engine:    eng,
		Blob:      blob,
		Logger:    logger.Named("activities"),
	}

	drift := scheduler.NewDriftScanner(auditor, logger.Named("drift"))
	if err := drift.Schedule(cfg.DriftScanCron); err != nil {
		logger.Fatal("schedule drift scan", zap.Error(err))
	}
	drift.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		drift.Stop(ctx)
	}()

	if cfg.MetricsPort != "" {
		ops := &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           newOpsRouter(recorder.Handler(), drift),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("ops listening", zap.String("port", cfg.MetricsPort))
			if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ops.Shutdown(ctx)
		}()
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.ConsistencyResyncWorkflow, workflow.RegisterOptions{Name: appTemporal.ConsistencyResyncWorkflowName})
	w.RegisterWorkflowWithOptions(appTemporal.VersionUploadWorkflow, workflow.RegisterOptions{Name: appTemporal.VersionUploadWorkflowName})
	w.RegisterActivity(activities.ScanInconsistenciesActivity)
	w.RegisterActivity(activities.SyncChunkActivity)
	w.RegisterActivity(activities.ValidateUploadActivity)
	w.RegisterActivity(activities.RegisterVersionActivity)

	logger.Info("worker running", zap.String("task_queue", cfg.TemporalTaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
}
