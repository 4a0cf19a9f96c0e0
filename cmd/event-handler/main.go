package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"approval-tracker/internal/config"
	"approval-tracker/internal/events"
	"approval-tracker/internal/logging"
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

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	source := events.NewMinioUploadEventSource(blob.Client(), blob.Bucket(), cfg.MinioInboxPrefix, logger.Named("events"))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("event-handler listening for inbox drops",
		zap.String("bucket", cfg.MinioBucket),
		zap.String("prefix", cfg.MinioInboxPrefix))
	err = source.Run(ctx, func(parent context.Context, event events.UploadEvent) error {
		// One workflow per dropped object; duplicate notifications collapse onto it.
		workflowID := fmt.Sprintf("%s-upload-%s-%s", cfg.WorkflowIDPrefix, event.DocumentID, event.Filename)
		execCtx, cancel := context.WithTimeout(parent, 15*time.Second)
		defer cancel()

		_, startErr := temporalClient.ExecuteWorkflow(execCtx, client.StartWorkflowOptions{
			ID:        workflowID,
			TaskQueue: cfg.TemporalTaskQueue,
		}, appTemporal.VersionUploadWorkflowName, appTemporal.VersionUploadInput{
			DocumentID: event.DocumentID,
			Filename:   event.Filename,
			ObjectKey:  event.ObjectKey,
		})
		if startErr != nil {
			var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(startErr, &alreadyStarted) {
				logger.Info("workflow already started",
					zap.String("object_key", event.ObjectKey),
					zap.String("workflow_id", workflowID))
				return nil
			}
			return fmt.Errorf("start workflow for object %s: %w", event.ObjectKey, startErr)
		}

		logger.Info("started workflow",
			zap.String("workflow_id", workflowID),
			zap.String("object_key", event.ObjectKey))
		return nil
	})
	if err != nil {
		logger.Fatal("event-handler stopped with error", zap.Error(err))
	}
}
