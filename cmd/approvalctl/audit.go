package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"approval-tracker/internal/audit"
	"approval-tracker/internal/config"
	"approval-tracker/internal/domain"
	"approval-tracker/internal/engine"
	"approval-tracker/internal/logging"
	"approval-tracker/internal/storage"
)

type driftAuditor interface {
	Inconsistencies(ctx context.Context, filter domain.DocumentFilter) ([]audit.Finding, error)
	SyncAll(ctx context.Context, documentIDs []string, actorID string) (audit.SyncReport, error)
}

type auditReport struct {
	Inconsistent int               `json:"inconsistent"`
	Findings     []audit.Finding   `json:"findings"`
	Sync         *audit.SyncReport `json:"sync,omitempty"`
}

func newAuditCmd() *cobra.Command {
	var sync bool
	var project, microprocess string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Scan stored documents for state drift, optionally syncing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.Must(cfg.LogLevel, cfg.LogFormat)
			defer func() { _ = logger.Sync() }()

			store, err := storage.NewPostgresStore(cfg.PostgresDSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer store.Close()

			eng := &engine.Engine{Store: store, Logger: logger.Named("engine")}
			auditor := &audit.Auditor{
				Store:     store,
				Syncer:    eng,
				Logger:    logger.Named("audit"),
				BatchSize: cfg.SyncBatchSize,
			}
			filter := domain.DocumentFilter{Project: domain.Project(project), Microprocess: microprocess}
			return runAudit(cmd.Context(), cmd.OutOrStdout(), auditor, filter, sync, logger)
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "re-derive state from the version for every flagged document")
	cmd.Flags().StringVar(&project, "project", "", "only scan this project")
	cmd.Flags().StringVar(&microprocess, "microprocess", "", "only scan this microprocess")
	return cmd
}

func runAudit(ctx context.Context, out io.Writer, a driftAuditor, filter domain.DocumentFilter, sync bool, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	findings, err := a.Inconsistencies(ctx, filter)
	if err != nil {
		return err
	}
	report := auditReport{Inconsistent: len(findings), Findings: findings}

	if sync && len(findings) > 0 {
		res, syncErr := a.SyncAll(ctx, audit.IDs(findings), domain.SystemActorID)
		if syncErr != nil {
			logger.Warn("sync interrupted", zap.Error(syncErr))
		}
		report.Sync = &res
		if err := printJSON(out, report); err != nil {
			return err
		}
		if syncErr != nil || len(res.Failed) > 0 {
			return errRejected
		}
		return nil
	}
	return printJSON(out, report)
}
