package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	appTemporal "approval-tracker/internal/temporal"
)

type syncRequest struct {
	DocumentIDs []string `json:"document_ids,omitempty"`
	BatchSize   int      `json:"batch_size,omitempty"`
}

func (h *Handler) ListInconsistencies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	findings, err := h.auditor.Inconsistencies(ctx, filterFromQuery(r))
	if err != nil {
		h.fail(w, "failed to scan documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": findings})
}

func (h *Handler) IgnoreInconsistency(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, ok := h.manager(w, r)
	if !ok {
		return
	}
	doc, err := h.auditor.Ignore(ctx, chi.URLParam(r, "documentId"))
	if err != nil {
		h.fail(w, "failed to ignore inconsistency", err)
		return
	}
	h.logger.Info("inconsistency ignored by user",
		zap.String("document_id", doc.ID),
		zap.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, doc)
}

// StartResync hands the bulk sync to a ConsistencyResyncWorkflow and returns
// immediately; progress is available through the workflow query.
func (h *Handler) StartResync(w http.ResponseWriter, r *http.Request) {
	user, ok := h.manager(w, r)
	if !ok {
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.BatchSize <= 0 {
		req.BatchSize = h.cfg.SyncBatchSize
	}

	workflowID := fmt.Sprintf("%s-resync-%s", h.cfg.WorkflowIDPrefix, uuid.NewString())
	run, err := h.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.cfg.TemporalTaskQueue,
	}, appTemporal.ConsistencyResyncWorkflowName, appTemporal.ResyncInput{
		ActorID:     user.ID,
		DocumentIDs: req.DocumentIDs,
		BatchSize:   req.BatchSize,
	})
	if err != nil {
		h.logger.Error("start resync workflow", zap.String("workflow_id", workflowID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to start resync"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
		"batch_size":  req.BatchSize,
	})
}
