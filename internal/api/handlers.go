package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"approval-tracker/internal/audit"
	"approval-tracker/internal/config"
	"approval-tracker/internal/domain"
	"approval-tracker/internal/engine"
)

// UserHeader carries the id of the user acting on a request.
const UserHeader = "X-User-ID"

type DocumentStore interface {
	Ping(ctx context.Context) error
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
	ListHistory(ctx context.Context, documentID string) ([]domain.HistoryEntry, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type DocumentEngine interface {
	Create(ctx context.Context, in engine.CreateInput) (domain.Document, error)
	Transition(ctx context.Context, in engine.TransitionInput) (domain.Document, error)
	RevertLastTransition(ctx context.Context, documentID string) (bool, error)
	SyncMetadata(ctx context.Context, documentID, actorID string) (bool, error)
	ReplaceCurrentFile(ctx context.Context, documentID, actorID string, stage domain.WorkflowState, upload engine.Upload) (domain.Document, error)
}

type DriftAuditor interface {
	Inconsistencies(ctx context.Context, filter domain.DocumentFilter) ([]audit.Finding, error)
	Ignore(ctx context.Context, documentID string) (domain.Document, error)
}

// WorkflowStarter is the part of client.Client the API uses.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

type Deps struct {
	Store    DocumentStore
	Engine   DocumentEngine
	Auditor  DriftAuditor
	Temporal WorkflowStarter
	Metrics  http.Handler
	Logger   *zap.Logger
}

type Handler struct {
	cfg      config.Config
	store    DocumentStore
	engine   DocumentEngine
	auditor  DriftAuditor
	temporal WorkflowStarter
	metrics  http.Handler
	logger   *zap.Logger
}

func NewHandler(cfg config.Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		store:    deps.Store,
		engine:   deps.Engine,
		auditor:  deps.Auditor,
		temporal: deps.Temporal,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.NotFound(w, r)
		return
	}
	h.metrics.ServeHTTP(w, r)
}

// actor loads the user named by UserHeader. It writes the error response
// itself and reports false when the request cannot proceed.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	id := r.Header.Get(UserHeader)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": UserHeader + " header is required"})
		return domain.User{}, false
	}
	user, err := h.store.GetUser(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": fmt.Sprintf("unknown user %q", id)})
		return domain.User{}, false
	}
	if err != nil {
		h.fail(w, "failed to load user", err)
		return domain.User{}, false
	}
	return user, true
}

func (h *Handler) manager(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user, ok := h.actor(w, r)
	if !ok {
		return user, false
	}
	if !user.Role.IsManager() {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": fmt.Sprintf("role %s may not perform this operation", user.Role)})
		return user, false
	}
	return user, true
}

// fail maps err to a response. Not-found errors become 404; everything else
// is logged and reported with msg.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	h.logger.Error(msg, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": msg})
}

// parseForm accepts multipart and urlencoded bodies alike.
func (h *Handler) parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

var errUploadTooLarge = errors.New("file exceeds size limit")

// formUpload reads the optional "file" field. A missing field is not an error.
func (h *Handler) formUpload(r *http.Request) (*engine.Upload, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readUpload(file, header, h.cfg.AllowedUploadBytes)
}

func readUpload(file multipart.File, header *multipart.FileHeader, limit int64) (*engine.Upload, error) {
	body, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, errUploadTooLarge
	}
	return &engine.Upload{Filename: header.Filename, Content: body}, nil
}

func filterFromQuery(r *http.Request) domain.DocumentFilter {
	q := r.URL.Query()
	return domain.DocumentFilter{
		Project:      domain.Project(q.Get("project")),
		Microprocess: q.Get("microprocess"),
		DocType:      domain.DocType(q.Get("doc_type")),
		State:        domain.WorkflowState(q.Get("state")),
		AssigneeID:   q.Get("assignee"),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
