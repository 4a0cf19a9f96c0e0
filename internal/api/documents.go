package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"approval-tracker/internal/domain"
	"approval-tracker/internal/engine"
	"approval-tracker/internal/nomenclature"
)

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	author, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.parseForm(r); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid form payload"})
		return
	}
	upload, err := h.formUpload(r)
	if err != nil {
		h.badUpload(w, err)
		return
	}

	in := engine.CreateInput{
		ExistingID:     strings.TrimSpace(r.FormValue("existing_id")),
		Title:          strings.TrimSpace(r.FormValue("title")),
		Description:    strings.TrimSpace(r.FormValue("description")),
		AuthorID:       author.ID,
		InitialState:   domain.WorkflowState(r.FormValue("initial_state")),
		InitialVersion: strings.TrimSpace(r.FormValue("initial_version")),
		Hierarchy: domain.HierarchyRefs{
			Project:      domain.Project(r.FormValue("project")),
			Macroprocess: r.FormValue("macroprocess"),
			Process:      r.FormValue("process"),
			Microprocess: r.FormValue("microprocess"),
			DocType:      domain.DocType(r.FormValue("doc_type")),
		},
		File: upload,
	}
	if in.InitialState != "" && !in.InitialState.IsValid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("unknown initial_state %q", in.InitialState)})
		return
	}
	if in.InitialState != "" && !author.Role.IsManager() {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": fmt.Sprintf("role %s may not set initial_state", author.Role)})
		return
	}

	expected := nomenclature.Context{
		Project:      in.Hierarchy.Project,
		Microprocess: in.Hierarchy.Microprocess,
		DocType:      in.Hierarchy.DocType,
	}
	current := ""
	if in.ExistingID != "" {
		doc, err := h.store.GetDocument(ctx, in.ExistingID)
		if err != nil {
			h.fail(w, "failed to fetch document", err)
			return
		}
		expected = nomenclature.Context{
			Project:      doc.Hierarchy.Project,
			Microprocess: doc.Hierarchy.Microprocess,
			DocType:      doc.Hierarchy.DocType,
		}
		current = doc.Version
	} else {
		if in.Title == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "title is required"})
			return
		}
		if in.Hierarchy.Project != "" && !in.Hierarchy.Project.IsValid() {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("unknown project %q", in.Hierarchy.Project)})
			return
		}
	}

	if upload != nil {
		res := nomenclature.ParseWithContext(upload.Filename, expected)
		if !res.Valid {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": res.Errors})
			return
		}
		if in.InitialVersion != "" && in.InitialVersion != res.Tokens.Nomenclature {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"errors": []string{fmt.Sprintf("initial_version %q does not match the file's version %q", in.InitialVersion, res.Tokens.Nomenclature)},
			})
			return
		}
		in.InitialVersion = res.Tokens.Nomenclature
	}
	if in.InitialVersion != "" {
		if author.Role.IsManager() {
			// Managers may import legacy versions the strict grammar rejects.
			if current != "" && nomenclature.Compare(in.InitialVersion, current) < 0 {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"errors": []string{fmt.Sprintf("version %q precedes the current version %q", in.InitialVersion, current)},
				})
				return
			}
		} else if res := nomenclature.ValidateSubmission(in.InitialVersion, current, author.Role); !res.Valid {
			writeJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
	}

	doc, err := h.engine.Create(ctx, in)
	if err != nil {
		h.fail(w, "failed to create document", err)
		return
	}
	status := http.StatusCreated
	if in.ExistingID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, doc)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	docs, err := h.store.ListDocuments(ctx, filterFromQuery(r))
	if err != nil {
		h.fail(w, "failed to list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	doc, err := h.store.GetDocument(ctx, chi.URLParam(r, "documentId"))
	if err != nil {
		h.fail(w, "failed to fetch document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	documentID := chi.URLParam(r, "documentId")
	if _, err := h.store.GetDocument(ctx, documentID); err != nil {
		h.fail(w, "failed to fetch document", err)
		return
	}
	items, err := h.store.ListHistory(ctx, documentID)
	if err != nil {
		h.fail(w, "failed to fetch history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Transition applies an action. Decisions are checked by the rule validator
// against the reviewed version, taken from the attached file, the version
// field or the stored version in that order. Any other version change must be
// one the caller's role may submit. Nothing is written when a check fails.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.parseForm(r); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid form payload"})
		return
	}
	action := domain.Action(strings.ToUpper(strings.TrimSpace(r.FormValue("action"))))
	if !action.IsRequestable() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("unsupported action %q", action)})
		return
	}
	if !domain.CanPerform(user.Role, action) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": fmt.Sprintf("role %s may not %s", user.Role, action)})
		return
	}
	upload, err := h.formUpload(r)
	if err != nil {
		h.badUpload(w, err)
		return
	}

	in := engine.TransitionInput{
		DocumentID: chi.URLParam(r, "documentId"),
		ActorID:    user.ID,
		Action:     action,
		Comment:    r.FormValue("comment"),
		Version:    strings.TrimSpace(r.FormValue("version")),
	}
	if action != domain.ActionComment && (upload != nil || in.Version != "" || action.IsDecision()) {
		doc, err := h.store.GetDocument(ctx, in.DocumentID)
		if err != nil {
			h.fail(w, "failed to fetch document", err)
			return
		}
		if upload != nil {
			parsed := nomenclature.ParseWithContext(upload.Filename, nomenclature.Context{
				Project:      doc.Hierarchy.Project,
				Microprocess: doc.Hierarchy.Microprocess,
				DocType:      doc.Hierarchy.DocType,
			})
			if !parsed.Valid {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": parsed.Errors})
				return
			}
			if in.Version != "" && in.Version != parsed.Tokens.Nomenclature {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"errors": []string{fmt.Sprintf("version %q does not match the file's version %q", in.Version, parsed.Tokens.Nomenclature)},
				})
				return
			}
			in.Version = parsed.Tokens.Nomenclature
			in.File = upload
		}

		var res nomenclature.ValidationResult
		if action.IsDecision() {
			// Without a new version the decision applies to the stored one.
			reviewed := in.Version
			if reviewed == "" {
				reviewed = doc.Version
			}
			res = nomenclature.ValidateDecisionVersion(reviewed, doc.Version, doc.State, action)
		} else {
			res = nomenclature.ValidateSubmission(in.Version, doc.Version, user.Role)
		}
		if !res.Valid {
			writeJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
	}

	doc, err := h.engine.Transition(ctx, in)
	if err != nil {
		h.fail(w, "failed to apply transition", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) RevertLastTransition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, ok := h.manager(w, r); !ok {
		return
	}
	documentID := chi.URLParam(r, "documentId")
	deleted, err := h.engine.RevertLastTransition(ctx, documentID)
	if err != nil {
		h.fail(w, "failed to revert transition", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "deleted": deleted})
}

func (h *Handler) SyncDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	documentID := chi.URLParam(r, "documentId")
	changed, err := h.engine.SyncMetadata(ctx, documentID, user.ID)
	if err != nil {
		h.fail(w, "failed to sync document", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "changed": changed})
}

// ReplaceFile swaps the file held in one stage slot without touching state.
func (h *Handler) ReplaceFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	stage, valid := domain.ParseWorkflowState(chi.URLParam(r, "stage"))
	if !valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("unknown stage %q", stage)})
		return
	}
	if err := h.parseForm(r); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid form payload"})
		return
	}
	upload, err := h.formUpload(r)
	if err != nil {
		h.badUpload(w, err)
		return
	}
	if upload == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file form field is required"})
		return
	}

	documentID := chi.URLParam(r, "documentId")
	current, err := h.store.GetDocument(ctx, documentID)
	if err != nil {
		h.fail(w, "failed to fetch document", err)
		return
	}
	parsed := nomenclature.ParseWithContext(upload.Filename, nomenclature.Context{
		Project:      current.Hierarchy.Project,
		Microprocess: current.Hierarchy.Microprocess,
		DocType:      current.Hierarchy.DocType,
	})
	if !parsed.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": parsed.Errors})
		return
	}

	doc, err := h.engine.ReplaceCurrentFile(ctx, documentID, user.ID, stage, *upload)
	if err != nil {
		h.fail(w, "failed to replace file", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) badUpload(w http.ResponseWriter, err error) {
	if errors.Is(err, errUploadTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read file"})
}
