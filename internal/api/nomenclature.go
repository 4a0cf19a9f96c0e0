package api

import (
	"encoding/json"
	"net/http"

	"approval-tracker/internal/domain"
	"approval-tracker/internal/nomenclature"
)

type parseRequest struct {
	Filename string                `json:"filename"`
	Context  *nomenclature.Context `json:"context,omitempty"`
}

type resolveResponse struct {
	Version   string               `json:"version"`
	Display   string               `json:"display"`
	State     domain.WorkflowState `json:"state"`
	Progress  int                  `json:"progress"`
	Submitter domain.Submitter     `json:"submitter"`
}

type validateRequest struct {
	Filename       string               `json:"filename"`
	CurrentVersion string               `json:"current_version"`
	CurrentState   domain.WorkflowState `json:"current_state"`
	Action         domain.Action        `json:"action"`
}

// ParseFilename always answers 200; an invalid name is a result with errors.
func (h *Handler) ParseFilename(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.Context != nil {
		writeJSON(w, http.StatusOK, nomenclature.ParseWithContext(req.Filename, *req.Context))
		return
	}
	writeJSON(w, http.StatusOK, nomenclature.Parse(req.Filename))
}

func (h *Handler) ResolveVersion(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	res := nomenclature.Resolve(version)
	writeJSON(w, http.StatusOK, resolveResponse{
		Version:   version,
		Display:   nomenclature.FormatForDisplay(version),
		State:     res.State,
		Progress:  res.Progress,
		Submitter: nomenclature.SubmitterFor(version),
	})
}

func (h *Handler) ValidateTransition(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if !req.CurrentState.IsValid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "current_state is not a known state"})
		return
	}
	writeJSON(w, http.StatusOK, nomenclature.ValidateTransitionVersion(req.Filename, req.CurrentVersion, req.CurrentState, req.Action))
}
