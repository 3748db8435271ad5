package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// RecordApproval records a reviewer sign-off for a run and, if the run is
// blocked, immediately re-evaluates its gate. Returns the run after the
// attempt: 200 terminal, 202 still blocked.
func (h *Handlers) RecordApproval(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var body struct {
		Reviewer string `json:"reviewer"`
		Comment  string `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if strings.TrimSpace(body.Reviewer) == "" {
		h.writeError(w, http.StatusBadRequest, "reviewer is required", nil)
		return
	}

	err := h.orch.RecordApproval(r.Context(), types.Approval{
		RunID:      runID,
		Reviewer:   body.Reviewer,
		Comment:    body.Comment,
		RecordedAt: time.Now(),
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "run not found", nil)
		return
	case err != nil:
		h.writeError(w, http.StatusConflict, err.Error(), nil)
		return
	}

	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to get run", err)
		return
	}

	if run.Status == types.RunBlocked {
		resumed, rerr := h.orch.Resume(r.Context(), runID)
		if resumed != nil {
			run = resumed
		}
		if rerr != nil {
			h.logger.Warn("resume after approval", "run", runID, "error", rerr)
		}
	}

	if run.Status == types.RunBlocked {
		w.WriteHeader(http.StatusAccepted)
	}
	_ = json.NewEncoder(w).Encode(run)
}

// ListApprovals returns the approvals recorded for a run.
func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	approvals, err := h.store.ListApprovals(r.Context(), runID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list approvals", err)
		return
	}
	if approvals == nil {
		approvals = []types.Approval{}
	}
	_ = json.NewEncoder(w).Encode(approvals)
}
