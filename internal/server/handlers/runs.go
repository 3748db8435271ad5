package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/tfgate/internal/orchestrator"
	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// StartRun ingests a trigger event and drives a run through the pipeline.
// The request blocks until the run reaches a terminal or parked state:
// 200 for terminal runs, 202 when the run is blocked awaiting approval.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	var event types.TriggerEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	run, err := h.orch.Run(r.Context(), event)
	if run == nil {
		h.writeError(w, http.StatusInternalServerError, "failed to start run", err)
		return
	}
	if err != nil {
		h.logger.Warn("run ended with failure", "run", run.RunID, "error", err)
	}

	if run.Status == types.RunBlocked {
		w.WriteHeader(http.StatusAccepted)
	}
	_ = json.NewEncoder(w).Encode(run)
}

// GetRun returns a single run record.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "run not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to get run", err)
		return
	}
	_ = json.NewEncoder(w).Encode(run)
}

// ListRuns returns recent runs across all environments.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.listRuns(w, r, "")
}

func (h *Handlers) listRuns(w http.ResponseWriter, r *http.Request, env types.Environment) {
	runs, err := h.store.ListRuns(r.Context(), env, limitParam(r, 20))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []types.RunContext{}
	}
	_ = json.NewEncoder(w).Encode(runs)
}

// ResumeRun re-evaluates a blocked run. 200 if the run reached a terminal
// state, 202 if it is still blocked, 409 if it was not resumable.
func (h *Handlers) ResumeRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.orch.Resume(r.Context(), runID)
	var nre *orchestrator.NotResumableError
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "run not found", nil)
		return
	case errors.As(err, &nre):
		h.writeError(w, http.StatusConflict, nre.Error(), nil)
		return
	case run == nil:
		h.writeError(w, http.StatusInternalServerError, "failed to resume run", err)
		return
	case err != nil:
		h.logger.Warn("resumed run ended with failure", "run", run.RunID, "error", err)
	}

	if run.Status == types.RunBlocked {
		w.WriteHeader(http.StatusAccepted)
	}
	_ = json.NewEncoder(w).Encode(run)
}

func limitParam(r *http.Request, def int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
