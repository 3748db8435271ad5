package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// ListEnvironmentRuns returns recent runs for a single environment.
func (h *Handlers) ListEnvironmentRuns(w http.ResponseWriter, r *http.Request) {
	env, err := types.ParseEnvironment(chi.URLParam(r, "env"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	h.listRuns(w, r, env)
}

// ListEnvironmentEvents returns the audit trail for a single environment,
// newest first.
func (h *Handlers) ListEnvironmentEvents(w http.ResponseWriter, r *http.Request) {
	env, err := types.ParseEnvironment(chi.URLParam(r, "env"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	events, err := h.store.ListEvents(r.Context(), env, limitParam(r, 50))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list events", err)
		return
	}
	if events == nil {
		events = []types.Event{}
	}
	_ = json.NewEncoder(w).Encode(events)
}
