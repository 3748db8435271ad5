package handlers

import (
	"encoding/json"
	"net/http"
)

// Health reports server liveness and store reachability. A degraded store
// answers 200 with status "degraded"; orchestration is unavailable but the
// process itself is healthy.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "store": "ok"}
	if err := h.store.Ping(r.Context()); err != nil {
		body["status"] = "degraded"
		body["store"] = "unreachable"
		h.logger.Warn("store ping failed", "error", err)
	}
	_ = json.NewEncoder(w).Encode(body)
}
