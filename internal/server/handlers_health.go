package server

import (
	"net/http"

	"saas-control-plane/backend/internal/health"
	"saas-control-plane/backend/internal/platform/reqctx"
)

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": health.StatusOK})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.deps.Health.Check(r.Context())
	status := http.StatusOK
	if !rep.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// actor returns the authenticated caller. authenticate guarantees it is set under /v1.
func actor(r *http.Request) string {
	id, _ := reqctx.UserID(r.Context())
	return id
}
