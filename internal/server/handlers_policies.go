package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"saas-control-plane/backend/internal/platform/apperr"
	policyservice "saas-control-plane/backend/internal/policy/service"
)

func (h *handlers) listPolicies(w http.ResponseWriter, r *http.Request) {
	ps, err := h.deps.Policies.List(r.Context(), orgID(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]policyJSON, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPolicyJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"policies": out})
}

type policyRequest struct {
	Rules   *string `json:"rules"`
	Enabled *bool   `json:"enabled"`
}

func (h *handlers) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if req.Rules == nil {
		h.writeErr(w, r, apperr.BadRequest("rules are required"))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	p, err := h.deps.Policies.Create(r.Context(), orgID(r), *req.Rules, enabled)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyJSON(p))
}

func (h *handlers) updatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	p, err := h.deps.Policies.Update(r.Context(), orgID(r), chi.URLParam(r, "policyID"), policyservice.PolicyUpdate{
		Rules:   req.Rules,
		Enabled: req.Enabled,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyJSON(p))
}

func (h *handlers) deletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Policies.Delete(r.Context(), orgID(r), chi.URLParam(r, "policyID")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
