package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	u, err := h.deps.Users.Register(r.Context(), actor(r), req.Email, req.Name)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         u.ID,
		"email":      u.Email,
		"name":       u.Name,
		"status":     string(u.Status),
		"created_at": u.CreatedAt,
	})
}

func (h *handlers) listUserRoles(w http.ResponseWriter, r *http.Request) {
	grants, err := h.deps.Grants.List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]userRoleJSON, 0, len(grants))
	for _, g := range grants {
		out = append(out, toUserRoleJSON(g))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": out})
}

type grantRoleRequest struct {
	Role string `json:"role"`
}

func (h *handlers) grantRole(w http.ResponseWriter, r *http.Request) {
	var req grantRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	g, err := h.deps.Grants.Grant(r.Context(), actor(r), chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserRoleJSON(g))
}

func (h *handlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Grants.Revoke(r.Context(), actor(r), chi.URLParam(r, "userID"), chi.URLParam(r, "role")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
