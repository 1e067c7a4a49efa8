package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	membershipdomain "saas-control-plane/backend/internal/membership/domain"
	notificationdomain "saas-control-plane/backend/internal/notification/domain"
	orgservice "saas-control-plane/backend/internal/organization/service"
	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/platform/rbac"
)

func orgID(r *http.Request) string { return chi.URLParam(r, rbac.OrgParam) }

type createOrgRequest struct {
	Name string `json:"name"`
}

func (h *handlers) createOrg(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	org, err := h.deps.Orgs.Create(r.Context(), actor(r), req.Name)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrgJSON(org))
}

func (h *handlers) getOrg(w http.ResponseWriter, r *http.Request) {
	org, err := h.deps.Orgs.Get(r.Context(), orgID(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrgJSON(org))
}

func (h *handlers) checkPermission(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resource, action := q.Get("resource"), q.Get("action")
	ok, err := h.deps.Authz.Can(r.Context(), actor(r), orgID(r), resource, action)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource": resource,
		"action":   action,
		"allowed":  ok,
	})
}

func (h *handlers) myRoles(w http.ResponseWriter, r *http.Request) {
	rs, err := h.deps.Authz.RoleSet(r.Context(), actor(r), r.URL.Query().Get("org_id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	global := rs.Global
	if global == nil {
		global = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"global":      global,
		"org_role":    rs.Org,
		"super_admin": rs.SuperAdmin(),
	})
}

func (h *handlers) listMembers(w http.ResponseWriter, r *http.Request) {
	ms, err := h.deps.Memberships.List(r.Context(), orgID(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": toMembershipsJSON(ms)})
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *handlers) addMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if req.UserID == "" {
		h.writeErr(w, r, apperr.BadRequest("user_id is required"))
		return
	}
	m, err := h.deps.Memberships.AddMember(r.Context(), actor(r), orgID(r), req.UserID, membershipdomain.Role(req.Role))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMembershipJSON(m))
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *handlers) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	m, err := h.deps.Memberships.UpdateRole(r.Context(), actor(r), orgID(r), chi.URLParam(r, "userID"), membershipdomain.Role(req.Role))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembershipJSON(m))
}

func (h *handlers) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Memberships.Remove(r.Context(), actor(r), orgID(r), chi.URLParam(r, "userID")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := h.deps.Memberships.PendingInvitations(r.Context(), orgID(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]invitationJSON, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvitationJSON(inv))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invitations": out})
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// invite answers 201 with a membership when the address belongs to an account, and 202 with a pending
// invitation otherwise.
func (h *handlers) invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.deps.Memberships.Invite(r.Context(), actor(r), orgID(r), req.Email, membershipdomain.Role(req.Role))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if res.Membership != nil {
		writeJSON(w, http.StatusCreated, map[string]interface{}{"membership": toMembershipJSON(res.Membership)})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"invitation": toInvitationJSON(res.Invitation)})
}

func (h *handlers) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Memberships.AcceptInvitation(r.Context(), actor(r), chi.URLParam(r, "token"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMembershipJSON(m))
}

type announceRequest struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

func (h *handlers) announce(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	id, err := h.deps.Orgs.Announce(r.Context(), actor(r), orgID(r), orgservice.Announcement{
		Title:    req.Title,
		Message:  req.Message,
		Priority: notificationdomain.Priority(req.Priority),
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"announcement_id": id})
}
