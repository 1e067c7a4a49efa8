package server

import (
	"net/http"

	auditdomain "saas-control-plane/backend/internal/audit/domain"
)

func (h *handlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	q := r.URL.Query()
	logs, err := h.deps.Audit.ListByOrg(r.Context(), orgID(r), auditdomain.Filter{
		ActorID: q.Get("actor_id"),
		Action:  q.Get("action"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]auditLogJSON, 0, len(logs))
	for _, l := range logs {
		out = append(out, toAuditLogJSON(l))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": out, "count": len(out)})
}
