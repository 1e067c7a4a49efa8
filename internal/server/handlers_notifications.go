package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	notificationdomain "saas-control-plane/backend/internal/notification/domain"
	"saas-control-plane/backend/internal/platform/apperr"
)

func (h *handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
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
	f := notificationdomain.ListFilter{
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      limit,
		Offset:     offset,
	}
	list, err := h.deps.Notifications.List(r.Context(), actor(r), f)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]notificationJSON, 0, len(list))
	for _, n := range list {
		out = append(out, toNotificationJSON(n))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": out, "count": len(out)})
}

func (h *handlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Notifications.UnreadCount(r.Context(), actor(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": n})
}

func (h *handlers) markRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Notifications.MarkRead(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationJSON(n))
}

func (h *handlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Notifications.MarkAllRead(r.Context(), actor(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *handlers) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.deps.Notifications.GetPreferences(r.Context(), actor(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"preferences": prefs})
}

type setPreferenceRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Enabled *bool  `json:"enabled"`
}

func (h *handlers) setPreference(w http.ResponseWriter, r *http.Request) {
	var req setPreferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if req.Enabled == nil {
		h.writeErr(w, r, apperr.BadRequest("enabled is required"))
		return
	}
	err := h.deps.Notifications.SetPreference(r.Context(), actor(r),
		notificationdomain.Type(req.Type), notificationdomain.Channel(req.Channel), *req.Enabled)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
