package handlers

import (
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/vetcall/libs/httpx"
)

func (h *BookingHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.svc.Notifications(r.Context(), principal(r), unread, limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	items := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		items = append(items, notificationResponse{
			ID:            n.ID,
			AppointmentID: n.AppointmentID,
			Kind:          n.Kind,
			Title:         n.Title,
			Body:          n.Body,
			Read:          n.ReadAt != nil,
			CreatedAt:     formatTime(n.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *BookingHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkNotificationRead(r.Context(), principal(r), r.PathValue("id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllNotificationsRead(r.Context(), principal(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"updated": n})
}
