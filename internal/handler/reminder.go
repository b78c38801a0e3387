package handler

import (
	"log/slog"
	"net/http"
)

type ReminderHandler struct {
	base
}

func NewReminderHandler(reminders Reminders, pub Publisher, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{base: newBase(pub, reminders, logger)}
}

// Pending handles GET /api/reminders, listing registered alarms.
func (h *ReminderHandler) Pending(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.reminders.Pending()
	if err != nil {
		h.fail(w, "list reminders", err)
		return
	}
	writeList(w, alarms)
}

// Reschedule handles POST /api/reminders/reschedule, rebuilding the
// registry from the stored entities.
func (h *ReminderHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	n, err := h.reminders.Reschedule(r.Context())
	if err != nil {
		h.fail(w, "reschedule reminders", err)
		return
	}
	h.broadcast("reminder", "rescheduled", "")
	writeJSON(w, http.StatusOK, map[string]int{"registered": n})
}
