package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/daybook/internal/notify"
	"github.com/dukerupert/daybook/internal/store"
)

type PushHandler struct {
	base
	pushStore *store.PushStore
	webpush   *notify.WebPush
}

func NewPushHandler(ps *store.PushStore, wp *notify.WebPush, logger *slog.Logger) *PushHandler {
	return &PushHandler{base: newBase(nil, nil, logger), pushStore: ps, webpush: wp}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	sub, err := h.pushStore.CreateSubscription(req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.fail(w, "save subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.pushStore.DeleteSubscription(id); err != nil {
		h.fail(w, "delete subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.List()
	if err != nil {
		h.fail(w, "list subscriptions", err)
		return
	}
	writeList(w, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.webpush.VAPIDPublicKey()})
}

// TestNotification handles POST /api/push/test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.webpush.CheckPermission(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	subs, err := h.pushStore.List()
	if err != nil {
		h.fail(w, "list subscriptions", err)
		return
	}

	payload := notify.Payload{
		Title: "Test Notification",
		Body:  "Daybook reminders will appear like this.",
		URL:   "/",
		Tag:   "test",
	}

	sent, removed := 0, 0
	for _, sub := range subs {
		err := h.webpush.Send(r.Context(), &sub, payload)
		switch {
		case errors.Is(err, notify.ErrExpired):
			if err := h.pushStore.DeleteSubscription(sub.ID); err != nil {
				h.logger.Error("remove expired subscription", "id", sub.ID, "error", err)
				continue
			}
			removed++
		case err != nil:
			h.logger.Error("test push send", "id", sub.ID, "error", err)
		default:
			sent++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent, "removed": removed})
}
