// Package handler implements the JSON API over the stores.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

const maxBodyBytes = 1 << 20

// Publisher broadcasts entity changes to connected clients.
type Publisher interface {
	Publish(entity, action, id string, extra map[string]any)
}

// Reminders keeps the alarm registry in step with entity edits.
type Reminders interface {
	ScheduleNote(n model.Note) (int, error)
	ScheduleSchedule(s model.Schedule) (int, error)
	ScheduleRoutine(r model.Routine) (int, error)
	Cancel(kind model.AlarmKind, entityID string) error
	Pending() ([]model.Alarm, error)
	Reschedule(ctx context.Context) (int, error)
}

// base carries what every handler shares.
type base struct {
	pub       Publisher
	reminders Reminders
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

func newBase(pub Publisher, reminders Reminders, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{pub: pub, reminders: reminders, logger: logger, loc: time.Local, now: time.Now}
}

func (b *base) broadcast(entity, action, id string) {
	if b.pub != nil {
		b.pub.Publish(entity, action, id, nil)
	}
}

// today returns the current time in the user's location.
func (b *base) today() time.Time {
	return b.now().In(b.loc)
}

// fail answers a store error. Validation problems are the caller's fault;
// anything else is logged and reported as a generic failure.
func (b *base) fail(w http.ResponseWriter, what string, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, store.ErrDuplicateLabel):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrPresetLabel):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		b.logger.Error(what, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+what)
	}
}

// reschedule logs rather than fails: the edit itself has been saved.
func (b *base) reschedule(kind model.AlarmKind, id string, fn func() (int, error)) {
	if b.reminders == nil {
		return
	}
	if _, err := fn(); err != nil {
		b.logger.Error("schedule reminders", "kind", kind, "id", id, "error", err)
	}
}

func (b *base) cancel(kind model.AlarmKind, id string) {
	if b.reminders == nil {
		return
	}
	if err := b.reminders.Cancel(kind, id); err != nil {
		b.logger.Error("cancel reminders", "kind", kind, "id", id, "error", err)
	}
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD days.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(model.DayLayout, s, loc)
}
