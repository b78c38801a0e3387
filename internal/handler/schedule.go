package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/recurrence"
	"github.com/dukerupert/daybook/internal/reminder"
	"github.com/dukerupert/daybook/internal/store"
)

// maxOccurrenceRange bounds a single occurrences query.
const maxOccurrenceRange = 366 * 24 * time.Hour

type ScheduleHandler struct {
	base
	schedules *store.ScheduleStore
}

func NewScheduleHandler(ss *store.ScheduleStore, reminders Reminders, pub Publisher, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{base: newBase(pub, reminders, logger), schedules: ss}
}

func (h *ScheduleHandler) changed(action string, s *model.Schedule) {
	id := strconv.FormatInt(s.ID, 10)
	h.broadcast("schedule", action, id)
	h.reschedule(model.AlarmSchedule, id, func() (int, error) { return h.reminders.ScheduleSchedule(*s) })
}

func validateSchedule(in *model.ScheduleInput) string {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return "title is required"
	}
	if in.StartTime.IsZero() {
		return "start_time is required"
	}
	for _, off := range in.ReminderOffsets {
		if off < 0 || off > reminder.MaxOffset {
			return "reminder offsets must be between 0 and " + strconv.Itoa(reminder.MaxOffset) + " minutes"
		}
	}
	return ""
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.ScheduleInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if msg := validateSchedule(&in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s, err := h.schedules.Create(in)
	if err != nil {
		h.fail(w, "create schedule", err)
		return
	}
	h.changed("created", s)
	writeJSON(w, http.StatusCreated, s)
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.schedules.ListAll()
	if err != nil {
		h.fail(w, "list schedules", err)
		return
	}
	writeList(w, schedules)
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	s, err := h.schedules.GetByID(id)
	if err != nil {
		h.fail(w, "get schedule", err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.schedules.GetByID(id)
	if err != nil {
		h.fail(w, "get schedule", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}

	var in model.ScheduleInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if msg := validateSchedule(&in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s, err := h.schedules.Update(id, in)
	if err != nil {
		h.fail(w, "update schedule", err)
		return
	}
	h.changed("updated", s)
	writeJSON(w, http.StatusOK, s)
}

// Complete handles PUT /api/schedules/{id}/completed with {"completed": bool}.
func (h *ScheduleHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Completed bool `json:"completed"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.schedules.SetCompleted(id, req.Completed)
	if err != nil {
		h.fail(w, "complete schedule", err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	h.changed("updated", s)
	writeJSON(w, http.StatusOK, s)
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.schedules.Delete(id); err != nil {
		h.fail(w, "delete schedule", err)
		return
	}
	sid := strconv.FormatInt(id, 10)
	h.cancel(model.AlarmSchedule, sid)
	h.broadcast("schedule", "deleted", sid)
	w.WriteHeader(http.StatusNoContent)
}

// Occurrences handles GET /api/occurrences?start=&end=. Both bounds accept
// RFC 3339 or YYYY-MM-DD; the range defaults to the next seven days.
func (h *ScheduleHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	today := h.today()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, h.loc)
	end := start.AddDate(0, 0, 7)

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := parseDate(v, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		start = t
		end = start.AddDate(0, 0, 7)
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := parseDate(v, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end")
			return
		}
		end = t
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return
	}
	if end.Sub(start) > maxOccurrenceRange {
		writeError(w, http.StatusBadRequest, "range must not exceed one year")
		return
	}

	occ, err := h.schedules.Occurrences(start, end)
	if err != nil {
		h.fail(w, "list occurrences", err)
		return
	}
	writeList(w, occ)
}

// DescribeRule handles GET /api/recurrence?rule=, validating a rule and
// returning its human-readable form.
func (h *ScheduleHandler) DescribeRule(w http.ResponseWriter, r *http.Request) {
	rule, err := recurrence.Parse(r.URL.Query().Get("rule"))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"rule":        rule.String(),
		"description": rule.Describe(),
	})
}
