package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/routine"
	"github.com/dukerupert/daybook/internal/store"
)

type RoutineHandler struct {
	base
	routines *store.RoutineStore
}

func NewRoutineHandler(rs *store.RoutineStore, reminders Reminders, pub Publisher, logger *slog.Logger) *RoutineHandler {
	return &RoutineHandler{base: newBase(pub, reminders, logger), routines: rs}
}

func (h *RoutineHandler) changed(action string, r *model.Routine) {
	id := strconv.FormatInt(r.ID, 10)
	h.broadcast("routine", action, id)
	h.reschedule(model.AlarmRoutine, id, func() (int, error) { return h.reminders.ScheduleRoutine(*r) })
}

// day resolves the ?day= parameter, defaulting to today.
func (h *RoutineHandler) day(r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("day")
	if v == "" {
		return h.today(), true
	}
	t, err := time.ParseInLocation(model.DayLayout, v, h.loc)
	return t, err == nil
}

func (h *RoutineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.RoutineInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	rt, err := h.routines.Create(in)
	if err != nil {
		h.fail(w, "create routine", err)
		return
	}
	h.changed("created", rt)
	writeJSON(w, http.StatusCreated, rt)
}

// List handles GET /api/routines?day=YYYY-MM-DD&archived=true. Each
// routine is decorated with its status and progress on that day.
func (h *RoutineHandler) List(w http.ResponseWriter, r *http.Request) {
	day, ok := h.day(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

	routines, err := h.routines.List(archived)
	if err != nil {
		h.fail(w, "list routines", err)
		return
	}
	logs, err := h.routines.LogsForDay(routine.Day(day))
	if err != nil {
		h.fail(w, "list routine logs", err)
		return
	}

	today := h.today()
	out := make([]routine.RoutineWithStatus, 0, len(routines))
	for _, rt := range routines {
		var log *model.RoutineLog
		if l, ok := logs[rt.ID]; ok {
			log = &l
		}
		rs := routine.WithStatus(rt, log, day)
		rs.Status = routine.ComputeStatus(rt, log, day, today)
		out = append(out, rs)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RoutineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rt, err := h.routines.GetByID(id)
	if err != nil {
		h.fail(w, "get routine", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "routine not found")
		return
	}

	today := h.today()
	log, err := h.routines.GetLog(id, routine.Day(today))
	if err != nil {
		h.fail(w, "get routine log", err)
		return
	}
	writeJSON(w, http.StatusOK, routine.WithStatus(*rt, log, today))
}

func (h *RoutineHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.routines.GetByID(id)
	if err != nil {
		h.fail(w, "get routine", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "routine not found")
		return
	}

	var in model.RoutineInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	rt, err := h.routines.Update(id, in)
	if err != nil {
		h.fail(w, "update routine", err)
		return
	}
	if rt, err = h.routines.RecomputeStreak(id, h.today()); err != nil {
		h.fail(w, "update routine", err)
		return
	}
	h.changed("updated", rt)
	writeJSON(w, http.StatusOK, rt)
}

func (h *RoutineHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *RoutineHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *RoutineHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rt, err := h.routines.SetArchived(id, archived)
	if err != nil {
		h.fail(w, "archive routine", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "routine not found")
		return
	}
	h.changed("updated", rt)
	writeJSON(w, http.StatusOK, rt)
}

func (h *RoutineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.routines.Delete(id); err != nil {
		h.fail(w, "delete routine", err)
		return
	}
	rid := strconv.FormatInt(id, 10)
	h.cancel(model.AlarmRoutine, rid)
	h.broadcast("routine", "deleted", rid)
	w.WriteHeader(http.StatusNoContent)
}

type progressRequest struct {
	Day   string `json:"day"`
	Value *int   `json:"value"`
	Delta *int   `json:"delta"`
}

// Progress handles PUT /api/routines/{id}/progress. A body with "value"
// sets the day's progress, one with "delta" adds to it. Simple routines
// take value 1 for done and 0 for undone.
func (h *RoutineHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req progressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if (req.Value == nil) == (req.Delta == nil) {
		writeError(w, http.StatusBadRequest, "exactly one of value or delta is required")
		return
	}
	if req.Day == "" {
		req.Day = routine.Day(h.today())
	}

	var log *model.RoutineLog
	if req.Value != nil {
		log, err = h.routines.SetProgress(id, req.Day, *req.Value)
	} else {
		log, err = h.routines.Increment(id, req.Day, *req.Delta)
	}
	if err != nil {
		h.fail(w, "record progress", err)
		return
	}
	if log == nil {
		writeError(w, http.StatusNotFound, "routine not found")
		return
	}

	h.broadcast("routine", "progress", strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusOK, log)
}

// Logs handles GET /api/routines/{id}/logs?from=&to= (inclusive days).
func (h *RoutineHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	q := r.URL.Query()
	for _, v := range []string{q.Get("from"), q.Get("to")} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(model.DayLayout, v); err != nil {
			writeError(w, http.StatusBadRequest, "from and to must be YYYY-MM-DD")
			return
		}
	}

	logs, err := h.routines.ListLogs(id, q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, "list routine logs", err)
		return
	}
	writeList(w, logs)
}
