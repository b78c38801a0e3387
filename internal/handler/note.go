package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

type NoteHandler struct {
	base
	notes *store.NoteStore
}

func NewNoteHandler(ns *store.NoteStore, reminders Reminders, pub Publisher, logger *slog.Logger) *NoteHandler {
	return &NoteHandler{base: newBase(pub, reminders, logger), notes: ns}
}

// changed broadcasts the edit and brings the note's reminder up to date.
func (h *NoteHandler) changed(action string, n *model.Note) {
	h.broadcast("note", action, n.ID)
	h.reschedule(model.AlarmNote, n.ID, func() (int, error) { return h.reminders.ScheduleNote(*n) })
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.NoteInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" && strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "title or content is required")
		return
	}

	note, err := h.notes.Create(in)
	if err != nil {
		h.fail(w, "create note", err)
		return
	}
	h.changed("created", note)
	writeJSON(w, http.StatusCreated, note)
}

// List handles GET /api/notes?view=active|archived|trash&q=
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		notes []model.Note
		err   error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		notes, err = h.notes.Search(q)
	} else {
		view := store.NoteView(r.URL.Query().Get("view"))
		switch view {
		case "":
			view = store.NotesActive
		case store.NotesActive, store.NotesArchived, store.NotesTrash:
		default:
			writeError(w, http.StatusBadRequest, "view must be active, archived, or trash")
			return
		}
		notes, err = h.notes.List(view)
	}
	if err != nil {
		h.fail(w, "list notes", err)
		return
	}
	writeList(w, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.GetByID(r.PathValue("id"))
	if err != nil {
		h.fail(w, "get note", err)
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := h.notes.GetByID(id)
	if err != nil {
		h.fail(w, "get note", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}

	var in model.NoteInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Title = strings.TrimSpace(in.Title)

	note, err := h.notes.Update(id, in)
	if err != nil {
		h.fail(w, "update note", err)
		return
	}
	h.changed("updated", note)
	writeJSON(w, http.StatusOK, note)
}

// TogglePin handles POST /api/notes/{id}/pin
func (h *NoteHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.TogglePinned(r.PathValue("id"))
	if err != nil {
		h.fail(w, "toggle pin", err)
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	h.broadcast("note", "updated", note.ID)
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *NoteHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *NoteHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	note, err := h.notes.SetArchived(r.PathValue("id"), archived)
	if err != nil {
		h.fail(w, "archive note", err)
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	h.changed("updated", note)
	writeJSON(w, http.StatusOK, note)
}

// Delete moves a note to the trash, or removes it for good with
// ?permanent=true.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	permanent, _ := strconv.ParseBool(r.URL.Query().Get("permanent"))

	if permanent {
		if err := h.notes.Delete(id); err != nil {
			h.fail(w, "delete note", err)
			return
		}
		h.cancel(model.AlarmNote, id)
		h.broadcast("note", "deleted", id)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	note, err := h.notes.MoveToTrash(id)
	if err != nil {
		h.fail(w, "trash note", err)
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	h.changed("trashed", note)
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Restore(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Restore(r.PathValue("id"))
	if err != nil {
		h.fail(w, "restore note", err)
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	h.changed("restored", note)
	writeJSON(w, http.StatusOK, note)
}

// EmptyTrash handles DELETE /api/notes/trash. With ?older_than_days=N only
// notes trashed at least N days ago are removed.
func (h *NoteHandler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	before := h.now()
	if v := r.URL.Query().Get("older_than_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			writeError(w, http.StatusBadRequest, "older_than_days must be a non-negative integer")
			return
		}
		before = before.Add(-time.Duration(days) * 24 * time.Hour)
	}

	ids, err := h.notes.EmptyTrash(before)
	if err != nil {
		h.fail(w, "empty trash", err)
		return
	}
	for _, id := range ids {
		h.cancel(model.AlarmNote, id)
		h.broadcast("note", "deleted", id)
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(ids)})
}
