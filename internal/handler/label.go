package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

type LabelHandler struct {
	base
	labels *store.LabelStore
}

func NewLabelHandler(ls *store.LabelStore, pub Publisher, logger *slog.Logger) *LabelHandler {
	return &LabelHandler{base: newBase(pub, nil, logger), labels: ls}
}

type labelRequest struct {
	Name  string          `json:"name"`
	Type  model.LabelType `json:"type"`
	Color string          `json:"color"`
}

// List handles GET /api/labels?type=note|expense|income|event
func (h *LabelHandler) List(w http.ResponseWriter, r *http.Request) {
	typ := model.LabelType(r.URL.Query().Get("type"))
	if typ != "" && !typ.Valid() {
		writeError(w, http.StatusBadRequest, "type must be note, expense, income, or event")
		return
	}
	labels, err := h.labels.List(typ)
	if err != nil {
		h.fail(w, "list labels", err)
		return
	}
	writeList(w, labels)
}

func (h *LabelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := h.labels.Create(req.Name, req.Type, req.Color)
	if err != nil {
		h.fail(w, "create label", err)
		return
	}
	h.broadcast("label", "created", strconv.FormatInt(l.ID, 10))
	writeJSON(w, http.StatusCreated, l)
}

func (h *LabelHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req labelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := h.labels.Update(id, req.Name, req.Color)
	if err != nil {
		h.fail(w, "update label", err)
		return
	}
	if l == nil {
		writeError(w, http.StatusNotFound, "label not found")
		return
	}
	h.broadcast("label", "updated", strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusOK, l)
}

// Delete handles DELETE /api/labels/{id}. Preset labels answer 403.
func (h *LabelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.labels.Delete(id); err != nil {
		h.fail(w, "delete label", err)
		return
	}
	h.broadcast("label", "deleted", strconv.FormatInt(id, 10))
	w.WriteHeader(http.StatusNoContent)
}

// Reorder handles PUT /api/labels/order with {"ids": [...]}.
func (h *LabelHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}
	if err := h.labels.UpdateSortOrder(req.IDs); err != nil {
		h.fail(w, "reorder labels", err)
		return
	}
	h.broadcast("label", "reordered", "")
	w.WriteHeader(http.StatusNoContent)
}
