package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukerupert/daybook/internal/backup"
)

const maxUploadBytes = 32 << 20

type BackupHandler struct {
	base
	manager *backup.Manager
}

func NewBackupHandler(m *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{base: newBase(nil, nil, logger), manager: m}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.manager.List(50)
	if err != nil {
		h.fail(w, "list backups", err)
		return
	}
	writeList(w, backups)
}

// Status handles GET /api/backups/status
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	summary, err := h.manager.Summary()
	if err != nil {
		h.fail(w, "get backup status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  h.manager.Status(),
		"summary": summary,
	})
}

// Export handles POST /api/backups/export with an optional
// {"passphrase": "..."} body.
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	b, err := h.manager.Export(r.Context(), req.Passphrase)
	if errors.Is(err, backup.ErrNotRunning) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.fail(w, "export backup", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Import handles POST /api/backups/import. The file is sent either as the
// multipart field "file" or as the raw request body; the passphrase comes
// from the "passphrase" form field or the X-Backup-Passphrase header.
func (h *BackupHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	passphrase := r.Header.Get("X-Backup-Passphrase")

	var (
		name string
		data []byte
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		name, data, err = readUpload(r)
		if p := r.FormValue("passphrase"); p != "" {
			passphrase = p
		}
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "backup file is empty")
		return
	}

	res, err := h.manager.Import(r.Context(), name, data, passphrase)
	if errors.Is(err, backup.ErrNotRunning) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.fail(w, "import backup", err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func readUpload(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, fmt.Errorf("invalid upload: %w", err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("file is required")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return filepath.Base(hdr.Filename), data, nil
}

// Download handles GET /api/backups/{id}/download
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	path, b, err := h.manager.Path(id)
	if err != nil {
		h.fail(w, "get backup", err)
		return
	}
	if b == nil || path == "" {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "backup file no longer exists")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}
