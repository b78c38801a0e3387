package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/dukerupert/daybook/internal/reminder"
	"github.com/dukerupert/daybook/internal/store"
)

var (
	prefKeyRegexp  = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
	currencyRegexp = regexp.MustCompile(`^[A-Z]{3}$`)
)

type PreferenceHandler struct {
	base
	prefs *store.PreferenceStore
}

func NewPreferenceHandler(ps *store.PreferenceStore, pub Publisher, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{base: newBase(pub, nil, logger), prefs: ps}
}

func (h *PreferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.prefs.GetAll()
	if err != nil {
		h.fail(w, "get preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// Group handles GET /api/preferences/{group} for display, reminder and
// backup settings.
func (h *PreferenceHandler) Group(w http.ResponseWriter, r *http.Request) {
	var get func() (map[string]string, error)
	switch r.PathValue("group") {
	case "display":
		get = h.prefs.GetDisplayPreferences
	case "reminder":
		get = h.prefs.GetReminderPreferences
	case "backup":
		get = h.prefs.GetBackupPreferences
	default:
		writeError(w, http.StatusNotFound, "unknown preference group")
		return
	}
	prefs, err := get()
	if err != nil {
		h.fail(w, "get preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// Update handles PUT /api/preferences with a flat key/value object. All
// values are validated before any is saved.
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "no preferences given")
		return
	}
	for key, value := range req {
		if err := validatePreference(key, value); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.prefs.SetMany(req); err != nil {
		h.fail(w, "save preferences", err)
		return
	}
	h.broadcast("preference", "updated", "")

	prefs, err := h.prefs.GetAll()
	if err != nil {
		h.fail(w, "get preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func validatePreference(key, value string) error {
	if !prefKeyRegexp.MatchString(key) {
		return fmt.Errorf("invalid preference key: %q", key)
	}

	intIn := func(lo, hi int) error {
		n, err := strconv.Atoi(value)
		if err != nil || n < lo || n > hi {
			return fmt.Errorf("%s must be between %d and %d", key, lo, hi)
		}
		return nil
	}

	switch key {
	case "theme_mode":
		switch value {
		case "light", "dark", "system":
		default:
			return fmt.Errorf("theme_mode must be light, dark, or system")
		}
	case "currency":
		if !currencyRegexp.MatchString(value) {
			return fmt.Errorf("currency must be a three-letter ISO code")
		}
	case "first_day_of_week":
		switch strings.ToLower(value) {
		case "monday", "sunday", "saturday":
		default:
			return fmt.Errorf("first_day_of_week must be monday, sunday, or saturday")
		}
	case "default_reminder_offset":
		return intIn(0, reminder.MaxOffset)
	case "backup_enabled":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("backup_enabled must be true or false")
		}
	case "backup_schedule_hour":
		return intIn(0, 23)
	case "backup_retention_days":
		return intIn(1, 3650)
	}
	return nil
}
