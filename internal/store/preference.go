package store

import (
	"database/sql"
	"fmt"
	"strconv"
)

var displayKeys = []string{
	"theme_mode",
	"currency",
	"first_day_of_week",
}

var reminderKeys = []string{
	"default_reminder_offset",
}

var backupKeys = []string{
	"backup_enabled",
	"backup_schedule_hour",
	"backup_retention_days",
}

type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get returns the value for key and whether it was set.
func (s *PreferenceStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %q: %w", key, err)
	}
	return value, true, nil
}

func (s *PreferenceStore) GetAll() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM preferences ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("get all preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs[key] = value
	}
	return prefs, rows.Err()
}

func (s *PreferenceStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now(),
	)
	if err != nil {
		return fmt.Errorf("set preference %q: %w", key, err)
	}
	return nil
}

// SetMany upserts every entry in one transaction.
func (s *PreferenceStore) SetMany(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	for key, value := range values {
		_, err := tx.Exec(
			`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, ts,
		)
		if err != nil {
			return fmt.Errorf("set preference %q: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *PreferenceStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete preference %q: %w", key, err)
	}
	return nil
}

// GetBool parses a boolean preference, returning def when unset or malformed.
func (s *PreferenceStore) GetBool(key string, def bool) bool {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetInt parses an integer preference, returning def when unset or malformed.
func (s *PreferenceStore) GetInt(key string, def int) int {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *PreferenceStore) GetDisplayPreferences() (map[string]string, error) {
	return s.group("display", displayKeys)
}

func (s *PreferenceStore) GetReminderPreferences() (map[string]string, error) {
	return s.group("reminder", reminderKeys)
}

func (s *PreferenceStore) GetBackupPreferences() (map[string]string, error) {
	return s.group("backup", backupKeys)
}

func (s *PreferenceStore) group(name string, keys []string) (map[string]string, error) {
	prefs := make(map[string]string)
	for _, key := range keys {
		v, ok, err := s.Get(key)
		if err != nil {
			return nil, fmt.Errorf("get %s preference: %w", name, err)
		}
		if ok {
			prefs[key] = v
		}
	}
	return prefs, nil
}
