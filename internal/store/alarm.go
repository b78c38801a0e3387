package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/daybook/internal/model"
)

// AlarmStore persists the reminder registry and the sent-reminder ledger.
// Trigger times are stored as unix seconds.
type AlarmStore struct {
	db *sql.DB
}

func NewAlarmStore(db *sql.DB) *AlarmStore {
	return &AlarmStore{db: db}
}

const alarmCols = `key, kind, entity_id, key_offset, trigger_at, title, body, created_at, updated_at`

func scanAlarm(s scanner) (*model.Alarm, error) {
	var a model.Alarm
	var trigger int64
	if err := s.Scan(&a.Key, &a.Kind, &a.EntityID, &a.Offset, &trigger, &a.Title, &a.Body, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.TriggerAt = time.Unix(trigger, 0).UTC()
	return &a, nil
}

// Upsert registers an alarm, replacing any row with the same key.
func (s *AlarmStore) Upsert(a model.Alarm) error {
	ts := now()
	_, err := s.db.Exec(
		`INSERT INTO alarms (key, kind, entity_id, key_offset, trigger_at, title, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, entity_id = excluded.entity_id,
			key_offset = excluded.key_offset, trigger_at = excluded.trigger_at,
			title = excluded.title, body = excluded.body, updated_at = excluded.updated_at`,
		a.Key, a.Kind, a.EntityID, a.Offset, a.TriggerAt.Unix(), a.Title, a.Body, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("upsert alarm: %w", err)
	}
	return nil
}

func (s *AlarmStore) Get(key int32) (*model.Alarm, error) {
	row := s.db.QueryRow(`SELECT `+alarmCols+` FROM alarms WHERE key = ?`, key)
	a, err := scanAlarm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alarm: %w", err)
	}
	return a, nil
}

func (s *AlarmStore) Delete(key int32) error {
	if _, err := s.db.Exec(`DELETE FROM alarms WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete alarm: %w", err)
	}
	return nil
}

// DeleteByEntity removes every alarm registered for one entity and returns
// the removed keys.
func (s *AlarmStore) DeleteByEntity(kind model.AlarmKind, entityID string) ([]int32, error) {
	keys, err := s.keys(`SELECT key FROM alarms WHERE kind = ? AND entity_id = ?`, kind, entityID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM alarms WHERE kind = ? AND entity_id = ?`, kind, entityID); err != nil {
		return nil, fmt.Errorf("delete entity alarms: %w", err)
	}
	return keys, nil
}

// DeleteBefore purges alarms whose trigger time is before t and returns
// the removed keys.
func (s *AlarmStore) DeleteBefore(t time.Time) ([]int32, error) {
	keys, err := s.keys(`SELECT key FROM alarms WHERE trigger_at < ?`, t.Unix())
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM alarms WHERE trigger_at < ?`, t.Unix()); err != nil {
		return nil, fmt.Errorf("purge alarms: %w", err)
	}
	return keys, nil
}

func (s *AlarmStore) keys(q string, args ...any) ([]int32, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("select alarm keys: %w", err)
	}
	defer rows.Close()

	var keys []int32
	for rows.Next() {
		var k int32
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan alarm key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListDue returns alarms with trigger time at or before t, earliest first.
func (s *AlarmStore) ListDue(t time.Time) ([]model.Alarm, error) {
	return s.query(`SELECT `+alarmCols+` FROM alarms WHERE trigger_at <= ? ORDER BY trigger_at ASC, key ASC`, t.Unix())
}

func (s *AlarmStore) ListAll() ([]model.Alarm, error) {
	return s.query(`SELECT ` + alarmCols + ` FROM alarms ORDER BY trigger_at ASC, key ASC`)
}

func (s *AlarmStore) ListByEntity(kind model.AlarmKind, entityID string) ([]model.Alarm, error) {
	return s.query(`SELECT `+alarmCols+` FROM alarms WHERE kind = ? AND entity_id = ? ORDER BY trigger_at ASC`, kind, entityID)
}

func (s *AlarmStore) query(q string, args ...any) ([]model.Alarm, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer rows.Close()

	var out []model.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// RecordSent adds a delivery to the ledger. Recording twice is a no-op.
func (s *AlarmStore) RecordSent(key int32, triggerAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sent_reminders (key, trigger_at, sent_at) VALUES (?, ?, ?)`,
		key, triggerAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record sent reminder: %w", err)
	}
	return nil
}

// WasSent reports whether the reminder for key at triggerAt was delivered.
func (s *AlarmStore) WasSent(key int32, triggerAt time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sent_reminders WHERE key = ? AND trigger_at = ?`,
		key, triggerAt.Unix(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check sent reminder: %w", err)
	}
	return n > 0, nil
}

// CleanupSent removes ledger rows sent before t.
func (s *AlarmStore) CleanupSent(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sent_reminders WHERE sent_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup sent reminders: %w", err)
	}
	return res.RowsAffected()
}
