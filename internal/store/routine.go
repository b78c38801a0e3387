package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/routine"
)

type RoutineStore struct {
	db *sql.DB
}

func NewRoutineStore(db *sql.DB) *RoutineStore {
	return &RoutineStore{db: db}
}

const routineCols = `id, name, description, type, target, scheduled_days, reminder_time,
	current_streak, best_streak, last_completed_on, archived, created_at, updated_at`

func scanRoutine(s scanner) (*model.Routine, error) {
	var r model.Routine
	var days, archived int

	err := s.Scan(
		&r.ID, &r.Name, &r.Description, &r.Type, &r.Target, &days, &r.ReminderTime,
		&r.CurrentStreak, &r.BestStreak, &r.LastCompletedOn, &archived, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ScheduledDays = model.Weekdays(days)
	r.Archived = archived != 0
	return &r, nil
}

const routineLogCols = `id, routine_id, day, value, completed, created_at, updated_at`

func scanRoutineLog(s scanner) (*model.RoutineLog, error) {
	var l model.RoutineLog
	var completed int
	if err := s.Scan(&l.ID, &l.RoutineID, &l.Day, &l.Value, &completed, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Completed = completed != 0
	return &l, nil
}

func validReminderTime(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

func normalizeRoutine(in model.RoutineInput) (model.RoutineInput, error) {
	if in.Type == "" {
		in.Type = model.RoutineSimple
	}
	if !in.Type.Valid() {
		return in, invalidf("invalid routine type %q", in.Type)
	}
	if !validReminderTime(in.ReminderTime) {
		return in, invalidf("invalid reminder time %q", in.ReminderTime)
	}
	if in.Type == model.RoutineSimple || in.Target < 1 {
		in.Target = 1
	}
	in.ScheduledDays &= 0x7f
	return in, nil
}

func (s *RoutineStore) Create(in model.RoutineInput) (*model.Routine, error) {
	in, err := normalizeRoutine(in)
	if err != nil {
		return nil, err
	}
	ts := now()

	result, err := s.db.Exec(
		`INSERT INTO routines (name, description, type, target, scheduled_days, reminder_time, archived, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Description, in.Type, in.Target, int(in.ScheduledDays), in.ReminderTime, boolInt(in.Archived), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert routine: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RoutineStore) GetByID(id int64) (*model.Routine, error) {
	row := s.db.QueryRow(`SELECT `+routineCols+` FROM routines WHERE id = ?`, id)
	r, err := scanRoutine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get routine: %w", err)
	}
	return r, nil
}

// List returns routines by name, archived ones only when requested.
func (s *RoutineStore) List(includeArchived bool) ([]model.Routine, error) {
	q := `SELECT ` + routineCols + ` FROM routines`
	if !includeArchived {
		q += ` WHERE archived = 0`
	}
	return s.query(q + ` ORDER BY name COLLATE NOCASE ASC`)
}

func (s *RoutineStore) ListAll() ([]model.Routine, error) {
	return s.query(`SELECT ` + routineCols + ` FROM routines ORDER BY id ASC`)
}

// ListWithReminders returns live routines that have a reminder time.
func (s *RoutineStore) ListWithReminders() ([]model.Routine, error) {
	return s.query(`SELECT ` + routineCols + ` FROM routines WHERE archived = 0 AND reminder_time != '' ORDER BY id ASC`)
}

func (s *RoutineStore) query(q string, args ...any) ([]model.Routine, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer rows.Close()

	var out []model.Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *RoutineStore) Update(id int64, in model.RoutineInput) (*model.Routine, error) {
	in, err := normalizeRoutine(in)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`UPDATE routines SET name = ?, description = ?, type = ?, target = ?, scheduled_days = ?,
			reminder_time = ?, archived = ?, updated_at = ?
		 WHERE id = ?`,
		in.Name, in.Description, in.Type, in.Target, int(in.ScheduledDays), in.ReminderTime, boolInt(in.Archived), now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update routine: %w", err)
	}
	return s.RecomputeStreak(id, time.Now())
}

func (s *RoutineStore) SetArchived(id int64, archived bool) (*model.Routine, error) {
	_, err := s.db.Exec(`UPDATE routines SET archived = ?, updated_at = ? WHERE id = ?`, boolInt(archived), now(), id)
	if err != nil {
		return nil, fmt.Errorf("set routine archived: %w", err)
	}
	return s.GetByID(id)
}

func (s *RoutineStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete routine: %w", err)
	}
	return nil
}

// SetProgress records value as the routine's progress on day and refreshes
// its streak.
func (s *RoutineStore) SetProgress(id int64, day string, value int) (*model.RoutineLog, error) {
	r, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	if _, err := time.Parse(model.DayLayout, day); err != nil {
		return nil, invalidf("invalid day %q", day)
	}
	value = max(value, 0)

	if err := s.upsertLog(id, day, value, routine.IsComplete(*r, value)); err != nil {
		return nil, err
	}
	if _, err := s.RecomputeStreak(id, time.Now()); err != nil {
		return nil, err
	}
	return s.GetLog(id, day)
}

// Increment adds delta to the routine's progress on day.
func (s *RoutineStore) Increment(id int64, day string, delta int) (*model.RoutineLog, error) {
	current, err := s.GetLog(id, day)
	if err != nil {
		return nil, err
	}
	value := delta
	if current != nil {
		value += current.Value
	}
	return s.SetProgress(id, day, value)
}

// AddLog inserts a log row verbatim. Used when restoring backups.
func (s *RoutineStore) AddLog(id int64, l model.RoutineLog) error {
	return s.upsertLog(id, l.Day, l.Value, l.Completed)
}

func (s *RoutineStore) upsertLog(id int64, day string, value int, completed bool) error {
	ts := now()
	_, err := s.db.Exec(
		`INSERT INTO routine_logs (routine_id, day, value, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (routine_id, day) DO UPDATE SET value = excluded.value, completed = excluded.completed, updated_at = excluded.updated_at`,
		id, day, value, boolInt(completed), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("upsert routine log: %w", err)
	}
	return nil
}

func (s *RoutineStore) GetLog(id int64, day string) (*model.RoutineLog, error) {
	row := s.db.QueryRow(`SELECT `+routineLogCols+` FROM routine_logs WHERE routine_id = ? AND day = ?`, id, day)
	l, err := scanRoutineLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get routine log: %w", err)
	}
	return l, nil
}

// ListLogs returns a routine's logs between from and to inclusive. Empty
// bounds are open.
func (s *RoutineStore) ListLogs(id int64, from, to string) ([]model.RoutineLog, error) {
	if from == "" {
		from = "0000-00-00"
	}
	if to == "" {
		to = "9999-99-99"
	}
	rows, err := s.db.Query(
		`SELECT `+routineLogCols+` FROM routine_logs
		 WHERE routine_id = ? AND day >= ? AND day <= ?
		 ORDER BY day ASC`,
		id, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list routine logs: %w", err)
	}
	defer rows.Close()

	var logs []model.RoutineLog
	for rows.Next() {
		l, err := scanRoutineLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// LogsForDay returns every routine's log on day keyed by routine id.
func (s *RoutineStore) LogsForDay(day string) (map[int64]model.RoutineLog, error) {
	rows, err := s.db.Query(`SELECT `+routineLogCols+` FROM routine_logs WHERE day = ?`, day)
	if err != nil {
		return nil, fmt.Errorf("list logs for day: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]model.RoutineLog)
	for rows.Next() {
		l, err := scanRoutineLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine log: %w", err)
		}
		out[l.RoutineID] = *l
	}
	return out, rows.Err()
}

// RecomputeStreak recalculates current and best streak from the logs.
// The stored best streak never decreases.
func (s *RoutineStore) RecomputeStreak(id int64, today time.Time) (*model.Routine, error) {
	r, err := s.GetByID(id)
	if err != nil || r == nil {
		return r, err
	}

	rows, err := s.db.Query(`SELECT day FROM routine_logs WHERE routine_id = ? AND completed = 1 ORDER BY day ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list completed days: %w", err)
	}
	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan completed day: %w", err)
		}
		days = append(days, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	current, best := routine.Streaks(r.ScheduledDays, days, today)
	best = max(best, r.BestStreak)
	last := ""
	if len(days) > 0 {
		last = days[len(days)-1]
	}

	_, err = s.db.Exec(
		`UPDATE routines SET current_streak = ?, best_streak = ?, last_completed_on = ? WHERE id = ?`,
		current, best, last, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update streak: %w", err)
	}
	return s.GetByID(id)
}

func (s *RoutineStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM routines`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count routines: %w", err)
	}
	return n, nil
}
