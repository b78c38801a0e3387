package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/recurrence"
)

type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

const scheduleCols = `id, title, description, location, start_time, end_time, all_day,
	recurrence_rule, reminder_offsets, label_id, completed, created_at, updated_at`

func scanSchedule(s scanner) (*model.Schedule, error) {
	var e model.Schedule
	var allDay, completed int
	var offsets string
	var labelID sql.NullInt64

	err := s.Scan(
		&e.ID, &e.Title, &e.Description, &e.Location, &e.StartTime, &e.EndTime, &allDay,
		&e.RecurrenceRule, &offsets, &labelID, &completed, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.AllDay = allDay != 0
	e.Completed = completed != 0
	e.LabelID = int64Ptr(labelID)
	e.ReminderOffsets = decodeOffsets(offsets)
	e.StartTime = e.StartTime.UTC()
	e.EndTime = e.EndTime.UTC()
	return &e, nil
}

// encodeOffsets stores reminder minutes as a sorted, de-duplicated list.
func encodeOffsets(offsets []int) string {
	seen := make(map[int]bool, len(offsets))
	var clean []int
	for _, o := range offsets {
		if o < 0 || seen[o] {
			continue
		}
		seen[o] = true
		clean = append(clean, o)
	}
	sort.Ints(clean)

	parts := make([]string, len(clean))
	for i, o := range clean {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

func decodeOffsets(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (s *ScheduleStore) Create(in model.ScheduleInput) (*model.Schedule, error) {
	if in.RecurrenceRule != "" && !recurrence.Valid(in.RecurrenceRule) {
		return nil, invalidf("invalid recurrence rule %q", in.RecurrenceRule)
	}
	if in.EndTime.IsZero() || in.EndTime.Before(in.StartTime) {
		in.EndTime = in.StartTime
	}
	ts := now()

	result, err := s.db.Exec(
		`INSERT INTO schedules (title, description, location, start_time, end_time, all_day,
			recurrence_rule, reminder_offsets, label_id, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Title, in.Description, in.Location, dbTime(in.StartTime), dbTime(in.EndTime), boolInt(in.AllDay),
		in.RecurrenceRule, encodeOffsets(in.ReminderOffsets), nullInt64(in.LabelID), boolInt(in.Completed), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ScheduleStore) GetByID(id int64) (*model.Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id)
	e, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return e, nil
}

// ListAll returns every schedule ordered by start time.
func (s *ScheduleStore) ListAll() ([]model.Schedule, error) {
	return s.query(`SELECT ` + scheduleCols + ` FROM schedules ORDER BY start_time ASC`)
}

// ListWithReminders returns incomplete schedules that carry at least one
// reminder offset and can still produce a future occurrence.
func (s *ScheduleStore) ListWithReminders(after time.Time) ([]model.Schedule, error) {
	return s.query(
		`SELECT `+scheduleCols+` FROM schedules
		 WHERE completed = 0 AND reminder_offsets != ''
		   AND (recurrence_rule != '' OR start_time > ?)
		 ORDER BY start_time ASC`,
		dbTime(after),
	)
}

// Occurrences expands every schedule overlapping [start, end) into
// individual instances, recurring ones included.
func (s *ScheduleStore) Occurrences(start, end time.Time) ([]model.Occurrence, error) {
	// One-off events are filtered in SQL, recurring ones in Go.
	schedules, err := s.query(
		`SELECT `+scheduleCols+` FROM schedules
		 WHERE (recurrence_rule = '' AND start_time < ? AND end_time >= ?)
		    OR (recurrence_rule != '' AND start_time < ?)
		 ORDER BY start_time ASC`,
		dbTime(end), dbTime(start), dbTime(end),
	)
	if err != nil {
		return nil, err
	}

	var out []model.Occurrence
	for _, e := range schedules {
		if e.RecurrenceRule == "" {
			if e.EndTime.Equal(start) && !e.StartTime.Equal(e.EndTime) {
				continue
			}
			out = append(out, model.Occurrence{
				ScheduleID: e.ID, Title: e.Title, Start: e.StartTime, End: e.EndTime, AllDay: e.AllDay,
			})
			continue
		}

		rule, err := recurrence.Parse(e.RecurrenceRule)
		if err != nil {
			continue
		}
		for _, o := range recurrence.Expand(rule, e.StartTime, e.EndTime, start, end) {
			out = append(out, model.Occurrence{
				ScheduleID: e.ID, Title: e.Title, Start: o.Start, End: o.End, AllDay: e.AllDay, Recurring: true,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *ScheduleStore) query(q string, args ...any) ([]model.Schedule, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *ScheduleStore) Update(id int64, in model.ScheduleInput) (*model.Schedule, error) {
	if in.RecurrenceRule != "" && !recurrence.Valid(in.RecurrenceRule) {
		return nil, invalidf("invalid recurrence rule %q", in.RecurrenceRule)
	}
	if in.EndTime.IsZero() || in.EndTime.Before(in.StartTime) {
		in.EndTime = in.StartTime
	}

	_, err := s.db.Exec(
		`UPDATE schedules SET title = ?, description = ?, location = ?, start_time = ?, end_time = ?, all_day = ?,
			recurrence_rule = ?, reminder_offsets = ?, label_id = ?, completed = ?, updated_at = ?
		 WHERE id = ?`,
		in.Title, in.Description, in.Location, dbTime(in.StartTime), dbTime(in.EndTime), boolInt(in.AllDay),
		in.RecurrenceRule, encodeOffsets(in.ReminderOffsets), nullInt64(in.LabelID), boolInt(in.Completed), now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return s.GetByID(id)
}

func (s *ScheduleStore) SetCompleted(id int64, completed bool) (*model.Schedule, error) {
	_, err := s.db.Exec(`UPDATE schedules SET completed = ?, updated_at = ? WHERE id = ?`, boolInt(completed), now(), id)
	if err != nil {
		return nil, fmt.Errorf("set schedule completed: %w", err)
	}
	return s.GetByID(id)
}

func (s *ScheduleStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schedules`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count schedules: %w", err)
	}
	return n, nil
}
