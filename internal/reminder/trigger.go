package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/recurrence"
)

// allDayHour is the local hour all-day schedules remind relative to.
const allDayHour = 9

// NoteAlarms returns the alarm for a note's reminder, if it is still due.
func NoteAlarms(n model.Note, now time.Time) []model.Alarm {
	if n.ReminderAt == nil || n.Archived || n.Deleted || !n.ReminderAt.After(now) {
		return nil
	}
	title := n.Title
	if title == "" {
		title = "Note reminder"
	}
	return []model.Alarm{{
		Key:       Key(model.AlarmNote, StringID(n.ID), 0),
		Kind:      model.AlarmNote,
		EntityID:  n.ID,
		TriggerAt: n.ReminderAt.UTC(),
		Title:     title,
		Body:      excerpt(n.Content, 120),
	}}
}

// ScheduleAlarms returns one alarm per reminder offset, each at the first
// occurrence whose reminder time is after now.
func ScheduleAlarms(s model.Schedule, now time.Time, loc *time.Location) []model.Alarm {
	if s.Completed || len(s.ReminderOffsets) == 0 {
		return nil
	}

	var rule *recurrence.Rule
	if s.RecurrenceRule != "" {
		r, err := recurrence.Parse(s.RecurrenceRule)
		if err != nil {
			return nil
		}
		rule = &r
	}

	var out []model.Alarm
	for _, off := range s.ReminderOffsets {
		if off < 0 || off > MaxOffset {
			continue
		}
		lead := time.Duration(off) * time.Minute

		start, ok := nextStart(s, rule, now.Add(lead), loc)
		if !ok {
			continue
		}
		out = append(out, model.Alarm{
			Key:       Key(model.AlarmSchedule, s.ID, off),
			Kind:      model.AlarmSchedule,
			EntityID:  strconv.FormatInt(s.ID, 10),
			Offset:    off,
			TriggerAt: start.Add(-lead).UTC(),
			Title:     s.Title,
			Body:      scheduleBody(s, off),
		})
	}
	return out
}

// nextStart finds the first reminder anchor of s strictly after t.
func nextStart(s model.Schedule, rule *recurrence.Rule, t time.Time, loc *time.Location) (time.Time, bool) {
	anchor := func(start time.Time) time.Time {
		if !s.AllDay {
			return start
		}
		return time.Date(start.Year(), start.Month(), start.Day(), allDayHour, 0, 0, 0, loc)
	}

	if rule == nil {
		a := anchor(s.StartTime)
		return a, a.After(t)
	}
	for start := range recurrence.Starts(*rule, s.StartTime) {
		if a := anchor(start); a.After(t) {
			return a, true
		}
	}
	return time.Time{}, false
}

func scheduleBody(s model.Schedule, off int) string {
	var when string
	switch {
	case off == 0:
		when = "Starting now"
	case off%1440 == 0:
		when = fmt.Sprintf("Starts in %d day(s)", off/1440)
	case off%60 == 0:
		when = fmt.Sprintf("Starts in %d hour(s)", off/60)
	default:
		when = fmt.Sprintf("Starts in %d minutes", off)
	}
	if s.Location != "" {
		when += " at " + s.Location
	}
	return when
}

// RoutineAlarms returns one alarm per scheduled weekday at the routine's
// reminder time, keyed by weekday number.
func RoutineAlarms(r model.Routine, now time.Time, loc *time.Location) []model.Alarm {
	if r.Archived || r.ReminderTime == "" {
		return nil
	}
	hm, err := time.Parse("15:04", r.ReminderTime)
	if err != nil {
		return nil
	}

	local := now.In(loc)
	body := r.Description
	if body == "" {
		body = "Time for your routine"
	}

	var out []model.Alarm
	for _, wd := range r.ScheduledDays.Days() {
		ahead := (int(wd) - int(local.Weekday()) + 7) % 7
		at := time.Date(local.Year(), local.Month(), local.Day()+ahead, hm.Hour(), hm.Minute(), 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 7)
		}
		out = append(out, model.Alarm{
			Key:       Key(model.AlarmRoutine, r.ID, int(wd)),
			Kind:      model.AlarmRoutine,
			EntityID:  strconv.FormatInt(r.ID, 10),
			Offset:    int(wd),
			TriggerAt: at.UTC(),
			Title:     r.Name,
			Body:      body,
		})
	}
	return out
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
