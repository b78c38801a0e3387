package routine

import (
	"sort"
	"time"

	"github.com/dukerupert/daybook/internal/model"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
	StatusNotDue    Status = "not_due"
)

type RoutineWithStatus struct {
	model.Routine
	Status   Status `json:"status"`
	Value    int    `json:"value"`
	Progress int    `json:"progress"` // percent of target, capped at 100
}

// Target returns the effective completion target. Simple routines always
// complete with a single check.
func Target(r model.Routine) int {
	if r.Type == model.RoutineSimple || r.Target < 1 {
		return 1
	}
	return r.Target
}

// IsComplete reports whether value reaches the routine's target.
func IsComplete(r model.Routine, value int) bool {
	return value >= Target(r)
}

// ComputeStatus determines a routine's status on day given that day's log.
func ComputeStatus(r model.Routine, log *model.RoutineLog, day, today time.Time) Status {
	day, today = startOfDay(day), startOfDay(today)

	if !r.ScheduledDays.Has(day.Weekday()) {
		if log != nil && log.Completed {
			return StatusCompleted
		}
		return StatusNotDue
	}
	if log != nil && log.Completed {
		return StatusCompleted
	}
	if day.Before(today) {
		return StatusMissed
	}
	return StatusPending
}

// WithStatus decorates r with its status and progress for today.
func WithStatus(r model.Routine, log *model.RoutineLog, today time.Time) RoutineWithStatus {
	rs := RoutineWithStatus{Routine: r, Status: ComputeStatus(r, log, today, today)}
	if log != nil {
		rs.Value = log.Value
	}
	rs.Progress = min(rs.Value*100/Target(r), 100)
	return rs
}

// Streaks counts consecutive completed scheduled days. The current streak
// ends today, or on the previous scheduled day when today is still open.
// Days off the schedule neither extend nor break a streak.
func Streaks(days model.Weekdays, completed []string, today time.Time) (current, best int) {
	if len(completed) == 0 {
		return 0, 0
	}

	done := make(map[string]bool, len(completed))
	for _, d := range completed {
		done[d] = true
	}
	sorted := append([]string(nil), completed...)
	sort.Strings(sorted)

	first, err := time.ParseInLocation(model.DayLayout, sorted[0], today.Location())
	if err != nil {
		return 0, 0
	}
	today = startOfDay(today)

	run := 0
	for d := first; !d.After(today); d = d.AddDate(0, 0, 1) {
		if !days.Has(d.Weekday()) {
			continue
		}
		key := d.Format(model.DayLayout)
		switch {
		case done[key]:
			run++
			best = max(best, run)
		case d.Equal(today):
			// still open
		default:
			run = 0
		}
	}
	return run, best
}

// IsDueOnDate reports whether the routine is scheduled on the given day.
func IsDueOnDate(r model.Routine, date time.Time) bool {
	return !r.Archived && r.ScheduledDays.Has(date.Weekday())
}

// Day formats t as a routine log day.
func Day(t time.Time) string {
	return t.Format(model.DayLayout)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
