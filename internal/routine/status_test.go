package routine

import (
	"testing"
	"time"

	"github.com/dukerupert/daybook/internal/model"
)

// 2026-02-02 is a Monday.
func day(d int) time.Time {
	return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC)
}

func TestTarget(t *testing.T) {
	tests := []struct {
		r    model.Routine
		want int
	}{
		{model.Routine{Type: model.RoutineSimple, Target: 5}, 1},
		{model.Routine{Type: model.RoutineCounter, Target: 8}, 8},
		{model.Routine{Type: model.RoutineTimer, Target: 600}, 600},
		{model.Routine{Type: model.RoutineCounter}, 1},
	}
	for _, tt := range tests {
		if got := Target(tt.r); got != tt.want {
			t.Errorf("Target(%s, %d) = %d, want %d", tt.r.Type, tt.r.Target, got, tt.want)
		}
	}
}

func TestComputeStatus(t *testing.T) {
	weekdays := model.Routine{ScheduledDays: model.NewWeekdays(time.Monday, time.Wednesday, time.Friday)}
	done := &model.RoutineLog{Completed: true}
	partial := &model.RoutineLog{Value: 1}

	tests := []struct {
		name string
		log  *model.RoutineLog
		day  time.Time
		want Status
	}{
		{"scheduled today open", nil, day(4), StatusPending},
		{"scheduled today partial", partial, day(4), StatusPending},
		{"scheduled today done", done, day(4), StatusCompleted},
		{"scheduled past open", nil, day(2), StatusMissed},
		{"unscheduled", nil, day(3), StatusNotDue},
		{"unscheduled but done", done, day(3), StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeStatus(weekdays, tt.log, tt.day, day(4)); got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithStatusProgress(t *testing.T) {
	r := model.Routine{Type: model.RoutineCounter, Target: 8}
	rs := WithStatus(r, &model.RoutineLog{Value: 2}, day(4))
	if rs.Progress != 25 {
		t.Errorf("progress = %d, want 25", rs.Progress)
	}
	rs = WithStatus(r, &model.RoutineLog{Value: 12, Completed: true}, day(4))
	if rs.Progress != 100 {
		t.Errorf("progress = %d, want 100", rs.Progress)
	}
	if rs.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", rs.Status, StatusCompleted)
	}
}

func TestStreaksEveryDay(t *testing.T) {
	completed := []string{"2026-02-02", "2026-02-03", "2026-02-04"}

	cur, best := Streaks(0, completed, day(4))
	if cur != 3 || best != 3 {
		t.Errorf("streak = %d/%d, want 3/3", cur, best)
	}

	// Today still open keeps yesterday's streak.
	cur, _ = Streaks(0, completed, day(5))
	if cur != 3 {
		t.Errorf("current = %d, want 3 while today is open", cur)
	}

	// A missed day resets it.
	cur, best = Streaks(0, completed, day(6))
	if cur != 0 || best != 3 {
		t.Errorf("streak = %d/%d, want 0/3", cur, best)
	}
}

func TestStreaksSkipUnscheduledDays(t *testing.T) {
	mwf := model.NewWeekdays(time.Monday, time.Wednesday, time.Friday)
	completed := []string{"2026-02-02", "2026-02-04", "2026-02-06", "2026-02-09"}

	cur, best := Streaks(mwf, completed, day(10))
	if cur != 4 || best != 4 {
		t.Errorf("streak = %d/%d, want 4/4", cur, best)
	}
}

func TestStreaksBestSurvivesBreak(t *testing.T) {
	completed := []string{"2026-02-01", "2026-02-02", "2026-02-03", "2026-02-05"}

	cur, best := Streaks(0, completed, day(5))
	if cur != 1 || best != 3 {
		t.Errorf("streak = %d/%d, want 1/3", cur, best)
	}
}

func TestStreaksEmpty(t *testing.T) {
	if cur, best := Streaks(0, nil, day(5)); cur != 0 || best != 0 {
		t.Errorf("streak = %d/%d, want 0/0", cur, best)
	}
}

func TestIsDueOnDate(t *testing.T) {
	r := model.Routine{ScheduledDays: model.NewWeekdays(time.Saturday)}
	if !IsDueOnDate(r, day(7)) {
		t.Error("expected due on Saturday")
	}
	if IsDueOnDate(r, day(8)) {
		t.Error("expected not due on Sunday")
	}
	r.Archived = true
	if IsDueOnDate(r, day(7)) {
		t.Error("archived routine should never be due")
	}
}
