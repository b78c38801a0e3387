package model

import "time"

type RoutineType string

const (
	RoutineSimple  RoutineType = "simple"
	RoutineCounter RoutineType = "counter"
	RoutineTimer   RoutineType = "timer"
)

func (t RoutineType) Valid() bool {
	switch t {
	case RoutineSimple, RoutineCounter, RoutineTimer:
		return true
	}
	return false
}

// Weekdays is a bitmask of scheduled days, bit n set for time.Weekday(n).
// The zero value means every day.
type Weekdays uint8

func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

func (w Weekdays) Has(d time.Weekday) bool {
	if w == 0 {
		return true
	}
	return w&(1<<uint(d)) != 0
}

// Days lists the scheduled weekdays in Sunday-first order.
func (w Weekdays) Days() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

type Routine struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Type            RoutineType `json:"type"`
	Target          int         `json:"target"`
	ScheduledDays   Weekdays    `json:"scheduled_days"`
	ReminderTime    string      `json:"reminder_time"`
	CurrentStreak   int         `json:"current_streak"`
	BestStreak      int         `json:"best_streak"`
	LastCompletedOn string      `json:"last_completed_on"`
	Archived        bool        `json:"archived"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type RoutineInput struct {
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Type          RoutineType `json:"type"`
	Target        int         `json:"target"`
	ScheduledDays Weekdays    `json:"scheduled_days"`
	ReminderTime  string      `json:"reminder_time"`
	Archived      bool        `json:"archived"`
}

// RoutineLog records progress for one routine on one calendar day.
type RoutineLog struct {
	ID        int64     `json:"id"`
	RoutineID int64     `json:"routine_id"`
	Day       string    `json:"day"`
	Value     int       `json:"value"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DayLayout is the calendar-day format used by routine logs.
const DayLayout = "2006-01-02"
