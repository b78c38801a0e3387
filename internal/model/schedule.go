package model

import "time"

type Schedule struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	AllDay          bool      `json:"all_day"`
	RecurrenceRule  string    `json:"recurrence_rule"`
	ReminderOffsets []int     `json:"reminder_offsets"`
	LabelID         *int64    `json:"label_id"`
	Completed       bool      `json:"completed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ScheduleInput struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	AllDay          bool      `json:"all_day"`
	RecurrenceRule  string    `json:"recurrence_rule"`
	ReminderOffsets []int     `json:"reminder_offsets"`
	LabelID         *int64    `json:"label_id"`
	Completed       bool      `json:"completed"`
}

// Occurrence is one expanded instance of a schedule within a date range.
type Occurrence struct {
	ScheduleID int64     `json:"schedule_id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	AllDay     bool      `json:"all_day"`
	Recurring  bool      `json:"recurring"`
}
