package model

import "time"

// AlarmKind identifies which entity table an alarm belongs to.
type AlarmKind string

const (
	AlarmNote     AlarmKind = "note"
	AlarmSchedule AlarmKind = "schedule"
	AlarmRoutine  AlarmKind = "routine"
)

// Alarm is a registered reminder trigger keyed by its stable key.
type Alarm struct {
	Key       int32     `json:"key"`
	Kind      AlarmKind `json:"kind"`
	EntityID  string    `json:"entity_id"`
	Offset    int       `json:"offset"`
	TriggerAt time.Time `json:"trigger_at"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
