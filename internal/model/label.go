package model

import "time"

type LabelType string

const (
	LabelNote    LabelType = "note"
	LabelExpense LabelType = "expense"
	LabelIncome  LabelType = "income"
	LabelEvent   LabelType = "event"
)

func (t LabelType) Valid() bool {
	switch t {
	case LabelNote, LabelExpense, LabelIncome, LabelEvent:
		return true
	}
	return false
}

type Label struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      LabelType `json:"type"`
	Color     string    `json:"color"`
	Preset    bool      `json:"preset"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}
