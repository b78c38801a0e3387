package model

import "time"

const (
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
)

type Note struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	RichContent   string     `json:"rich_content"`
	ContentFormat string     `json:"content_format"`
	HTMLContent   string     `json:"html_content"`
	Color         string     `json:"color"`
	LabelID       *int64     `json:"label_id"`
	Pinned        bool       `json:"pinned"`
	Archived      bool       `json:"archived"`
	Deleted       bool       `json:"deleted"`
	DeletedAt     *time.Time `json:"deleted_at"`
	ReminderAt    *time.Time `json:"reminder_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NoteInput carries the user-editable fields of a note.
type NoteInput struct {
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	RichContent   string     `json:"rich_content"`
	ContentFormat string     `json:"content_format"`
	HTMLContent   string     `json:"html_content"`
	Color         string     `json:"color"`
	LabelID       *int64     `json:"label_id"`
	Pinned        bool       `json:"pinned"`
	Archived      bool       `json:"archived"`
	ReminderAt    *time.Time `json:"reminder_at"`
}
