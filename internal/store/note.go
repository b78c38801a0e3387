package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/google/uuid"
)

// NoteView selects which lifecycle bucket of notes to list.
type NoteView string

const (
	NotesActive   NoteView = "active"
	NotesArchived NoteView = "archived"
	NotesTrash    NoteView = "trash"
)

type NoteStore struct {
	db *sql.DB
}

func NewNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{db: db}
}

func scanNote(s scanner) (*model.Note, error) {
	var n model.Note
	var labelID sql.NullInt64
	var deletedAt, reminderAt sql.NullTime
	var pinned, archived, deleted int

	err := s.Scan(
		&n.ID, &n.Title, &n.Content, &n.RichContent, &n.ContentFormat, &n.HTMLContent,
		&n.Color, &labelID, &pinned, &archived, &deleted, &deletedAt, &reminderAt,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Pinned = pinned != 0
	n.Archived = archived != 0
	n.Deleted = deleted != 0
	n.LabelID = int64Ptr(labelID)
	n.DeletedAt = timePtr(deletedAt)
	n.ReminderAt = timePtr(reminderAt)
	return &n, nil
}

const noteCols = `id, title, content, rich_content, content_format, html_content,
	color, label_id, pinned, archived, deleted, deleted_at, reminder_at, created_at, updated_at`

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\n", "<br>")

// plainToHTML mirrors the backfill applied by the html_content migration.
func plainToHTML(s string) string {
	return "<p>" + htmlEscaper.Replace(s) + "</p>"
}

func normalizeNote(in model.NoteInput) model.NoteInput {
	if in.ContentFormat == "" {
		in.ContentFormat = model.FormatPlain
	}
	if in.RichContent == "" {
		in.RichContent = in.Content
	}
	if in.HTMLContent == "" {
		in.HTMLContent = plainToHTML(in.RichContent)
	}
	return in
}

func (s *NoteStore) Create(in model.NoteInput) (*model.Note, error) {
	in = normalizeNote(in)
	id := uuid.NewString()
	ts := now()

	_, err := s.db.Exec(
		`INSERT INTO notes (id, title, content, rich_content, content_format, html_content,
			color, label_id, pinned, archived, reminder_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Title, in.Content, in.RichContent, in.ContentFormat, in.HTMLContent,
		in.Color, nullInt64(in.LabelID), boolInt(in.Pinned), boolInt(in.Archived),
		nullTime(in.ReminderAt), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	return s.GetByID(id)
}

func (s *NoteStore) GetByID(id string) (*model.Note, error) {
	row := s.db.QueryRow(`SELECT `+noteCols+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// List returns the notes in the given view. Active and archived views
// order pinned notes first, the trash orders by deletion time.
func (s *NoteStore) List(view NoteView) ([]model.Note, error) {
	var where, order string
	switch view {
	case NotesArchived:
		where = `deleted = 0 AND archived = 1`
		order = `pinned DESC, updated_at DESC`
	case NotesTrash:
		where = `deleted = 1`
		order = `deleted_at DESC`
	default:
		where = `deleted = 0 AND archived = 0`
		order = `pinned DESC, updated_at DESC`
	}
	return s.query(`SELECT ` + noteCols + ` FROM notes WHERE ` + where + ` ORDER BY ` + order)
}

// ListAll returns every note including archived and trashed ones.
func (s *NoteStore) ListAll() ([]model.Note, error) {
	return s.query(`SELECT ` + noteCols + ` FROM notes ORDER BY created_at ASC`)
}

// Search matches title and content of notes that are not in the trash.
func (s *NoteStore) Search(q string) ([]model.Note, error) {
	pattern := "%" + strings.TrimSpace(q) + "%"
	return s.query(
		`SELECT `+noteCols+` FROM notes
		 WHERE deleted = 0 AND (title LIKE ? OR content LIKE ?)
		 ORDER BY pinned DESC, updated_at DESC`,
		pattern, pattern,
	)
}

// ListWithReminders returns live notes whose reminder is after the given time.
func (s *NoteStore) ListWithReminders(after time.Time) ([]model.Note, error) {
	return s.query(
		`SELECT `+noteCols+` FROM notes
		 WHERE deleted = 0 AND archived = 0 AND reminder_at IS NOT NULL AND reminder_at > ?
		 ORDER BY reminder_at ASC`,
		dbTime(after),
	)
}

func (s *NoteStore) query(q string, args ...any) ([]model.Note, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func (s *NoteStore) Update(id string, in model.NoteInput) (*model.Note, error) {
	in = normalizeNote(in)
	_, err := s.db.Exec(
		`UPDATE notes SET title = ?, content = ?, rich_content = ?, content_format = ?, html_content = ?,
			color = ?, label_id = ?, pinned = ?, archived = ?, reminder_at = ?, updated_at = ?
		 WHERE id = ?`,
		in.Title, in.Content, in.RichContent, in.ContentFormat, in.HTMLContent,
		in.Color, nullInt64(in.LabelID), boolInt(in.Pinned), boolInt(in.Archived),
		nullTime(in.ReminderAt), now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return s.GetByID(id)
}

func (s *NoteStore) TogglePinned(id string) (*model.Note, error) {
	note, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, nil
	}

	_, err = s.db.Exec(`UPDATE notes SET pinned = ?, updated_at = ? WHERE id = ?`, boolInt(!note.Pinned), now(), id)
	if err != nil {
		return nil, fmt.Errorf("toggle pinned: %w", err)
	}
	return s.GetByID(id)
}

func (s *NoteStore) SetArchived(id string, archived bool) (*model.Note, error) {
	_, err := s.db.Exec(`UPDATE notes SET archived = ?, updated_at = ? WHERE id = ?`, boolInt(archived), now(), id)
	if err != nil {
		return nil, fmt.Errorf("set archived: %w", err)
	}
	return s.GetByID(id)
}

// MoveToTrash soft-deletes a note. Pinned state is cleared.
func (s *NoteStore) MoveToTrash(id string) (*model.Note, error) {
	ts := now()
	_, err := s.db.Exec(
		`UPDATE notes SET deleted = 1, deleted_at = ?, pinned = 0, updated_at = ? WHERE id = ?`,
		ts, ts, id,
	)
	if err != nil {
		return nil, fmt.Errorf("trash note: %w", err)
	}
	return s.GetByID(id)
}

func (s *NoteStore) Restore(id string) (*model.Note, error) {
	_, err := s.db.Exec(
		`UPDATE notes SET deleted = 0, deleted_at = NULL, updated_at = ? WHERE id = ?`,
		now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("restore note: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes a note permanently.
func (s *NoteStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// EmptyTrash permanently removes trashed notes deleted before the given time
// and returns their ids.
func (s *NoteStore) EmptyTrash(before time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM notes WHERE deleted = 1 AND deleted_at <= ?`, dbTime(before))
	if err != nil {
		return nil, fmt.Errorf("select trashed notes: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan note id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(`DELETE FROM notes WHERE deleted = 1 AND deleted_at <= ?`, dbTime(before)); err != nil {
		return nil, fmt.Errorf("empty trash: %w", err)
	}
	return ids, nil
}

func (s *NoteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return n, nil
}
