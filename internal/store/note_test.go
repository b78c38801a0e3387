package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/daybook/internal/database"
	"github.com/dukerupert/daybook/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNoteCRUD(t *testing.T) {
	ns := NewNoteStore(setupTestDB(t))

	note, err := ns.Create(model.NoteInput{Title: "Test Note", Content: "Some body & text"})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if note.ID == "" {
		t.Fatal("expected generated id")
	}
	if note.Title != "Test Note" {
		t.Errorf("title = %q, want %q", note.Title, "Test Note")
	}
	if note.ContentFormat != model.FormatPlain {
		t.Errorf("content_format = %q, want %q", note.ContentFormat, model.FormatPlain)
	}
	if note.RichContent != "Some body & text" {
		t.Errorf("rich_content = %q", note.RichContent)
	}
	if want := "<p>Some body &amp; text</p>"; note.HTMLContent != want {
		t.Errorf("html_content = %q, want %q", note.HTMLContent, want)
	}
	if note.ReminderAt != nil {
		t.Errorf("reminder_at = %v, want nil", note.ReminderAt)
	}

	got, err := ns.GetByID(note.ID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if got == nil {
		t.Fatal("expected note, got nil")
	}

	remind := time.Now().Add(2 * time.Hour)
	updated, err := ns.Update(note.ID, model.NoteInput{
		Title:         "Updated Title",
		Content:       "# heading",
		ContentFormat: model.FormatMarkdown,
		HTMLContent:   "<h1>heading</h1>",
		Pinned:        true,
		ReminderAt:    &remind,
	})
	if err != nil {
		t.Fatalf("update note: %v", err)
	}
	if updated.Title != "Updated Title" {
		t.Errorf("title = %q, want %q", updated.Title, "Updated Title")
	}
	if !updated.Pinned {
		t.Error("expected pinned")
	}
	if updated.HTMLContent != "<h1>heading</h1>" {
		t.Errorf("html_content = %q", updated.HTMLContent)
	}
	if updated.ReminderAt == nil || !updated.ReminderAt.Equal(remind.Truncate(time.Second)) {
		t.Errorf("reminder_at = %v, want %v", updated.ReminderAt, remind.Truncate(time.Second))
	}

	if err := ns.Delete(note.ID); err != nil {
		t.Fatalf("delete note: %v", err)
	}
	gone, err := ns.GetByID(note.ID)
	if err != nil {
		t.Fatalf("get deleted note: %v", err)
	}
	if gone != nil {
		t.Error("expected nil after delete")
	}
}

func TestNoteLifecycleViews(t *testing.T) {
	ns := NewNoteStore(setupTestDB(t))

	a, _ := ns.Create(model.NoteInput{Title: "A"})
	b, _ := ns.Create(model.NoteInput{Title: "B", Pinned: true})
	c, _ := ns.Create(model.NoteInput{Title: "C"})

	if _, err := ns.SetArchived(a.ID, true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	trashed, err := ns.MoveToTrash(b.ID)
	if err != nil {
		t.Fatalf("trash: %v", err)
	}
	if !trashed.Deleted || trashed.DeletedAt == nil {
		t.Error("expected deleted with deleted_at")
	}
	if trashed.Pinned {
		t.Error("expected pin cleared on trash")
	}

	active, _ := ns.List(NotesActive)
	if len(active) != 1 || active[0].ID != c.ID {
		t.Errorf("active = %v, want only C", active)
	}
	archived, _ := ns.List(NotesArchived)
	if len(archived) != 1 || archived[0].ID != a.ID {
		t.Errorf("archived = %v, want only A", archived)
	}
	trash, _ := ns.List(NotesTrash)
	if len(trash) != 1 || trash[0].ID != b.ID {
		t.Errorf("trash = %v, want only B", trash)
	}

	restored, err := ns.Restore(b.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Deleted || restored.DeletedAt != nil {
		t.Error("expected restored note to be live")
	}

	all, _ := ns.ListAll()
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
}

func TestNoteTogglePinned(t *testing.T) {
	ns := NewNoteStore(setupTestDB(t))

	note, _ := ns.Create(model.NoteInput{Title: "Pin me"})
	toggled, err := ns.TogglePinned(note.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !toggled.Pinned {
		t.Error("expected pinned after first toggle")
	}
	toggled, _ = ns.TogglePinned(note.ID)
	if toggled.Pinned {
		t.Error("expected unpinned after second toggle")
	}

	missing, err := ns.TogglePinned("nope")
	if err != nil {
		t.Fatalf("toggle missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing note")
	}
}

func TestNotePinnedFirst(t *testing.T) {
	ns := NewNoteStore(setupTestDB(t))

	ns.Create(model.NoteInput{Title: "Regular"})
	ns.Create(model.NoteInput{Title: "Pinned", Pinned: true})

	notes, err := ns.List(NotesActive)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("len = %d, want 2", len(notes))
	}
	if notes[0].Title != "Pinned" {
		t.Errorf("first = %q, want %q", notes[0].Title, "Pinned")
	}
}

func TestNoteSearch(t *testing.T) {
	ns := NewNoteStore(setupTestDB(t))

	ns.Create(model.NoteInput{Title: "Shopping", Content: "buy oat milk"})
	ns.Create(model.NoteInput{Title: "Work", Content: "quarterly report"})
	hidden, _ := ns.Create(model.NoteInput{Title: "Old milk note"})
	ns.MoveToTrash(hidden.ID)

	found, err := ns.Search("milk")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].Title != "Shopping" {
		t.Errorf("search = %v, want only Shopping", found)
	}
}

func TestNoteListWithReminders(t *testing.T) {
	ns := NewNoteStore(setupTestDB(t))

	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	ns.Create(model.NoteInput{Title: "Future", ReminderAt: &future})
	ns.Create(model.NoteInput{Title: "Past", ReminderAt: &past})
	ns.Create(model.NoteInput{Title: "Archived", ReminderAt: &future, Archived: true})
	ns.Create(model.NoteInput{Title: "None"})

	notes, err := ns.ListWithReminders(time.Now())
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(notes) != 1 || notes[0].Title != "Future" {
		t.Errorf("reminders = %v, want only Future", notes)
	}
}

func TestNoteEmptyTrash(t *testing.T) {
	ns := NewNoteStore(setupTestDB(t))

	keep, _ := ns.Create(model.NoteInput{Title: "Keep"})
	drop, _ := ns.Create(model.NoteInput{Title: "Drop"})
	ns.MoveToTrash(drop.ID)

	ids, err := ns.EmptyTrash(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("empty trash: %v", err)
	}
	if len(ids) != 1 || ids[0] != drop.ID {
		t.Errorf("purged = %v, want [%s]", ids, drop.ID)
	}

	n, _ := ns.Count()
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if got, _ := ns.GetByID(keep.ID); got == nil {
		t.Error("expected live note to survive")
	}
}

func TestNoteLabelSetNullOnDelete(t *testing.T) {
	db := setupTestDB(t)
	ns := NewNoteStore(db)
	ls := NewLabelStore(db)

	label, err := ls.Create("Errands", model.LabelNote, "#123456")
	if err != nil {
		t.Fatalf("create label: %v", err)
	}
	note, _ := ns.Create(model.NoteInput{Title: "Tagged", LabelID: &label.ID})
	if note.LabelID == nil || *note.LabelID != label.ID {
		t.Fatalf("label_id = %v, want %d", note.LabelID, label.ID)
	}

	if err := ls.Delete(label.ID); err != nil {
		t.Fatalf("delete label: %v", err)
	}
	got, _ := ns.GetByID(note.ID)
	if got.LabelID != nil {
		t.Errorf("label_id = %v, want nil", *got.LabelID)
	}
}
