package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

// Stores groups the tables a snapshot covers.
type Stores struct {
	Notes        *store.NoteStore
	Schedules    *store.ScheduleStore
	Routines     *store.RoutineStore
	Transactions *store.TransactionStore
	Budgets      *store.BudgetStore
	Labels       *store.LabelStore
	Preferences  *store.PreferenceStore
}

// Rescheduler re-registers reminders after data changes underneath it.
type Rescheduler interface {
	Reschedule(ctx context.Context) (int, error)
}

// Service converts between the database and snapshot documents.
type Service struct {
	stores    Stores
	reminders Rescheduler
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(stores Stores, reminders Rescheduler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		stores:    stores,
		reminders: reminders,
		logger:    logger.With("component", "backup"),
		now:       time.Now,
	}
}

// Export reads every table into a document.
func (s *Service) Export() (*Document, error) {
	doc := &Document{ExportDate: ExportDate{s.now().UTC().Truncate(time.Second)}}

	notes, err := s.stores.Notes.ListAll()
	if err != nil {
		return nil, err
	}
	if doc.Notes, err = encodeRows(notes); err != nil {
		return nil, fmt.Errorf("encode notes: %w", err)
	}

	schedules, err := s.stores.Schedules.ListAll()
	if err != nil {
		return nil, err
	}
	if doc.Schedules, err = encodeRows(schedules); err != nil {
		return nil, fmt.Errorf("encode schedules: %w", err)
	}

	routines, err := s.stores.Routines.ListAll()
	if err != nil {
		return nil, err
	}
	withLogs := make([]routineRow, 0, len(routines))
	for _, r := range routines {
		logs, err := s.stores.Routines.ListLogs(r.ID, "", "")
		if err != nil {
			return nil, err
		}
		withLogs = append(withLogs, routineRow{Routine: r, Logs: logs})
	}
	if doc.Routines, err = encodeRows(withLogs); err != nil {
		return nil, fmt.Errorf("encode routines: %w", err)
	}

	txns, err := s.stores.Transactions.ListAll()
	if err != nil {
		return nil, err
	}
	if doc.Expenses, err = encodeRows(txns); err != nil {
		return nil, fmt.Errorf("encode expenses: %w", err)
	}

	labels, err := s.stores.Labels.List("")
	if err != nil {
		return nil, err
	}
	if doc.Categories, err = encodeRows(labels); err != nil {
		return nil, fmt.Errorf("encode categories: %w", err)
	}

	budgets, err := s.stores.Budgets.List()
	if err != nil {
		return nil, err
	}
	if doc.Budgets, err = encodeRows(budgets); err != nil {
		return nil, fmt.Errorf("encode budgets: %w", err)
	}

	prefs, err := s.stores.Preferences.GetAll()
	if err != nil {
		return nil, err
	}
	doc.Preferences = prefs

	return doc, nil
}

func encodeRows[T any](items []T) ([]Row, error) {
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		r, err := encodeRow(item)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// WriteTo exports and writes the document, sealed when passphrase is set.
func (s *Service) WriteTo(w io.Writer, passphrase string) (int64, error) {
	doc, err := s.Export()
	if err != nil {
		return 0, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal backup: %w", err)
	}
	if passphrase != "" {
		if data, err = Seal(data, passphrase); err != nil {
			return 0, err
		}
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("write backup: %w", err)
	}
	return int64(n), nil
}

// Decode parses raw backup bytes, opening sealed files with passphrase.
func Decode(data []byte, passphrase string) (*Document, error) {
	if IsSealed(data) {
		plain, err := Open(data, passphrase)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	var doc Document
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse backup: %w", err)
	}
	return &doc, nil
}

// ReadFrom decodes and imports a backup. Every failure is reported through
// the result.
func (s *Service) ReadFrom(ctx context.Context, r io.Reader, passphrase string) Result {
	data, err := io.ReadAll(r)
	if err != nil {
		return failed(fmt.Sprintf("Could not read backup: %v", err))
	}
	doc, err := Decode(data, passphrase)
	switch {
	case errors.Is(err, ErrPassphraseRequired):
		return failed("Backup is encrypted, a passphrase is required")
	case errors.Is(err, ErrWrongPassphrase):
		return failed("Wrong passphrase or corrupted backup")
	case err != nil:
		return failed(fmt.Sprintf("Invalid backup file: %v", err))
	}
	return s.Import(ctx, doc)
}

// importer carries per-run state such as the label id mapping.
type importer struct {
	s      *Service
	res    Result
	labels map[int64]int64
}

func (im *importer) ok(table string) {
	im.res.Imported++
	im.res.Tables[table]++
}

func (im *importer) skip(table string, i int, err error) {
	im.res.Skipped++
	im.s.logger.Debug("skipping backup row", "table", table, "index", i, "error", err)
}

// Import appends every well-formed row of doc through the regular create
// path. Malformed rows are skipped and counted. Nothing is rolled back.
func (s *Service) Import(ctx context.Context, doc *Document) Result {
	im := &importer{
		s:      s,
		res:    Result{Tables: make(map[string]int)},
		labels: make(map[int64]int64),
	}

	for _, table := range doc.Malformed {
		im.res.Skipped++
		s.logger.Warn("skipping malformed backup table", "table", table)
	}

	im.importLabels(doc.Categories)
	im.importNotes(doc.Notes)
	im.importSchedules(doc.Schedules)
	im.importRoutines(doc.Routines)
	im.importTransactions(doc.Expenses)
	im.importBudgets(doc.Budgets)

	if len(doc.Preferences) > 0 {
		if err := s.stores.Preferences.SetMany(doc.Preferences); err != nil {
			s.logger.Warn("restore preferences", "error", err)
		} else {
			im.res.Tables["preferences"] = len(doc.Preferences)
		}
	}

	if s.reminders != nil {
		if _, err := s.reminders.Reschedule(ctx); err != nil {
			s.logger.Warn("reschedule after import", "error", err)
		}
	}

	im.res.Success = true
	im.res.Message = fmt.Sprintf("Imported %d records, skipped %d", im.res.Imported, im.res.Skipped)
	if im.res.Merged > 0 {
		im.res.Message += fmt.Sprintf(", merged %d existing labels", im.res.Merged)
	}
	s.logger.Info("backup imported", "imported", im.res.Imported, "skipped", im.res.Skipped, "merged", im.res.Merged)
	return im.res
}

func errMissing(field string) error {
	return fmt.Errorf("missing %s", field)
}

func (im *importer) label(old *int64) *int64 {
	if old == nil {
		return nil
	}
	if id, ok := im.labels[*old]; ok {
		return &id
	}
	return nil
}

func (im *importer) importLabels(rows []Row) {
	st := im.s.stores.Labels
	for i, row := range rows {
		var l model.Label
		if err := row.decode(&l); err != nil {
			im.skip("categories", i, err)
			continue
		}
		if strings.TrimSpace(l.Name) == "" {
			im.skip("categories", i, errMissing("name"))
			continue
		}
		created, err := st.Create(l.Name, l.Type, l.Color)
		if errors.Is(err, store.ErrDuplicateLabel) {
			// Presets and labels already present keep their row; references
			// are pointed at it.
			existing, err := st.GetByName(l.Type, l.Name)
			if err != nil || existing == nil {
				im.s.logger.Warn("resolve existing label", "type", l.Type, "name", l.Name, "error", err)
				im.skip("categories", i, store.ErrDuplicateLabel)
				continue
			}
			im.labels[l.ID] = existing.ID
			im.res.Merged++
			continue
		}
		if err != nil {
			im.skip("categories", i, err)
			continue
		}
		im.labels[l.ID] = created.ID
		im.ok("categories")
	}
}

func (im *importer) importNotes(rows []Row) {
	st := im.s.stores.Notes
	for i, row := range rows {
		var n model.Note
		if err := row.decode(&n); err != nil {
			im.skip("notes", i, err)
			continue
		}
		if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Content) == "" &&
			strings.TrimSpace(n.RichContent) == "" {
			im.skip("notes", i, errMissing("title or content"))
			continue
		}
		created, err := st.Create(model.NoteInput{
			Title:         n.Title,
			Content:       n.Content,
			RichContent:   n.RichContent,
			ContentFormat: n.ContentFormat,
			HTMLContent:   n.HTMLContent,
			Color:         n.Color,
			LabelID:       im.label(n.LabelID),
			Pinned:        n.Pinned,
			Archived:      n.Archived,
			ReminderAt:    n.ReminderAt,
		})
		if err != nil {
			im.skip("notes", i, err)
			continue
		}
		if n.Deleted {
			if _, err := st.MoveToTrash(created.ID); err != nil {
				im.s.logger.Warn("trash restored note", "id", created.ID, "error", err)
			}
		}
		im.ok("notes")
	}
}

func (im *importer) importSchedules(rows []Row) {
	for i, row := range rows {
		var sc model.Schedule
		if err := row.decode(&sc); err != nil {
			im.skip("schedules", i, err)
			continue
		}
		if strings.TrimSpace(sc.Title) == "" {
			im.skip("schedules", i, errMissing("title"))
			continue
		}
		if sc.StartTime.IsZero() {
			im.skip("schedules", i, errMissing("start_time"))
			continue
		}
		_, err := im.s.stores.Schedules.Create(model.ScheduleInput{
			Title:           sc.Title,
			Description:     sc.Description,
			Location:        sc.Location,
			StartTime:       sc.StartTime,
			EndTime:         sc.EndTime,
			AllDay:          sc.AllDay,
			RecurrenceRule:  sc.RecurrenceRule,
			ReminderOffsets: sc.ReminderOffsets,
			LabelID:         im.label(sc.LabelID),
			Completed:       sc.Completed,
		})
		if err != nil {
			im.skip("schedules", i, err)
			continue
		}
		im.ok("schedules")
	}
}

func (im *importer) importRoutines(rows []Row) {
	st := im.s.stores.Routines
	for i, row := range rows {
		var r routineRow
		if err := row.decode(&r); err != nil {
			im.skip("routines", i, err)
			continue
		}
		if strings.TrimSpace(r.Name) == "" {
			im.skip("routines", i, errMissing("name"))
			continue
		}
		created, err := st.Create(model.RoutineInput{
			Name:          r.Name,
			Description:   r.Description,
			Type:          r.Type,
			Target:        r.Target,
			ScheduledDays: r.ScheduledDays,
			ReminderTime:  r.ReminderTime,
			Archived:      r.Archived,
		})
		if err != nil {
			im.skip("routines", i, err)
			continue
		}
		for _, l := range r.Logs {
			if err := st.AddLog(created.ID, l); err != nil {
				im.s.logger.Warn("restore routine log", "routine_id", created.ID, "day", l.Day, "error", err)
			}
		}
		if len(r.Logs) > 0 {
			if _, err := st.RecomputeStreak(created.ID, im.s.now()); err != nil {
				im.s.logger.Warn("recompute streak", "routine_id", created.ID, "error", err)
			}
		}
		im.ok("routines")
	}
}

func (im *importer) importTransactions(rows []Row) {
	for i, row := range rows {
		var t model.Transaction
		if err := row.decode(&t); err != nil {
			im.skip("expenses", i, err)
			continue
		}
		if t.Type == "" {
			im.skip("expenses", i, errMissing("type"))
			continue
		}
		_, err := im.s.stores.Transactions.Create(model.TransactionInput{
			Type:       t.Type,
			Amount:     t.Amount,
			Category:   t.Category,
			Note:       t.Note,
			OccurredAt: t.OccurredAt,
		})
		if err != nil {
			im.skip("expenses", i, err)
			continue
		}
		im.ok("expenses")
	}
}

func (im *importer) importBudgets(rows []Row) {
	for i, row := range rows {
		var b model.Budget
		if err := row.decode(&b); err != nil {
			im.skip("budgets", i, err)
			continue
		}
		if strings.TrimSpace(b.Category) == "" {
			im.skip("budgets", i, errMissing("category"))
			continue
		}
		if _, err := im.s.stores.Budgets.Create(b.Category, b.Amount, b.Period); err != nil {
			im.skip("budgets", i, err)
			continue
		}
		im.ok("budgets")
	}
}
