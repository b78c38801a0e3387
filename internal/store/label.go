package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/daybook/internal/model"
)

type LabelStore struct {
	db *sql.DB
}

func NewLabelStore(db *sql.DB) *LabelStore {
	return &LabelStore{db: db}
}

const labelCols = `id, name, type, color, preset, sort_order, created_at`

func scanLabel(s scanner) (*model.Label, error) {
	var l model.Label
	var preset int
	if err := s.Scan(&l.ID, &l.Name, &l.Type, &l.Color, &preset, &l.SortOrder, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Preset = preset != 0
	return &l, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create appends a user label at the end of its type's ordering. A label
// whose (type, name) already exists yields ErrDuplicateLabel.
func (s *LabelStore) Create(name string, typ model.LabelType, color string) (*model.Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("label name is required")
	}
	if !typ.Valid() {
		return nil, invalidf("invalid label type %q", typ)
	}
	if color == "" {
		color = "#9E9E9E"
	}

	result, err := s.db.Exec(
		`INSERT INTO labels (name, type, color, preset, sort_order, created_at)
		 VALUES (?, ?, ?, 0, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM labels WHERE type = ?), ?)`,
		name, typ, color, typ, now(),
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateLabel
	}
	if err != nil {
		return nil, fmt.Errorf("insert label: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *LabelStore) GetByID(id int64) (*model.Label, error) {
	row := s.db.QueryRow(`SELECT `+labelCols+` FROM labels WHERE id = ?`, id)
	l, err := scanLabel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get label: %w", err)
	}
	return l, nil
}

// GetByName looks a label up by type and case-insensitive name.
func (s *LabelStore) GetByName(typ model.LabelType, name string) (*model.Label, error) {
	row := s.db.QueryRow(`SELECT `+labelCols+` FROM labels WHERE type = ? AND name = ? COLLATE NOCASE`, typ, strings.TrimSpace(name))
	l, err := scanLabel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get label by name: %w", err)
	}
	return l, nil
}

// List returns labels of one type, or all labels when typ is empty.
func (s *LabelStore) List(typ model.LabelType) ([]model.Label, error) {
	q := `SELECT ` + labelCols + ` FROM labels`
	var args []any
	if typ != "" {
		q += ` WHERE type = ?`
		args = append(args, typ)
	}
	q += ` ORDER BY type ASC, sort_order ASC, id ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	var out []model.Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ListCustom returns the labels a user created, excluding presets.
func (s *LabelStore) ListCustom() ([]model.Label, error) {
	all, err := s.List("")
	if err != nil {
		return nil, err
	}
	var out []model.Label
	for _, l := range all {
		if !l.Preset {
			out = append(out, l)
		}
	}
	return out, nil
}

// Update renames or recolors a label. Preset labels may be recolored but
// keep their name.
func (s *LabelStore) Update(id int64, name, color string) (*model.Label, error) {
	l, err := s.GetByID(id)
	if err != nil || l == nil {
		return l, err
	}
	name = strings.TrimSpace(name)
	if name == "" || l.Preset {
		name = l.Name
	}
	if color == "" {
		color = l.Color
	}

	_, err = s.db.Exec(`UPDATE labels SET name = ?, color = ? WHERE id = ?`, name, color, id)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateLabel
	}
	if err != nil {
		return nil, fmt.Errorf("update label: %w", err)
	}
	return s.GetByID(id)
}

// UpdateSortOrder sets sort_order for the given ids to their position.
func (s *LabelStore) UpdateSortOrder(ids []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE labels SET sort_order = ? WHERE id = ?`, i, id); err != nil {
			return fmt.Errorf("update sort order: %w", err)
		}
	}
	return tx.Commit()
}

// Delete removes a user label. Notes and schedules referencing it lose
// their label.
func (s *LabelStore) Delete(id int64) error {
	l, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if l == nil {
		return nil
	}
	if l.Preset {
		return ErrPresetLabel
	}

	if _, err := s.db.Exec(`DELETE FROM labels WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	return nil
}

func (s *LabelStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM labels`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count labels: %w", err)
	}
	return n, nil
}
