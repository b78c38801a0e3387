package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/daybook/internal/model"
)

// BackupStore records the history of export and import jobs.
type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

const backupCols = `id, kind, filename, remote_key, size_bytes, status, message, started_at, completed_at`

func scanBackup(s scanner) (*model.Backup, error) {
	var b model.Backup
	var completedAt sql.NullTime
	if err := s.Scan(&b.ID, &b.Kind, &b.Filename, &b.RemoteKey, &b.SizeBytes, &b.Status, &b.Message, &b.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	b.CompletedAt = timePtr(completedAt)
	return &b, nil
}

func (s *BackupStore) Create(kind model.BackupKind, filename string) (*model.Backup, error) {
	result, err := s.db.Exec(
		`INSERT INTO backups (kind, filename, status, started_at) VALUES (?, ?, ?, ?)`,
		kind, filename, model.BackupStatusPending, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *BackupStore) GetByID(id int64) (*model.Backup, error) {
	row := s.db.QueryRow(`SELECT `+backupCols+` FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %d: %w", id, err)
	}
	return b, nil
}

// List returns the most recent jobs first.
func (s *BackupStore) List(limit int) ([]model.Backup, error) {
	rows, err := s.db.Query(`SELECT `+backupCols+` FROM backups ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

func (s *BackupStore) UpdateStatus(id int64, status model.BackupStatus, message string) error {
	_, err := s.db.Exec(`UPDATE backups SET status = ?, message = ? WHERE id = ?`, status, message, id)
	if err != nil {
		return fmt.Errorf("update backup status: %w", err)
	}
	return nil
}

// Finish marks a job done with its outcome.
func (s *BackupStore) Finish(id int64, status model.BackupStatus, sizeBytes int64, message string) error {
	_, err := s.db.Exec(
		`UPDATE backups SET status = ?, size_bytes = ?, message = ?, completed_at = ? WHERE id = ?`,
		status, sizeBytes, message, now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish backup: %w", err)
	}
	return nil
}

func (s *BackupStore) SetRemoteKey(id int64, key string) error {
	if _, err := s.db.Exec(`UPDATE backups SET remote_key = ? WHERE id = ?`, key, id); err != nil {
		return fmt.Errorf("set backup remote key: %w", err)
	}
	return nil
}

// DeleteOlderThan removes export records started before the given time and
// returns them so their files can be removed.
func (s *BackupStore) DeleteOlderThan(before time.Time) ([]model.Backup, error) {
	rows, err := s.db.Query(
		`SELECT `+backupCols+` FROM backups WHERE kind = ? AND started_at < ?`,
		model.BackupExport, dbTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("select old backups: %w", err)
	}
	var old []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		old = append(old, *b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`DELETE FROM backups WHERE kind = ? AND started_at < ?`, model.BackupExport, dbTime(before))
	if err != nil {
		return nil, fmt.Errorf("delete old backups: %w", err)
	}
	return old, nil
}

func (s *BackupStore) LatestCompleted(kind model.BackupKind) (*model.Backup, error) {
	row := s.db.QueryRow(
		`SELECT `+backupCols+` FROM backups WHERE kind = ? AND status = ? ORDER BY completed_at DESC, id DESC LIMIT 1`,
		kind, model.BackupStatusCompleted,
	)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed backup: %w", err)
	}
	return b, nil
}

func (s *BackupStore) TotalSize() (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(
		`SELECT SUM(size_bytes) FROM backups WHERE kind = ? AND status = ?`,
		model.BackupExport, model.BackupStatusCompleted,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total backup size: %w", err)
	}
	return total.Int64, nil
}
