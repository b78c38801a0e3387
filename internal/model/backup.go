package model

import "time"

type BackupKind string

const (
	BackupExport BackupKind = "export"
	BackupImport BackupKind = "import"
)

type BackupStatus string

const (
	BackupStatusPending   BackupStatus = "pending"
	BackupStatusRunning   BackupStatus = "running"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// Backup is one recorded export or import job.
type Backup struct {
	ID          int64        `json:"id"`
	Kind        BackupKind   `json:"kind"`
	Filename    string       `json:"filename"`
	RemoteKey   string       `json:"remote_key,omitempty"`
	SizeBytes   int64        `json:"size_bytes"`
	Status      BackupStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}
