package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"

	"github.com/dustin/go-humanize"
)

// ErrNotRunning is returned when a job is submitted to a stopped manager.
var ErrNotRunning = errors.New("backup manager is not running")

// Config holds backup manager configuration.
type Config struct {
	// Dir receives export files.
	Dir string
	// Passphrase seals scheduled exports when set.
	Passphrase string
	S3         S3Config
}

// State represents the backup manager state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
	Remote     bool       `json:"remote"`
}

// Publisher is the part of the change feed hub the manager reports to.
type Publisher interface {
	Publish(entity, action, id string, extra map[string]any)
}

type job struct {
	kind       model.BackupKind
	name       string
	data       []byte
	passphrase string
	scheduled  bool
	done       chan jobResult

	// abandoned is set when the submitter gave up because the manager
	// stopped. A worker that dequeues it later replies without running it.
	abandoned atomic.Bool
}

type jobResult struct {
	backup *model.Backup
	result Result
	err    error
}

// Manager runs export and import jobs one at a time on a background
// worker, and takes scheduled exports.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status

	svc     *Service
	backups *store.BackupStore
	prefs   *store.PreferenceStore
	pub     Publisher
	client  s3Client
	logger  *slog.Logger
	now     func() time.Time

	jobs        chan *job
	lastAttempt string

	running    bool
	quit       <-chan struct{}
	workerDone chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewManager(cfg Config, svc *Service, backups *store.BackupStore, prefs *store.PreferenceStore, pub Publisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:     cfg,
		svc:     svc,
		backups: backups,
		prefs:   prefs,
		pub:     pub,
		logger:  logger.With("component", "backup"),
		now:     time.Now,
		jobs:    make(chan *job, 8),
		status:  Status{State: StateIdle},
	}
	if cfg.S3.Enabled() {
		m.client = newS3Client(cfg.S3)
		m.status.Remote = true
	}
	return m
}

// Start launches the job worker and the schedule loop.
func (m *Manager) Start(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.Dir, 0o750); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.quit = ctx.Done()
	m.workerDone = make(chan struct{})
	m.running = true
	workerDone := m.workerDone
	m.mu.Unlock()

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		defer close(workerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-m.jobs:
				if j.abandoned.Load() {
					j.done <- jobResult{err: ErrNotRunning}
					continue
				}
				// A job that has started runs to completion.
				j.done <- m.run(context.WithoutCancel(ctx), j)
			}
		}
	}()
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()

	m.logger.Info("backup manager started", "dir", m.cfg.Dir, "remote", m.client != nil)
	return nil
}

// Stop waits for the current job to finish and stops the loops.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.running = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	s.Remote = m.client != nil
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	m.mu.Unlock()

	if m.pub != nil {
		m.pub.Publish("backup", "status", "", map[string]any{
			"state":       s.State,
			"in_progress": s.InProgress,
			"error":       s.Error,
		})
	}
}

func (m *Manager) submit(ctx context.Context, j *job) (jobResult, error) {
	m.mu.RLock()
	running, quit, workerDone := m.running, m.quit, m.workerDone
	m.mu.RUnlock()
	if !running {
		return jobResult{}, ErrNotRunning
	}

	j.done = make(chan jobResult, 1)
	select {
	case m.jobs <- j:
	case <-quit:
		return jobResult{}, ErrNotRunning
	case <-ctx.Done():
		return jobResult{}, ctx.Err()
	}

	select {
	case r := <-j.done:
		return r, nil
	case <-quit:
		// A job the worker dequeued before exiting has its result in done.
		<-workerDone
		j.abandoned.Store(true)
		select {
		case r := <-j.done:
			return r, nil
		default:
			return jobResult{}, ErrNotRunning
		}
	case <-ctx.Done():
		// The job keeps running; only the caller stops waiting.
		return jobResult{}, ctx.Err()
	}
}

// Export queues an export into the backup directory and waits for it.
func (m *Manager) Export(ctx context.Context, passphrase string) (*model.Backup, error) {
	r, err := m.submit(ctx, &job{kind: model.BackupExport, passphrase: passphrase})
	if err != nil {
		return nil, err
	}
	return r.backup, r.err
}

// Import queues an import of raw backup bytes and waits for its result.
func (m *Manager) Import(ctx context.Context, name string, data []byte, passphrase string) (Result, error) {
	r, err := m.submit(ctx, &job{kind: model.BackupImport, name: name, data: data, passphrase: passphrase})
	if err != nil {
		return Result{}, err
	}
	return r.result, r.err
}

// ImportFile reads path and imports it.
func (m *Manager) ImportFile(ctx context.Context, path, passphrase string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read backup: %w", err)
	}
	return m.Import(ctx, filepath.Base(path), data, passphrase)
}

func (m *Manager) run(ctx context.Context, j *job) jobResult {
	m.setStatus(Status{State: StateRunning, InProgress: true})

	var r jobResult
	switch j.kind {
	case model.BackupExport:
		r.backup, r.err = m.export(ctx, j.passphrase, j.scheduled)
	case model.BackupImport:
		r.backup, r.result, r.err = m.importData(ctx, j.name, j.data, j.passphrase)
	}

	if r.err != nil {
		m.setStatus(Status{State: StateError, Error: r.err.Error()})
		return r
	}
	if j.kind == model.BackupExport {
		t := m.now().UTC()
		m.setStatus(Status{State: StateIdle, LastBackup: &t})
	} else {
		m.setStatus(Status{State: StateIdle})
	}
	return r
}

func (m *Manager) export(ctx context.Context, passphrase string, scheduled bool) (*model.Backup, error) {
	filename := fmt.Sprintf("daybook-%s.json", m.now().UTC().Format("2006-01-02T150405Z"))
	if passphrase != "" {
		filename += ".enc"
	}

	record, err := m.backups.Create(model.BackupExport, filename)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}
	fail := func(err error) (*model.Backup, error) {
		m.backups.Finish(record.ID, model.BackupStatusFailed, 0, err.Error())
		return nil, err
	}
	m.backups.UpdateStatus(record.ID, model.BackupStatusRunning, "")

	path := filepath.Join(m.cfg.Dir, filename)
	tmp, err := os.CreateTemp(m.cfg.Dir, ".daybook-export-*")
	if err != nil {
		return fail(fmt.Errorf("create temp file: %w", err))
	}
	defer os.Remove(tmp.Name())

	size, err := m.svc.WriteTo(tmp, passphrase)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fail(fmt.Errorf("move export into place: %w", err))
	}

	msg := "wrote " + humanize.Bytes(uint64(size))
	if scheduled && m.client != nil {
		key, err := m.upload(ctx, path, filename)
		if err != nil {
			// The local copy is still good.
			m.logger.Error("upload export", "file", filename, "error", err)
			msg += ", upload failed: " + err.Error()
		} else {
			m.backups.SetRemoteKey(record.ID, key)
			msg += ", uploaded"
		}
	}

	if err := m.backups.Finish(record.ID, model.BackupStatusCompleted, size, msg); err != nil {
		return nil, err
	}
	m.logger.Info("export complete", "file", filename, "size", humanize.Bytes(uint64(size)), "scheduled", scheduled)
	return m.backups.GetByID(record.ID)
}

func (m *Manager) importData(ctx context.Context, name string, data []byte, passphrase string) (*model.Backup, Result, error) {
	if name == "" {
		name = "upload.json"
	}
	record, err := m.backups.Create(model.BackupImport, name)
	if err != nil {
		return nil, Result{}, fmt.Errorf("create backup record: %w", err)
	}
	m.backups.UpdateStatus(record.ID, model.BackupStatusRunning, "")

	res := m.svc.ReadFrom(ctx, bytes.NewReader(data), passphrase)
	status := model.BackupStatusCompleted
	if !res.Success {
		status = model.BackupStatusFailed
	}
	if err := m.backups.Finish(record.ID, status, int64(len(data)), res.Message); err != nil {
		return nil, res, err
	}
	m.logger.Info("import finished", "file", name, "success", res.Success, "imported", res.Imported, "skipped", res.Skipped)

	b, err := m.backups.GetByID(record.ID)
	return b, res, err
}

// checkSchedule queues the daily export once the configured hour is reached.
func (m *Manager) checkSchedule(ctx context.Context) {
	if !m.prefs.GetBool("backup_enabled", false) {
		return
	}
	now := m.now()
	if now.Hour() < m.prefs.GetInt("backup_schedule_hour", 3) {
		return
	}

	today := now.Format(model.DayLayout)
	if m.lastAttempt == today {
		return
	}
	latest, err := m.backups.LatestCompleted(model.BackupExport)
	if err != nil {
		m.logger.Error("latest export", "error", err)
		return
	}
	if latest != nil && latest.StartedAt.In(now.Location()).Format(model.DayLayout) == today {
		m.lastAttempt = today
		return
	}
	m.lastAttempt = today

	r, err := m.submit(ctx, &job{kind: model.BackupExport, passphrase: m.cfg.Passphrase, scheduled: true})
	if err == nil {
		err = r.err
	}
	if err != nil {
		m.logger.Error("scheduled export failed", "error", err)
	}

	if err := m.Prune(ctx, m.prefs.GetInt("backup_retention_days", 30)); err != nil {
		m.logger.Error("prune exports", "error", err)
	}
}

// Prune removes exports older than retentionDays from disk, remote storage
// and the history.
func (m *Manager) Prune(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	before := m.now().UTC().AddDate(0, 0, -retentionDays)
	old, err := m.backups.DeleteOlderThan(before)
	if err != nil {
		return err
	}

	for _, b := range old {
		if err := os.Remove(filepath.Join(m.cfg.Dir, filepath.Base(b.Filename))); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("remove old export", "file", b.Filename, "error", err)
		}
		if b.RemoteKey != "" && m.client != nil {
			if err := m.deleteRemote(ctx, b.RemoteKey); err != nil {
				m.logger.Warn("delete remote export", "key", b.RemoteKey, "error", err)
			}
		}
	}
	if len(old) > 0 {
		m.logger.Info("pruned exports", "count", len(old), "retention_days", retentionDays)
	}
	return nil
}

// List returns recent backup jobs.
func (m *Manager) List(limit int) ([]model.Backup, error) {
	return m.backups.List(limit)
}

// Path returns the local file of a completed export, or "" if there is none.
func (m *Manager) Path(id int64) (string, *model.Backup, error) {
	b, err := m.backups.GetByID(id)
	if err != nil || b == nil {
		return "", b, err
	}
	if b.Kind != model.BackupExport || b.Status != model.BackupStatusCompleted {
		return "", b, nil
	}
	return filepath.Join(m.cfg.Dir, filepath.Base(b.Filename)), b, nil
}

// Summary reports totals for the status endpoint.
func (m *Manager) Summary() (map[string]string, error) {
	total, err := m.backups.TotalSize()
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"dir":        m.cfg.Dir,
		"total_size": humanize.Bytes(uint64(total)),
		"total":      strconv.FormatInt(total, 10),
	}, nil
}
