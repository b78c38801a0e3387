package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type statusRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *statusRecorder) Publish(entity, action, _ string, extra map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, entity+"_"+action+":"+string(extra["state"].(State)))
}

type managerFixture struct {
	m       *Manager
	stores  Stores
	backups *store.BackupStore
	pub     *statusRecorder
	dir     string
}

func newManager(t *testing.T, cfg Config) *managerFixture {
	t.Helper()
	db, stores := openStores(t)
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(t.TempDir(), "backups")
	}
	f := &managerFixture{
		stores:  stores,
		backups: store.NewBackupStore(db),
		pub:     &statusRecorder{},
		dir:     cfg.Dir,
	}
	f.m = NewManager(cfg, NewService(stores, nil, nil), f.backups, stores.Preferences, f.pub, nil)
	return f
}

func (f *managerFixture) start(t *testing.T) {
	t.Helper()
	if err := f.m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(f.m.Stop)
}

func TestManagerRemoteState(t *testing.T) {
	f := newManager(t, Config{})
	if f.m.Status().Remote {
		t.Error("remote should be off without S3 config")
	}
	if f.m.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", f.m.Status().State, StateIdle)
	}

	f2 := newManager(t, Config{S3: S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"}})
	if !f2.m.Status().Remote {
		t.Error("remote should be on with S3 config")
	}
}

func TestManagerNotRunning(t *testing.T) {
	f := newManager(t, Config{})
	if _, err := f.m.Export(context.Background(), ""); !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}
}

func TestSubmitReturnsWhenManagerStops(t *testing.T) {
	f := newManager(t, Config{})

	// A running manager whose worker never dequeues: the job stays buffered
	// until the manager stops.
	quit := make(chan struct{})
	workerDone := make(chan struct{})
	f.m.mu.Lock()
	f.m.running, f.m.quit, f.m.workerDone = true, quit, workerDone
	f.m.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		_, err := f.m.Export(context.Background(), "")
		errc <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(f.m.jobs) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job was never queued")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(quit)
	close(workerDone)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrNotRunning) {
			t.Errorf("err = %v, want ErrNotRunning", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("export did not return after the manager stopped")
	}

	// The buffered job is answered but not run by the next worker.
	j := <-f.m.jobs
	if !j.abandoned.Load() {
		t.Fatal("queued job should be marked abandoned")
	}
	f.m.jobs <- j
	f.start(t)

	select {
	case r := <-j.done:
		if !errors.Is(r.err, ErrNotRunning) {
			t.Errorf("abandoned job err = %v, want ErrNotRunning", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned job was not answered")
	}
	list, err := f.m.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("backups = %d, want 0", len(list))
	}
}

func TestManagerExportAndImport(t *testing.T) {
	f := newManager(t, Config{})
	seed(t, f.stores)
	f.start(t)

	b, err := f.m.Export(context.Background(), "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if b.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want completed", b.Status)
	}
	if b.SizeBytes == 0 {
		t.Error("expected non-zero size")
	}
	if !strings.HasPrefix(b.Message, "wrote ") {
		t.Errorf("message = %q", b.Message)
	}

	path, _, err := f.m.Path(b.ID)
	if err != nil || path == "" {
		t.Fatalf("path = %q, err = %v", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}

	res, err := f.m.Import(context.Background(), "copy.json", data, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !res.Success || res.Tables["notes"] != 2 {
		t.Errorf("import result = %+v", res)
	}
	if n, _ := f.stores.Notes.Count(); n != 4 {
		t.Errorf("notes = %d, want 4", n)
	}

	history, _ := f.m.List(10)
	if len(history) != 2 {
		t.Fatalf("history = %d rows, want 2", len(history))
	}

	if st := f.m.Status(); st.State != StateIdle || st.LastBackup == nil {
		t.Errorf("status = %+v", st)
	}
	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	if len(f.pub.states) < 4 || f.pub.states[0] != "backup_status:running" {
		t.Errorf("published states = %v", f.pub.states)
	}
}

func TestManagerFailedImportRecorded(t *testing.T) {
	f := newManager(t, Config{})
	f.start(t)

	res, err := f.m.Import(context.Background(), "junk.json", []byte("junk"), "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Success {
		t.Fatal("expected failed result")
	}
	history, _ := f.m.List(1)
	if len(history) != 1 || history[0].Status != model.BackupStatusFailed {
		t.Errorf("history = %+v", history)
	}
}

func TestManagerEncryptedExport(t *testing.T) {
	f := newManager(t, Config{})
	f.start(t)

	b, err := f.m.Export(context.Background(), "s3cret")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasSuffix(b.Filename, ".json.enc") {
		t.Errorf("filename = %q", b.Filename)
	}
	path, _, _ := f.m.Path(b.ID)
	data, _ := os.ReadFile(path)
	if !IsSealed(data) {
		t.Error("export should be sealed")
	}
}

func TestScheduledExportUploadsAndPrunes(t *testing.T) {
	mock := newMockS3()
	f := newManager(t, Config{Passphrase: "nightly", S3: S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s", Prefix: "daybook"}})
	f.m.client = mock
	f.start(t)

	f.stores.Preferences.SetMany(map[string]string{
		"backup_enabled":       "true",
		"backup_schedule_hour": "0",
	})

	f.m.checkSchedule(context.Background())

	latest, err := f.backups.LatestCompleted(model.BackupExport)
	if err != nil || latest == nil {
		t.Fatalf("latest = %v, err = %v", latest, err)
	}
	if !strings.HasPrefix(latest.RemoteKey, "daybook/") {
		t.Errorf("remote key = %q", latest.RemoteKey)
	}
	if _, ok := mock.objects[latest.RemoteKey]; !ok {
		t.Error("object not uploaded")
	}
	if !bytes.HasPrefix(mock.objects[latest.RemoteKey], magic) {
		t.Error("scheduled export should be sealed with the configured passphrase")
	}

	// Second check on the same day does nothing.
	f.m.checkSchedule(context.Background())
	if history, _ := f.m.List(10); len(history) != 1 {
		t.Errorf("history = %d rows, want 1", len(history))
	}

	// Forty days later the export is past retention.
	f.m.now = func() time.Time { return time.Now().AddDate(0, 0, 40) }
	if err := f.m.Prune(context.Background(), 30); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(mock.objects) != 0 {
		t.Errorf("remote objects = %d, want 0", len(mock.objects))
	}
	entries, _ := os.ReadDir(f.dir)
	if len(entries) != 0 {
		t.Errorf("local files = %d, want 0", len(entries))
	}
}

func TestScheduledExportDisabled(t *testing.T) {
	f := newManager(t, Config{})
	f.start(t)

	f.m.checkSchedule(context.Background())
	if history, _ := f.m.List(10); len(history) != 0 {
		t.Errorf("history = %d rows, want 0", len(history))
	}
}

func TestUploadFailureKeepsLocalExport(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("bucket gone")
	f := newManager(t, Config{S3: S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}})
	f.m.client = mock
	f.start(t)

	b, err := f.m.submit(context.Background(), &job{kind: model.BackupExport, scheduled: true})
	if err != nil || b.err != nil {
		t.Fatalf("export: %v %v", err, b.err)
	}
	if b.backup.Status != model.BackupStatusCompleted || !strings.Contains(b.backup.Message, "upload failed") {
		t.Errorf("backup = %+v", b.backup)
	}
}
