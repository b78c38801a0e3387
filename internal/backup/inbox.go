package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const (
	importedSuffix = ".imported"
	failedSuffix   = ".failed"
)

// FileImporter imports one backup file.
type FileImporter interface {
	ImportFile(ctx context.Context, path, passphrase string) (Result, error)
}

// Inbox watches a directory and imports backup files dropped into it.
// Processed files are renamed with an .imported or .failed suffix.
type Inbox struct {
	dir        string
	pattern    string
	passphrase string
	debounce   time.Duration
	importer   FileImporter
	logger     *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewInbox(dir, pattern, passphrase string, importer FileImporter, logger *slog.Logger) (*Inbox, error) {
	if pattern == "" {
		pattern = "*.json"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid inbox pattern %q", pattern)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		dir:        dir,
		pattern:    pattern,
		passphrase: passphrase,
		debounce:   500 * time.Millisecond,
		importer:   importer,
		logger:     logger.With("component", "inbox"),
		timers:     make(map[string]*time.Timer),
	}, nil
}

// Matches reports whether name is a file the inbox should import.
func (in *Inbox) Matches(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, importedSuffix) || strings.HasSuffix(base, failedSuffix) {
		return false
	}
	ok, _ := doublestar.Match(in.pattern, base)
	return ok
}

// Run watches until ctx is done. Files already present are imported first.
func (in *Inbox) Run(ctx context.Context) error {
	if err := os.MkdirAll(in.dir, 0o750); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watch %s: %w", in.dir, err)
	}
	in.logger.Info("watching inbox", "dir", in.dir, "pattern", in.pattern)

	ready := make(chan string, 16)
	defer in.stopTimers()

	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && in.Matches(e.Name()) {
			in.schedule(ctx, filepath.Join(in.dir, e.Name()), ready)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if in.Matches(event.Name) {
				in.schedule(ctx, event.Name, ready)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("fsnotify error", "error", err)
		case path := <-ready:
			in.process(ctx, path)
		}
	}
}

// schedule restarts the debounce timer for path.
func (in *Inbox) schedule(ctx context.Context, path string, ready chan<- string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if t, ok := in.timers[path]; ok {
		t.Stop()
	}
	in.timers[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.timers, path)
		in.mu.Unlock()
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (in *Inbox) stopTimers() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for k, t := range in.timers {
		t.Stop()
		delete(in.timers, k)
	}
}

func (in *Inbox) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	res, err := in.importer.ImportFile(ctx, path, in.passphrase)
	suffix := importedSuffix
	switch {
	case err != nil:
		in.logger.Error("import inbox file", "file", path, "error", err)
		suffix = failedSuffix
	case !res.Success:
		in.logger.Warn("inbox file rejected", "file", path, "message", res.Message)
		suffix = failedSuffix
	default:
		in.logger.Info("inbox file imported", "file", path, "imported", res.Imported, "skipped", res.Skipped)
	}

	if err := os.Rename(path, path+suffix); err != nil {
		in.logger.Error("rename inbox file", "file", path, "error", err)
	}
}
