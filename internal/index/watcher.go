package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/skeleton"
)

// DefaultDebounce is how long the watcher waits for the file system to
// settle before resyncing.
const DefaultDebounce = 200 * time.Millisecond

// watchedExts are the artifact extensions whose changes trigger a resync.
var watchedExts = []string{".csv", ".json", ".png", ".jpg", ".jpeg"}

// EventCallback is called after each watcher-driven index change.
// kind is one of KindCreated, KindUpdated, KindDeleted.
type EventCallback func(kind string, id models.Identity)

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// Watch starts an fsnotify watcher on root and keeps the index in sync until
// ctx is cancelled. Artifact events are coalesced: each burst schedules a
// single Sync pass once no event has arrived for the debounce interval, and
// cb (if non-nil) receives every change that pass made.
//
// New directories created at runtime are added to the watch list.
func Watch(ctx context.Context, db *DB, root string, mgr *skeleton.Manager, logger *slog.Logger, cb EventCallback, opts ...WatchOption) error {
	cfg := watchConfig{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&cfg)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var resyncTimer *time.Timer
	var resyncCh <-chan time.Time

	scheduleResync := func() {
		if resyncTimer == nil {
			resyncTimer = time.NewTimer(cfg.debounce)
			resyncCh = resyncTimer.C
		} else {
			resyncTimer.Reset(cfg.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if resyncTimer != nil {
				resyncTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-resyncCh:
			resync(db, root, mgr, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					// The directory may have arrived with artifacts inside.
					scheduleResync()
					continue
				}
			}

			// A removed or renamed directory carries no extension but may
			// take whole tables with it.
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 || relevant(ev.Name) {
				scheduleResync()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func resync(db *DB, root string, mgr *skeleton.Manager, logger *slog.Logger, cb EventCallback) {
	changes, err := Sync(db, root, mgr, logger)
	if err != nil {
		logger.Warn("watcher: resync failed", slog.String("error", err.Error()))
		return
	}
	for _, c := range changes {
		logger.Debug("watcher: indexed",
			slog.String("paper_id", c.ID.PaperID),
			slog.String("table_id", c.ID.TableID),
			slog.String("op", c.Kind))
		if cb != nil {
			cb(c.Kind, c.ID)
		}
	}
}

func relevant(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range watchedExts {
		if ext == e {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
