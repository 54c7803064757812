package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/domain"
	"realestate-rag/internal/loader"
)

// DefaultDebounce is how long a path must stay quiet before it is synced.
const DefaultDebounce = 500 * time.Millisecond

// SourceSyncer applies file changes to the index.
type SourceSyncer interface {
	IngestDocument(ctx context.Context, source string) (*IngestResult, error)
	DeleteSource(ctx context.Context, source string) error
}

type changeKind int

const (
	changeIngest changeKind = iota + 1
	changeRemove
	changeDir
)

type fileChange struct {
	kind changeKind
	path string
}

// Watcher keeps the index in sync with a data directory.
type Watcher struct {
	syncer   SourceSyncer
	root     string
	debounce time.Duration
}

// NewWatcher creates a Watcher for root. A relative root is resolved against
// the working directory so event paths match the absolute sources recorded at
// ingestion. A non-positive debounce uses DefaultDebounce.
func NewWatcher(syncer SourceSyncer, root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Watcher{syncer: syncer, root: root, debounce: debounce}
}

// Run watches root and its subdirectories until ctx is done. Created and
// written files are ingested; removed and renamed files are deleted.
func (w *Watcher) Run(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx).With("root", w.root)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = fsw.Close()
	}()

	if err := addRecursive(fsw, w.root); err != nil {
		return err
	}
	logger.InfoContext(ctx, "watching data directory")

	pending := make(map[string]fileChange)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			c, ok := handleFsEvent(ev)
			if !ok {
				continue
			}
			if c.kind == changeDir {
				if err := addRecursive(fsw, c.path); err != nil {
					logger.WarnContext(ctx, "failed to watch directory", "path", c.path, "error", err)
				}
				// Files written before the directory was watched produce no events.
				files, err := loader.Scan(ctx, c.path)
				if err != nil {
					logger.WarnContext(ctx, "failed to scan directory", "path", c.path, "error", err)
				}
				for _, f := range files {
					pending[f.AbsPath] = fileChange{kind: changeIngest, path: f.AbsPath}
				}
			} else {
				pending[c.path] = c
			}
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "watcher error", "error", err)
		case <-timer.C:
			w.flush(ctx, pending)
			clear(pending)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]fileChange) {
	logger := contextutil.LoggerFromContext(ctx)
	for _, c := range pending {
		switch c.kind {
		case changeIngest:
			if _, err := w.syncer.IngestDocument(ctx, c.path); err != nil {
				logger.ErrorContext(ctx, "failed to ingest changed file", "source", c.path, "error", err)
			}
		case changeRemove:
			if err := w.syncer.DeleteSource(ctx, c.path); err != nil && !errors.Is(err, domain.ErrNotFound) {
				logger.ErrorContext(ctx, "failed to delete removed file", "source", c.path, "error", err)
			}
		}
	}
}

// handleFsEvent maps a filesystem event to the change it implies for the index.
func handleFsEvent(ev fsnotify.Event) (fileChange, bool) {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return fileChange{}, false
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if !loader.Supported(ev.Name) {
			return fileChange{}, false
		}
		return fileChange{kind: changeRemove, path: ev.Name}, true
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return fileChange{}, false
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) {
				return fileChange{kind: changeDir, path: ev.Name}, true
			}
			return fileChange{}, false
		}
		if !loader.Supported(ev.Name) {
			return fileChange{}, false
		}
		return fileChange{kind: changeIngest, path: ev.Name}, true
	}
	return fileChange{}, false
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
