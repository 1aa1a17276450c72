package documents

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before synchronizing. Editors fire bursts of events per save; one
// quiet window turns a burst into a single ingestion.
const DefaultDebounce = 2 * time.Second

// Watcher keeps the index in sync with a documents directory while it
// changes on disk.
type Watcher struct {
	pipeline *Pipeline
	dir      string
	debounce time.Duration
	logger   *log.Logger
}

// NewWatcher creates a watcher over one directory.
func NewWatcher(pipeline *Pipeline, dir string, debounce time.Duration, logger *log.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[WATCH] ", log.LstdFlags)
	}
	return &Watcher{
		pipeline: pipeline,
		dir:      dir,
		debounce: debounce,
		logger:   logger,
	}
}

// Run watches the directory until the context is cancelled. Changed files
// are re-ingested, deleted files are removed from the index. Events are
// debounced; whether a path is ingested or removed is decided by whether
// the file still exists once the directory goes quiet, which also settles
// the rename dance some editors perform on save.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Printf("watching %s", w.dir)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				flush = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watch error: %v", err)

		case <-flush:
			timer = nil
			flush = nil
			batch := pending
			pending = make(map[string]struct{})
			w.sync(ctx, batch)
		}
	}
}

// relevant filters events down to content changes of supported, visible
// files. Chmod-only events and directories carry no content change.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if !w.pipeline.Supported(base) {
		return false
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return false
	}
	return true
}

func (w *Watcher) sync(ctx context.Context, batch map[string]struct{}) {
	paths := make([]string, 0, len(batch))
	for path := range batch {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		doc := filepath.Base(path)
		if _, err := os.Stat(path); err != nil {
			if err := w.pipeline.Remove(ctx, doc); err != nil {
				w.logger.Printf("%v", err)
				continue
			}
			w.logger.Printf("removed %s", doc)
			continue
		}
		res, err := w.pipeline.IngestFile(ctx, path, false)
		if err != nil {
			w.logger.Printf("failed to ingest %s: %v", doc, err)
			continue
		}
		if !res.Skipped {
			w.logger.Printf("indexed %s, %d chunks", doc, res.Chunks)
		}
	}
}
