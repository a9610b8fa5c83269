package gen

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounce is how long Watch waits after a change so that a burst of
// writes triggers one run.
const debounce = 100 * time.Millisecond

// Watch runs Generate once, then again whenever a Go file under dir
// changes, until ctx is done. Writes of the generated files themselves are
// ignored.
func (g *Generator) Watch(ctx context.Context, dir string, patterns []string, report func([]Result, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer w.Close()

	if err := watchTree(w, dir); err != nil {
		return fmt.Errorf("error adding directory to watcher: %w", err)
	}

	report(g.Generate(ctx, dir, patterns...))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !g.handle(w, event) {
				continue
			}
			g.logger.Debug("change detected", zap.String("file", event.Name), zap.Stringer("op", event.Op))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				resetTimer(timer, debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			report(g.Generate(ctx, dir, patterns...))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			g.logger.Error("watch error", zap.Error(err))
		}
	}
}

// watchTree adds root and the directories below it to w.
func watchTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "testdata" || name == "vendor"
}

// handle reports whether event should trigger a run. Directories created
// while watching are added to w, and may already hold Go files.
func (g *Generator) handle(w *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if skipDir(filepath.Base(event.Name)) {
				return false
			}
			if err := watchTree(w, event.Name); err != nil {
				g.logger.Warn("cannot watch directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return true
		}
	}
	return g.relevant(event)
}

func (g *Generator) relevant(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".go") || filepath.Base(event.Name) == g.cfg.Output {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// resetTimer stops t, drops a tick it may have delivered, and restarts it.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
