package cache

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	applog "kvitto/internal/log"
)

// Watcher reports changes to cached payloads so in-memory views can be
// invalidated when another process writes the cache.
type Watcher struct {
	fs       *fsnotify.Watcher
	root     string
	onChange func(name, key string)
	logger   *applog.Logger
}

// NewWatcher watches root and the directories of the given logical names,
// creating them when missing. onChange receives the logical name and key of
// every created, written, removed or renamed entry. Temp files and chmod
// events are ignored.
func NewWatcher(root string, names []string, logger *applog.Logger, onChange func(name, key string)) (*Watcher, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{fs: fw, root: root, onChange: onChange, logger: logger.WithComponent(applog.ComponentCache)}

	for _, name := range names {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, cacheDirPerm); err != nil {
			fw.Close()
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run delivers events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Cache watcher error", applog.FieldError, err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, fileExt) {
		return
	}
	name := filepath.Base(filepath.Dir(ev.Name))
	key, err := url.PathUnescape(strings.TrimSuffix(base, fileExt))
	if err != nil {
		return
	}
	w.logger.Debug("Cache entry changed", "name", name, "key", key, "op", ev.Op.String())
	w.onChange(name, key)
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}
