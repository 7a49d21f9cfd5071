package results

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for a burst of events to settle.
const DefaultDebounce = 250 * time.Millisecond

// Watcher invalidates a store entry whenever its directory changes on disk.
type Watcher struct {
	store    *Store
	dir      string
	watcher  *fsnotify.Watcher
	onChange func(dir string)
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher starts watching dir. onChange, if set, runs after each invalidation.
func NewWatcher(store *Store, dir string, onChange func(dir string), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		store:    store,
		dir:      dir,
		watcher:  fw,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   logger,
	}, nil
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("results directory changed",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("results watcher error", zap.Error(err))

		case <-timer.C:
			w.store.Invalidate(w.dir)
			if w.onChange != nil {
				w.onChange(w.dir)
			}
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return w.store.loader.Recognizes(event.Name)
}
