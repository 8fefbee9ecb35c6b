package schemafile

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/logging"
)

// ReloadCallback receives every successfully assembled snapshot: once on
// Start and once per reload. An error from the initial call aborts Start;
// errors on later calls are logged and the previous snapshot stays in place.
type ReloadCallback func(snapshot *schema.Snapshot) error

// WatcherConfig holds configuration for the schema directory watcher.
type WatcherConfig struct {
	// Dir is the directory holding the schema YAML files.
	Dir string

	// DebounceMillis coalesces bursts of file events (editor save
	// sequences, multi-file syncs) into a single reload. Default: 500ms.
	DebounceMillis int
}

// Watcher watches the schema directory and rebuilds the snapshot when files
// change. A reload that fails to parse or validate is logged and dropped;
// the watcher keeps running with the previous snapshot installed.
type Watcher struct {
	config   WatcherConfig
	callback ReloadCallback
	logger   *logging.Logger
	cancel   context.CancelFunc
	stopped  chan struct{}
	ready    chan struct{} // closed once the fsnotify watch is armed
	mu       sync.Mutex

	// debounceTimer coalesces multiple file change events
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the given schema directory. The callback
// is invoked with the initial snapshot and every valid reload.
func NewWatcher(config WatcherConfig, callback ReloadCallback) (*Watcher, error) {
	if config.Dir == "" {
		return nil, errdefs.New(errdefs.KindValidation, "schema watcher requires a directory")
	}
	if callback == nil {
		return nil, errdefs.New(errdefs.KindValidation, "schema watcher requires a callback")
	}
	if config.DebounceMillis == 0 {
		config.DebounceMillis = 500
	}

	return &Watcher{
		config:   config,
		callback: callback,
		logger:   logging.GetLogger("schemafile"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Start loads the schema directory, delivers the initial snapshot to the
// callback, and arms the file watch. It returns once the watch is armed, so
// no change after Start can be missed.
func (w *Watcher) Start(ctx context.Context) error {
	snapshot, err := Load(w.config.Dir)
	if err != nil {
		return err
	}
	if err := w.callback(snapshot); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return errdefs.New(errdefs.KindTransient, "timeout waiting for schema watcher to start")
	}

	return nil
}

// signalReady closes the ready channel exactly once.
func (w *Watcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.ErrorWithErr("unable to create file watcher", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.Dir); err != nil {
		w.logger.ErrorWithErr("unable to watch schema directory %s", err, w.config.Dir)
		return
	}

	w.logger.InfoWithFields("watching schema directory",
		logging.Field("dir", w.config.Dir),
		logging.Field("debounce_ms", w.config.DebounceMillis),
	)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("schema watcher context cancelled")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			// A removed or renamed directory invalidates the watch; this
			// happens when the whole schema directory is swapped out. Wait
			// for the replacement and re-add.
			if event.Name == w.config.Dir && event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.config.Dir); err != nil {
					w.logger.ErrorWithErr("unable to re-add watch after %s", err, event.Op)
				}
			}
			w.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.ErrorWithErr("schema watcher error", err)
		}
	}
}

// relevant filters the event stream down to schema file changes and changes
// to the watched directory itself.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	return event.Name == w.config.Dir || isSchemaFile(filepath.Base(event.Name))
}

// scheduleReload resets the debounce timer; the reload runs once the events
// go quiet for the debounce period.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(
		time.Duration(w.config.DebounceMillis)*time.Millisecond,
		w.reload,
	)
}

func (w *Watcher) reload() {
	w.logger.Debug("reloading schema from %s", w.config.Dir)

	snapshot, err := Load(w.config.Dir)
	if err != nil {
		w.logger.ErrorWithErr("schema reload failed, keeping previous snapshot", err)
		return
	}
	if err := w.callback(snapshot); err != nil {
		w.logger.ErrorWithErr("schema reload rejected, keeping previous snapshot", err)
		return
	}
}

// Stop cancels the watch loop and waits for it to exit.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	select {
	case <-w.stopped:
		w.logger.Debug("schema watcher stopped")
		return nil
	case <-ctx.Done():
		return errdefs.Wrap(errdefs.KindTransient, ctx.Err(), "timeout waiting for schema watcher to stop")
	case <-time.After(5 * time.Second):
		return errdefs.New(errdefs.KindTransient, "timeout waiting for schema watcher to stop")
	}
}
