package cache

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

const defaultDebounceDelay = 100 * time.Millisecond

// InvalidationWatcher drops every cached decision when the policy-store
// version file changes. The file content is opaque; any change in content
// counts as a new policy version. fsnotify drives prompt invalidation and a
// poll interval covers filesystems that do not deliver events.
type InvalidationWatcher struct {
	path          string
	cache         Cache
	watcher       *fsnotify.Watcher
	logger        observability.Logger
	debounceDelay time.Duration
	pollInterval  time.Duration
	onInvalidate  []func()

	mu          sync.Mutex
	lastVersion []byte
	running     bool
	stopCh      chan struct{}
	stoppedCh   chan struct{}
}

// WatcherOption is a functional option for the invalidation watcher.
type WatcherOption func(*InvalidationWatcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger observability.Logger) WatcherOption {
	return func(w *InvalidationWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounceDelay sets the delay used to coalesce bursts of file events.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *InvalidationWatcher) {
		w.debounceDelay = delay
	}
}

// WithPollInterval sets the fallback poll interval. Zero disables polling.
func WithPollInterval(interval time.Duration) WatcherOption {
	return func(w *InvalidationWatcher) {
		w.pollInterval = interval
	}
}

// WithOnInvalidate registers fn to run after the cache has been
// invalidated for a new policy version. Caches derived from policy
// definitions register their flush here.
func WithOnInvalidate(fn func()) WatcherOption {
	return func(w *InvalidationWatcher) {
		if fn != nil {
			w.onInvalidate = append(w.onInvalidate, fn)
		}
	}
}

// NewInvalidationWatcher creates a watcher for the version file at path.
func NewInvalidationWatcher(path string, c Cache, opts ...WatcherOption) (*InvalidationWatcher, error) {
	if c == nil {
		return nil, errors.New("cache is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &InvalidationWatcher{
		path:          absPath,
		cache:         c,
		watcher:       fsWatcher,
		logger:        observability.NopLogger(),
		debounceDelay: defaultDebounceDelay,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start records the current version and begins watching. A missing
// version file is allowed; its later creation counts as a change.
func (w *InvalidationWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	version, err := w.readVersion()
	if err != nil {
		w.setRunning(false)
		return err
	}

	w.mu.Lock()
	w.lastVersion = version
	w.mu.Unlock()

	// Watch the directory so that atomic renames are observed.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.setRunning(false)
		return err
	}

	w.logger.Info("watching policy version file",
		observability.String("path", w.path),
		observability.Duration("pollInterval", w.pollInterval),
	)

	go w.watch(ctx)

	return nil
}

func (w *InvalidationWatcher) setRunning(running bool) {
	w.mu.Lock()
	w.running = running
	w.mu.Unlock()
}

// Stop stops watching and releases the fsnotify watcher.
func (w *InvalidationWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

func (w *InvalidationWatcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	var pollCh <-chan time.Time
	if w.pollInterval > 0 {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		pollCh = ticker.C
	}

	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Debug("policy version file event",
				observability.String("op", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounceDelay)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.check(ctx)

		case <-pollCh:
			w.check(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("policy version watcher error", observability.Error(err))
		}
	}
}

// check invalidates the cache when the version content has changed.
func (w *InvalidationWatcher) check(ctx context.Context) {
	version, err := w.readVersion()
	if err != nil {
		w.logger.Warn("failed to read policy version file",
			observability.String("path", w.path),
			observability.Error(err),
		)
		return
	}

	w.mu.Lock()
	changed := !bytes.Equal(version, w.lastVersion)
	w.lastVersion = version
	w.mu.Unlock()

	if !changed {
		return
	}

	w.logger.Info("policy version changed, invalidating decision cache",
		observability.String("version", string(version)),
	)
	w.cache.InvalidateAll(ctx)
	for _, fn := range w.onInvalidate {
		fn()
	}
}

func (w *InvalidationWatcher) readVersion() ([]byte, error) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(data), nil
}
