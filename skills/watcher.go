package skills

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 300 * time.Millisecond
	pollInterval    = 50 * time.Millisecond
)

// Watcher rescans a Registry when files under its roots change. Bursts of
// events are collapsed into one Discover once the tree has been quiet for
// the debounce interval.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration
	onReload func([]Skill)

	mu        sync.Mutex
	running   bool
	pending   bool
	lastEvent time.Time
	watched   map[string]bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a rescan.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadHook is called with the new catalog after every rescan.
func WithReloadHook(fn func([]Skill)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for registry. Call Start to begin watching.
func NewWatcher(registry *Registry, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		registry: registry,
		watcher:  fw,
		logger:   registry.logger.Named("watcher"),
		debounce: defaultDebounce,
		watched:  map[string]bool{},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds watches on every root and candidate skill directory and runs
// the event loop in a goroutine. Roots that do not exist are skipped.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.addWatches()
	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("close watcher", zap.Error(err))
	}
}

func (w *Watcher) addWatches() {
	dirs := append(w.registry.Roots(), w.registry.candidates()...)

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, dir := range dirs {
		if w.watched[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Debug("watch skipped", zap.String("dir", dir), zap.Error(err))
			continue
		}
		w.watched[dir] = true
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

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
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("skill tree changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.pending = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	ready := w.pending && time.Since(w.lastEvent) >= w.debounce
	if ready {
		w.pending = false
	}
	w.mu.Unlock()
	if !ready {
		return
	}

	skills, err := w.registry.Discover(ctx)
	if err != nil {
		w.logger.Warn("skill rescan failed", zap.Error(err))
		return
	}
	// New skill or group directories need their own watches.
	w.addWatches()

	w.logger.Info("skills reloaded", zap.Int("count", len(skills)))
	if w.onReload != nil {
		w.onReload(skills)
	}
}
