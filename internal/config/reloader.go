package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"html2pdf/pkg/logger"
)

// ChangeCallback is invoked with the newly loaded configuration after a
// debounced file-change event. Only ambient fields (log level/format,
// server rate limits, chrome launch flags) are meant to be acted on live;
// pool sizing changes take effect on the next restart since reshaping a
// running pool's capacity is out of scope for hot-reload.
type ChangeCallback func(ServiceConfig)

// Reloader watches a config file and re-parses it on change, debounced so
// a burst of writes (e.g. an editor's atomic save) triggers one reload.
type Reloader struct {
	path          string
	debounceDelay time.Duration
	log           *logger.Logger

	mu  sync.RWMutex
	cur ServiceConfig

	cbMu      sync.Mutex
	callbacks []ChangeCallback

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewReloader constructs a Reloader for path. Call Load before Start.
func NewReloader(path string, log *logger.Logger) *Reloader {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Reloader{path: path, debounceDelay: time.Second, log: log}
}

// Load performs (or re-performs) a synchronous load of the config file.
func (r *Reloader) Load() error {
	cfg, err := Load(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cur = cfg
	r.mu.Unlock()
	return nil
}

// Current returns the most recently loaded configuration.
func (r *Reloader) Current() ServiceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur
}

// OnChange registers a callback fired after every successful reload.
func (r *Reloader) OnChange(cb ChangeCallback) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Start begins watching the config file's directory for changes. No-op if
// the reloader has no backing path (e.g. defaults-only, no file on disk).
func (r *Reloader) Start() error {
	if r.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	r.watcher = watcher

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return err
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.watch()
	return nil
}

// Stop halts the watch goroutine and releases the fsnotify watcher.
func (r *Reloader) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	if r.watcher != nil {
		r.watcher.Close()
	}
	r.debounceMu.Lock()
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	r.debounceMu.Unlock()
	r.wg.Wait()
}

func (r *Reloader) watch() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				r.scheduleReload()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) scheduleReload() {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	r.debounceTimer = time.AfterFunc(r.debounceDelay, r.reload)
}

func (r *Reloader) reload() {
	cfg, err := Load(r.path)
	if err != nil {
		r.log.Error("config reload failed", zap.String("path", r.path), zap.Error(err))
		return
	}
	r.mu.Lock()
	r.cur = cfg
	r.mu.Unlock()

	r.log.Info("config reloaded", zap.String("path", r.path))

	r.cbMu.Lock()
	callbacks := make([]ChangeCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.cbMu.Unlock()
	for _, cb := range callbacks {
		go cb(cfg)
	}
}
