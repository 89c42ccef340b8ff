package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/localgw/gatewaycore/internal/observer"
	"go.uber.org/zap"
)

// debounceInterval absorbs editor save patterns (temp file + rename) that
// would otherwise fire two or three fsnotify events per logical edit.
const debounceInterval = 150 * time.Millisecond

// Watcher watches a config file on disk and republishes a ConfigChanged
// event on emitter every time it's edited. Current() returns the last config
// that parsed; a reload that fails to parse leaves it unchanged. The server
// reads DefaultProvider through Current() on every request and uses its
// startup copy for every other setting.
type Watcher struct {
	path    string
	emitter observer.Emitter
	logger  *zap.Logger

	mu      sync.RWMutex
	current Config
}

// NewWatcher loads path once synchronously, then returns a Watcher ready to
// be run in the background via Run.
func NewWatcher(path string, emitter observer.Emitter, logger *zap.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{path: path, emitter: emitter, logger: logger, current: cfg}, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run watches the config file until ctx is cancelled. Parse failures on
// reload are logged and the previous good config is kept in place.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.path); err != nil {
		return err
	}

	var debounceTimer *time.Timer
	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			w.logger.Error("config reload failed, keeping previous config", zap.Error(err), zap.String("path", w.path))
			return
		}
		w.mu.Lock()
		w.current = cfg
		w.mu.Unlock()
		w.logger.Info("config reloaded", zap.String("path", w.path))
		w.emitter.Publish(observer.Event{Type: observer.ConfigChanged, Payload: cfg})
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceInterval, reload)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", zap.Error(err))
		}
	}
}
