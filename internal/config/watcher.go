package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadCallback is called after the config file has been reloaded.
type ReloadCallback func(cfg *Config)

// Watcher monitors the config file and hot-reloads approval overrides
// when it changes. Editors replace files with rename+create, so the
// parent directory is watched rather than the file itself.
type Watcher struct {
	watcher       *fsnotify.Watcher
	loader        *Loader
	overrides     *Overrides
	onReload      ReloadCallback
	logger        zerolog.Logger
	done          chan struct{}
	debounceTimer *time.Timer
	debounceMu    sync.Mutex
	stopOnce      sync.Once
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Loader    *Loader
	Overrides *Overrides
	OnReload  ReloadCallback
	Logger    zerolog.Logger
}

const reloadDebounce = 200 * time.Millisecond

// NewWatcher creates a config watcher
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if cfg.Overrides == nil {
		return nil, fmt.Errorf("overrides are required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:   watcher,
		loader:    cfg.Loader,
		overrides: cfg.Overrides,
		onReload:  cfg.OnReload,
		logger:    cfg.Logger.With().Str("component", "config_watcher").Logger(),
		done:      make(chan struct{}),
	}, nil
}

// Start starts watching the config file's directory
func (w *Watcher) Start() error {
	configPath := w.loader.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("config path could not be resolved")
	}

	if err := w.watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop(configPath)

	w.logger.Info().Str("path", configPath).Msg("Config watcher started")
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Config watcher stopped")
	return nil
}

func (w *Watcher) eventLoop(configPath string) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

// scheduleReload debounces bursts of write events into one reload.
func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn().Err(err).Msg("Config reload failed; keeping previous overrides")
		return
	}

	w.overrides.Replace(cfg.Approvals)
	w.logger.Info().
		Int("globalOverrides", len(cfg.Approvals.Global)).
		Int("conversationOverrides", len(cfg.Approvals.Conversations)).
		Msg("Approval overrides reloaded")

	if w.onReload != nil {
		w.onReload(cfg)
	}
}
