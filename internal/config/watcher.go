package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher serves the latest chat settings snapshot. It reloads the settings
// file when fsnotify reports a change, so each request reads settings exactly
// once without re-opening the file.
type Watcher struct {
	path string
	log  *zap.Logger

	mu      sync.RWMutex
	current ChatSettings

	fw   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher loads the settings file and starts watching its directory.
// Watching the directory rather than the file survives editors that replace
// the file on save.
func NewWatcher(path string, log *zap.Logger) (*Watcher, error) {
	settings, err := LoadChatSettings(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create settings watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch settings dir: %w", err)
	}

	w := &Watcher{
		path:    path,
		log:     log,
		current: settings,
		fw:      fw,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.path)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			settings, err := LoadChatSettings(w.path)
			if err != nil {
				w.log.Warn("settings reload failed, keeping previous snapshot",
					zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.mu.Lock()
			w.current = settings
			w.mu.Unlock()
			w.log.Info("chat settings reloaded",
				zap.String("provider", settings.Provider), zap.String("model", settings.Model))
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("settings watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// Snapshot returns the current settings value.
func (w *Watcher) Snapshot() ChatSettings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}

// StaticSettings is a Snapshot source over a fixed value, for tests and for
// callers that resolved settings some other way.
type StaticSettings ChatSettings

// Snapshot returns the fixed settings value.
func (s StaticSettings) Snapshot() ChatSettings { return ChatSettings(s) }
