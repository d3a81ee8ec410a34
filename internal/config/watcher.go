// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change
// before reloading. Editors usually write a file in several steps.
const DefaultDebounce = 250 * time.Millisecond

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// Watcher reloads configuration when its file changes and hands each valid
// result to a callback. Invalid files are logged and skipped so the last
// good configuration stays in effect.
type Watcher struct {
	watcher  *fsnotify.Watcher
	names    map[string]bool
	load     func() (*Config, error)
	onChange func(*Config)
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// Watch watches the default config directory for assistant.toml and
// assistant.json and reloads with Load.
func Watch(onChange func(*Config)) (*Watcher, error) {
	if err := EnsureConfigDir(); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return newWatcher(dir, []string{tomlFileName, jsonFileName}, Load, onChange)
}

// WatchPath watches a single config file and reloads with LoadFromPath.
func WatchPath(path string, onChange func(*Config)) (*Watcher, error) {
	return newWatcher(filepath.Dir(path), []string{filepath.Base(path)}, func() (*Config, error) {
		return LoadFromPath(path)
	}, onChange)
}

// newWatcher watches dir rather than the file itself so atomic replacement
// by rename is seen.
func newWatcher(dir string, names []string, load func() (*Config, error), onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		watcher:  fw,
		names:    make(map[string]bool, len(names)),
		load:     load,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, n := range names {
		w.names[n] = true
	}

	w.wg.Add(1)
	go w.processEvents()
	return w, nil
}

// SetDebounce changes the reload delay.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// SetLogger sets the logger for reload diagnostics.
func (w *Watcher) SetLogger(l *slog.Logger) {
	if l != nil {
		w.mu.Lock()
		w.logger = l
		w.mu.Unlock()
	}
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.names[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log().Warn("config watcher error", "error", err)
		}
	}
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := w.load()
	if err != nil {
		w.log().Warn("config reload failed, keeping previous settings", "error", err)
		return
	}
	w.log().Info("config reloaded", "model", cfg.Model, "server_url", cfg.ServerURL)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func (w *Watcher) log() *slog.Logger {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logger
}

// Exists reports whether any config file is present in the config directory.
func Exists() bool {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		if p, err := pathFn(); err == nil {
			if _, err := os.Stat(p); err == nil {
				return true
			}
		}
	}
	return false
}
