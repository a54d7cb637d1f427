// SPDX-License-Identifier: MIT

// Package watcher hot-reloads a single script file by watching it
// directly with fsnotify, the same library driving config-file watching
// elsewhere in this codebase — promoted here from an indirect dependency
// (pulled in transitively by koanf's file provider) to a direct one,
// since the script file being watched is not a koanf config file.
package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config tunes debounce behavior.
type Config struct {
	// Debounce coalesces bursts of filesystem events (editors frequently
	// emit write+chmod+rename sequences for a single save) into one reload.
	Debounce time.Duration
}

// DefaultConfig matches common editor save patterns.
func DefaultConfig() Config {
	return Config{Debounce: 100 * time.Millisecond}
}

// Watcher watches one file path and invokes a callback, debounced, when
// its contents change. Create and Remove events are ignored: editors that
// save via rename-and-replace emit both, and reacting to either without
// the eventual Write would reload a half-written or momentarily absent
// file.
type Watcher struct {
	cfg    Config
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	path   string
}

// New creates a Watcher for path. Call Run to start watching.
func New(path string, cfg Config, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg = DefaultConfig()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{cfg: cfg, logger: logger, fsw: fsw, path: path}, nil
}

// Close stops watching and releases the underlying fsnotify resources.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run blocks, invoking onChange (debounced) whenever the watched file is
// written, and logging-and-continuing on any watch error rather than
// exiting. Returns when ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func()) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove) != 0 {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.cfg.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			onChange()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher observed an error, continuing", "path", w.path, "err", err)
		}
	}
}
