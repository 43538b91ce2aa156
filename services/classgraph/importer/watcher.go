// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

// Invalidator drops cached results. *Cache implements it.
type Invalidator interface {
	Invalidate(scope ImportScope)
}

// DefaultWatchDebounce coalesces bursts of file events, such as a build
// writing a whole output directory.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watcher invalidates scopes whose locations change on disk.
//
// Description:
//
//	Directory locations are watched recursively, including directories
//	created later. Archives and single class files are watched through
//	their parent directory. Events are coalesced for the debounce interval
//	before the affected scopes are invalidated.
//
// Thread Safety:
//
//	Watch and Close are safe for concurrent use with Run. Run must be called
//	once.
type Watcher struct {
	fs       *fsnotify.Watcher
	target   Invalidator
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	scopes map[string]ImportScope
}

// NewWatcher creates a watcher invalidating target. A negative debounce
// uses DefaultWatchDebounce; zero invalidates on every event.
func NewWatcher(target Invalidator, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if target == nil {
		return nil, fmt.Errorf("invalidator must not be nil")
	}
	if debounce < 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		fs:       fw,
		target:   target,
		debounce: debounce,
		logger:   logger,
		scopes:   make(map[string]ImportScope),
	}, nil
}

// Watch starts watching the locations of scope.
func (w *Watcher) Watch(scope ImportScope) error {
	scope = scope.normalized()
	if err := scope.Validate(); err != nil {
		return err
	}
	for _, loc := range scope.Locations {
		var err error
		if loc.Kind == source.LocationDirectory {
			err = w.addTree(loc.Path)
		} else {
			err = w.fs.Add(filepath.Dir(loc.Path))
		}
		if err != nil {
			return fmt.Errorf("watching %s: %w", loc, err)
		}
	}
	w.mu.Lock()
	w.scopes[scope.Key()] = scope
	w.mu.Unlock()
	w.logger.Debug("watching scope", slog.String("scope", scope.String()))
	return nil
}

// Watched returns the number of watched scopes.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.scopes)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fs.Add(p)
	})
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[string]ImportScope)
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		for _, scope := range pending {
			w.target.Invalidate(scope)
			w.logger.Info("scope changed on disk, cache invalidated", slog.String("scope", scope.String()))
		}
		clear(pending)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				flush()
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("watching new directory failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
					}
				}
			}
			for key, scope := range w.affected(ev) {
				pending[key] = scope
			}
			if len(pending) == 0 {
				continue
			}
			if w.debounce == 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			flush()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.invalidateAll()
				continue
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// affected returns the watched scopes an event touches.
func (w *Watcher) affected(ev fsnotify.Event) map[string]ImportScope {
	if ev.Op == fsnotify.Chmod {
		return nil
	}
	name := filepath.Clean(ev.Name)
	relevant := strings.HasSuffix(name, ".class") ||
		ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) || ev.Op.Has(fsnotify.Create)

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]ImportScope)
	for key, scope := range w.scopes {
		for _, loc := range scope.Locations {
			path := filepath.Clean(loc.Path)
			var hit bool
			if loc.Kind == source.LocationDirectory {
				hit = relevant && within(path, name)
			} else {
				hit = name == path
			}
			if hit {
				out[key] = scope
				break
			}
		}
	}
	return out
}

// invalidateAll is used after the kernel dropped events.
func (w *Watcher) invalidateAll() {
	w.mu.Lock()
	scopes := make([]ImportScope, 0, len(w.scopes))
	for _, s := range w.scopes {
		scopes = append(scopes, s)
	}
	w.mu.Unlock()
	for _, s := range scopes {
		w.target.Invalidate(s)
	}
	w.logger.Warn("file events overflowed, all watched scopes invalidated", slog.Int("scopes", len(scopes)))
}

// Close stops the watcher. Run returns after Close.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
