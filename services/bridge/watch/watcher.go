// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch notices edits to individual files, such as the user's
// project-config template, and reports them after a quiet period.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNoFiles is returned by New when nothing is given to watch.
var ErrNoFiles = errors.New("watch: no files to watch")

// Op is the kind of change observed.
type Op int

const (
	// OpWrite means the file was created or its contents changed.
	OpWrite Op = iota

	// OpRemove means the file was removed or renamed away.
	OpRemove
)

// String returns "write" or "remove".
func (op Op) String() string {
	if op == OpRemove {
		return "remove"
	}
	return "write"
}

// Change is one debounced change to a watched file.
type Change struct {
	// Path is the watched file's cleaned absolute path.
	Path string

	// Op is the last operation seen in the debounce window.
	Op Op

	// Time is when the last event in the window arrived.
	Time time.Time
}

// Handler receives debounced changes, one call per changed file.
type Handler func(Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a file must be quiet before its change is
	// reported. Default: 200ms.
	Debounce time.Duration

	// Logger receives watcher errors. Default: slog.Default().
	Logger *slog.Logger
}

// Watcher reports changes to a fixed set of files.
//
// # Description
//
// fsnotify loses a watch on a file that an editor replaces by rename, so the
// Watcher watches each file's parent directory and filters events by name.
// Bursts of events for the same file (truncate, write, chmod) collapse into
// one Change once the file has been quiet for the debounce window.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use. The handler is called from a
// single goroutine.
type Watcher struct {
	files    map[string]struct{}
	dirs     []string
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// New creates a Watcher for files. Call Start to begin watching.
//
// # Inputs
//
//   - files: Paths to watch. Relative paths are made absolute; empty entries
//     are skipped. The files need not exist yet.
//   - handler: Called with each debounced change.
//   - opts: Optional configuration (nil uses defaults).
//
// # Outputs
//
//   - *Watcher: The watcher, not yet started.
//   - error: ErrNoFiles, or the fsnotify error.
func New(files []string, handler Handler, opts *Options) (*Watcher, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Debounce <= 0 {
		o.Debounce = 200 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	w := &Watcher{
		files:    make(map[string]struct{}),
		handler:  handler,
		debounce: o.Debounce,
		logger:   o.Logger,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	seen := make(map[string]bool)
	for _, f := range files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", f, err)
		}
		w.files[abs] = struct{}{}
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	if len(w.files) == 0 {
		return nil, ErrNoFiles
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.watcher = fw
	return w, nil
}

// Start adds the watches and begins delivering changes. Watching stops when
// ctx is canceled or Stop is called. Starting twice is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.watching = true

	go w.loop(ctx)
	return nil
}

// Stop stops watching and waits for the delivery goroutine to exit.
// Pending changes are dropped.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		started := w.watching
		w.watching = false
		w.mu.Unlock()
		if started {
			<-w.finished
		}
		w.watcher.Close()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// loop collects events per file and flushes each file once it is quiet.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.finished)

	pending := make(map[string]Change)
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	flush := func(now time.Time) {
		var next time.Duration
		for path, c := range pending {
			quiet := now.Sub(c.Time)
			if quiet >= w.debounce {
				delete(pending, path)
				if w.handler != nil {
					w.handler(c)
				}
				continue
			}
			if wait := w.debounce - quiet; next == 0 || wait < next {
				next = wait
			}
		}
		if next > 0 {
			timer.Reset(next)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)
			if _, watched := w.files[path]; !watched {
				continue
			}
			op := OpWrite
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				op = OpRemove
			}
			if len(pending) == 0 {
				timer.Reset(w.debounce)
			}
			pending[path] = Change{Path: path, Op: op, Time: time.Now()}

		case now := <-timer.C:
			flush(now)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}
