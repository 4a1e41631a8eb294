// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/webdemo/pkg/logging"
)

// DefaultReloadInterval is the minimum spacing between two reloads.
const DefaultReloadInterval = 250 * time.Millisecond

// ErrNoFile is returned by Watch when the settings were not loaded from a
// file.
var ErrNoFile = errors.New("settings have no backing file")

// WatchOptions configures Watch.
type WatchOptions struct {
	// Interval is the minimum spacing between reloads. Defaults to
	// DefaultReloadInterval.
	Interval time.Duration

	// Logger receives reload failures. Defaults to a discarding logger.
	Logger *logging.Logger
}

// Watch reloads the settings whenever the backing file changes and calls
// onChange after each successful reload.
//
// # Description
//
// The parent directory is watched rather than the file so that editors
// that replace the file atomically are still seen. Reloads are throttled
// to one per Interval; events arriving faster wait for the limiter rather
// than being dropped, so the final write is always observed.
//
// # Inputs
//
//   - ctx: Cancels the watch. Must not be nil.
//   - opts: Optional tuning; nil uses defaults.
//   - onChange: Called with the new snapshot. May be nil.
//
// # Outputs
//
//   - error: nil when ctx is cancelled; otherwise the watcher failure.
//
// # Thread Safety
//
// Blocks until ctx is done. Run it in its own goroutine.
func (s *Settings) Watch(ctx context.Context, opts *WatchOptions, onChange func(Config)) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	path := s.Path()
	if path == "" {
		return ErrNoFile
	}
	if opts == nil {
		opts = &WatchOptions{}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := s.Reload(); err != nil {
				logger.Warn("settings reload failed, keeping previous values",
					"path", target, "error", err)
				continue
			}
			logger.Info("settings reloaded", "path", target)
			if onChange != nil {
				onChange(s.Snapshot())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("settings watcher error", "error", err)
		}
	}
}
