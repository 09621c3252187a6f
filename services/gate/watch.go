// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// LoadFile sets the active lexicon to the built-in terms plus those in the
// file at path. An override can add terms but never drop a built-in one.
// On error the previous lexicon stays active.
func (g *Gate) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("gate: read lexicon: %w", err)
	}
	terms, err := ParseLexicon(data)
	if err != nil {
		return err
	}
	active := extendDefaults(terms)
	g.setTerms(active)
	g.logger.Info("gate lexicon loaded", "path", path, "terms", len(active))
	return nil
}

// Watch loads the lexicon at path and reloads it whenever the file changes,
// until ctx is cancelled.
//
// # Description
//
// The parent directory is watched rather than the file itself so editors
// that save by rename-and-replace keep triggering reloads. A reload that
// fails to read or parse is logged and the previous lexicon stays active.
//
// # Outputs
//
//   - error: Non-nil if the initial load fails or the watcher cannot start.
//     No goroutine is left running in that case.
func (g *Gate) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("gate: resolve lexicon path: %w", err)
	}
	if err := g.LoadFile(abs); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("gate: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("gate: watch %s: %w", filepath.Dir(abs), err)
	}

	go g.watchLoop(ctx, watcher, abs)
	return nil
}

func (g *Gate) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := g.LoadFile(path); err != nil {
				g.logger.Warn("gate lexicon reload failed, keeping previous terms",
					"path", path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			g.logger.Warn("gate lexicon watcher error", "error", err)
		}
	}
}
