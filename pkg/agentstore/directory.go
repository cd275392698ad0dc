// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agentstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kadirpekel/convograph/pkg/graph"
)

const reloadDebounce = 200 * time.Millisecond

// Directory serves every graph document (*.yaml, *.yml, *.json) found
// directly in a directory. Files are keyed by the id inside the document,
// not the file name.
type Directory struct {
	*Memory

	dir string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewDirectory loads the directory once. A document that fails to parse
// or validate fails the whole load.
func NewDirectory(dir string) (*Directory, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	d := &Directory{Memory: NewMemory(), dir: abs}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload rereads every document. On error the previous set stays in place.
func (d *Directory) Reload() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("failed to read agents directory %s: %w", d.dir, err)
	}

	graphs := make(map[string]*graph.AgentGraph)
	sources := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !isGraphFile(e.Name()) {
			continue
		}
		path := filepath.Join(d.dir, e.Name())
		g, err := graph.ParseFile(path)
		if err != nil {
			return err
		}
		if prev, dup := sources[g.ID]; dup {
			return fmt.Errorf("agent %s defined in both %s and %s", g.ID, prev, path)
		}
		graphs[g.ID] = g
		sources[g.ID] = path
	}

	d.replace(graphs)
	slog.Info("Loaded agent graphs", "dir", d.dir, "count", len(graphs))
	return nil
}

// Watch reloads on changes until ctx is done. Failed reloads are logged
// and keep serving the last good set.
func (d *Directory) Watch(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watcher != nil {
		return fmt.Errorf("already watching %s", d.dir)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(d.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", d.dir, err)
	}
	d.watcher = watcher

	go d.watchLoop(ctx, watcher)
	slog.Info("Watching agents directory", "dir", d.dir)
	return nil
}

func (d *Directory) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		d.release(watcher)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-reload:
			if err := d.Reload(); err != nil {
				slog.Error("Failed to reload agent graphs", "dir", d.dir, "error", err)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isGraphFile(event.Name) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Agents watcher error", "dir", d.dir, "error", err)
		}
	}
}

// release closes watcher unless Close already did, so Watch can be called
// again once the loop ends.
func (d *Directory) release(watcher *fsnotify.Watcher) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watcher != watcher {
		return
	}
	if err := watcher.Close(); err != nil {
		slog.Warn("Failed to close agents watcher", "dir", d.dir, "error", err)
	}
	d.watcher = nil
	slog.Debug("Stopped watching agents directory", "dir", d.dir)
}

func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watcher == nil {
		return nil
	}
	err := d.watcher.Close()
	d.watcher = nil
	return err
}

func isGraphFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

var _ Repository = (*Directory)(nil)
