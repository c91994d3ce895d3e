// SPDX-License-Identifier: MIT

package comfy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Amore-GG/BE/internal/log"
)

// TemplateStore caches parsed graph templates and invalidates entries
// when the underlying files change.
type TemplateStore struct {
	mu    sync.RWMutex
	cache map[string]Graph
}

// NewTemplateStore returns an empty template cache.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{cache: map[string]Graph{}}
}

// Load returns a deep copy of the template at path, parsing and caching
// it on first use.
func (t *TemplateStore) Load(path string) (Graph, error) {
	t.mu.RLock()
	g, ok := t.cache[path]
	t.mu.RUnlock()
	if ok {
		return g.Clone(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow template: %w", err)
	}
	g, err = ParseGraph(data)
	if err != nil {
		return nil, fmt.Errorf("workflow template %s: %w", path, err)
	}

	t.mu.Lock()
	t.cache[path] = g
	t.mu.Unlock()
	return g.Clone(), nil
}

// Invalidate drops a cached template.
func (t *TemplateStore) Invalidate(path string) {
	t.mu.Lock()
	delete(t.cache, path)
	t.mu.Unlock()
}

// Watch invalidates cache entries when files under dir change. It blocks
// until ctx is cancelled.
func (t *TemplateStore) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create workflow watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch workflow dir: %w", err)
	}

	logger := log.WithComponent("comfy.templates")
	logger.Info().Str(log.FieldPath, dir).Msg("workflow template watcher started")

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			t.Invalidate(ev.Name)
			t.Invalidate(filepath.Clean(ev.Name))
			logger.Debug().Str(log.FieldPath, ev.Name).Msg("workflow template invalidated")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("workflow watcher error")
		case <-ctx.Done():
			logger.Info().Msg("workflow template watcher stopped")
			return ctx.Err()
		}
	}
}
