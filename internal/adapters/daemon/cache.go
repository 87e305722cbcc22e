package daemon

import (
	"maps"
	"sync"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
)

// ServerCache holds the loaded workspaces of the daemon, keyed by workspace root.
//
// An entry is valid while the config file mtimes reported by the loader are exactly
// the stored ones. The daemon and its clients share one filesystem, so the loader's
// view is the client's view.
type ServerCache struct {
	mu      sync.RWMutex
	entries map[string]*domain.WorkspaceCacheEntry
}

// NewServerCache creates a new ServerCache instance.
func NewServerCache() *ServerCache {
	return &ServerCache{entries: make(map[string]*domain.WorkspaceCacheEntry)}
}

// Get returns the cached workspace of root if mtimes match the stored ones.
func (c *ServerCache) Get(root string, mtimes map[string]int64) (*domain.Workspace, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[root]
	if !ok || !maps.Equal(entry.Mtimes, mtimes) {
		return nil, false
	}
	return entry.Workspace, true
}

// Set stores the workspace of root with the mtimes it was loaded at.
func (c *ServerCache) Set(root string, entry *domain.WorkspaceCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[root] = entry
}

// Drop removes the entry of root.
func (c *ServerCache) Drop(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, root)
}

// CachingLoader is a ports.ConfigLoader that reuses workspaces while their config
// files are unchanged.
type CachingLoader struct {
	loader ports.ConfigLoader
	cache  *ServerCache
}

var _ ports.ConfigLoader = (*CachingLoader)(nil)

// NewCachingLoader wraps loader with cache.
func NewCachingLoader(loader ports.ConfigLoader, cache *ServerCache) *CachingLoader {
	return &CachingLoader{loader: loader, cache: cache}
}

// Load implements ports.ConfigLoader.
func (l *CachingLoader) Load(cwd string) (*domain.Workspace, error) {
	root, err := l.loader.DiscoverRoot(cwd)
	if err != nil {
		return nil, err
	}
	mtimes, err := l.loader.DiscoverConfigPaths(cwd)
	if err != nil {
		return nil, err
	}
	if ws, ok := l.cache.Get(root, mtimes); ok {
		return ws, nil
	}

	ws, err := l.loader.Load(cwd)
	if err != nil {
		l.cache.Drop(root)
		return nil, err
	}
	l.cache.Set(root, &domain.WorkspaceCacheEntry{Workspace: ws, Mtimes: mtimes})
	return ws, nil
}

// DiscoverConfigPaths implements ports.ConfigLoader.
func (l *CachingLoader) DiscoverConfigPaths(cwd string) (map[string]int64, error) {
	return l.loader.DiscoverConfigPaths(cwd)
}

// DiscoverRoot implements ports.ConfigLoader.
func (l *CachingLoader) DiscoverRoot(cwd string) (string, error) {
	return l.loader.DiscoverRoot(cwd)
}
