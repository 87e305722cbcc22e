package rulekey

import (
	"crypto/sha256"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultCacheSize is the number of entries kept when no size is configured.
const DefaultCacheSize = 4096

type cacheKey struct {
	rule *domain.BuildRule
	deps [sha256.Size]byte
}

// entry is replaced whole, never mutated.
type entry struct {
	key    domain.RuleKey
	inputs []Input
}

// Cache recycles rule keys across builds. Entries are keyed by rule identity and the
// dependency keys they were computed from. A hit is only returned when every consumed
// file still hashes the same.
type Cache struct {
	lru *lru.Cache

	mu     sync.RWMutex
	byPath map[string]map[cacheKey]struct{}
}

// NewCache creates a Cache holding at most size entries.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create rule key cache")
	}
	return &Cache{lru: l, byPath: make(map[string]map[cacheKey]struct{})}, nil
}

// depsDigest summarizes a sorted dependency key snapshot.
func depsDigest(deps domain.DepKeys) [sha256.Size]byte {
	h := sha256.New()
	for _, list := range [][]domain.TargetKey{deps.Declared, deps.LateBound} {
		h.Write([]byte{0})
		for _, tk := range list {
			h.Write([]byte(tk.Target.String()))
			h.Write([]byte{0})
			h.Write(tk.Key[:])
		}
	}
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// lookup returns a revalidated key. A stale entry is removed.
func (c *Cache) lookup(k cacheKey, hasher ports.FileHasher) (domain.RuleKey, bool) {
	v, ok := c.lru.Get(k)
	if !ok {
		return domain.RuleKey{}, false
	}
	e := v.(entry) //nolint:forcetypeassert // only entries are stored
	for _, in := range e.inputs {
		current, err := hasher.HashPath(in.Path)
		if err != nil || !slices.Equal(current, in.Hashes) {
			c.lru.Remove(k)
			return domain.RuleKey{}, false
		}
	}
	return e.key, true
}

func (c *Cache) store(k cacheKey, e entry) {
	c.lru.Add(k, e)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, in := range e.inputs {
		set, ok := c.byPath[in.Path]
		if !ok {
			set = make(map[cacheKey]struct{})
			c.byPath[in.Path] = set
		}
		set[k] = struct{}{}
	}
	if len(c.byPath) > 2*c.lru.Len()+DefaultCacheSize {
		c.pruneLocked()
	}
}

// pruneLocked drops index entries of evicted keys.
func (c *Cache) pruneLocked() {
	for path, set := range c.byPath {
		for k := range set {
			if !c.lru.Contains(k) {
				delete(set, k)
			}
		}
		if len(set) == 0 {
			delete(c.byPath, path)
		}
	}
}

// Invalidate drops every entry that consumed one of paths, a file below one of them, or
// a directory containing one of them. It returns the number of dropped entries.
func (c *Cache) Invalidate(paths []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for indexed, set := range c.byPath {
		if !touches(indexed, paths) {
			continue
		}
		for k := range set {
			if c.lru.Contains(k) {
				c.lru.Remove(k)
				dropped++
			}
		}
		delete(c.byPath, indexed)
	}
	return dropped
}

func touches(indexed string, paths []string) bool {
	for _, p := range paths {
		p = filepath.Clean(p)
		if p == indexed ||
			strings.HasPrefix(p, indexed+string(filepath.Separator)) ||
			strings.HasPrefix(indexed, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	clear(c.byPath)
}
