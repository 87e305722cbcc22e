// Package artifactcache provides the in-memory and tiered artifact caches and opens
// the backend selected by configuration.
package artifactcache

import (
	"context"
	"slices"

	lru "github.com/hashicorp/golang-lru"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
)

// DefaultMemoryEntries bounds the in-memory cache.
const DefaultMemoryEntries = 1024

// Memory is a bounded in-process artifact cache.
type Memory struct {
	entries *lru.Cache
}

var _ ports.ArtifactCache = (*Memory)(nil)

// NewMemory creates a Memory cache holding at most size entries.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Memory{entries: entries}, nil
}

// Name implements ports.ArtifactCache.
func (m *Memory) Name() string { return "memory" }

// Get implements ports.ArtifactCache.
func (m *Memory) Get(ctx context.Context, key domain.RuleKey) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v.([]byte)), true, nil
}

// Put implements ports.ArtifactCache.
func (m *Memory) Put(ctx context.Context, key domain.RuleKey, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries.Add(key, slices.Clone(blob))
	return nil
}

// Len returns the number of entries.
func (m *Memory) Len() int { return m.entries.Len() }
