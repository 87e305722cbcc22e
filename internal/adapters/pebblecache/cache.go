// Package pebblecache implements a local artifact cache on a pebble key-value store.
package pebblecache

import (
	"context"
	"errors"
	"slices"

	"github.com/cockroachdb/pebble"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

var artifactPrefix = []byte("artifact/")

// Cache implements ports.ArtifactCache. Values are the compressed archives as given.
type Cache struct {
	db *pebble.DB
}

var _ ports.ArtifactCache = (*Cache)(nil)

// Open opens or creates the store in dir.
func Open(dir string) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreCreateFailed.Error()), "dir", dir)
	}
	return &Cache{db: db}, nil
}

// Name implements ports.ArtifactCache.
func (c *Cache) Name() string { return "pebble" }

func dbKey(key domain.RuleKey) []byte {
	return append(slices.Clone(artifactPrefix), key[:]...)
}

// Get implements ports.ArtifactCache.
func (c *Cache) Get(ctx context.Context, key domain.RuleKey) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	value, closer, err := c.db.Get(dbKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}
	defer func() { _ = closer.Close() }()
	// The value is only valid until the closer is closed.
	return slices.Clone(value), true, nil
}

// Put implements ports.ArtifactCache.
func (c *Cache) Put(ctx context.Context, key domain.RuleKey, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.db.Set(dbKey(key), blob, pebble.Sync); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	return nil
}

// Close flushes and closes the store.
func (c *Cache) Close() error {
	return c.db.Close()
}
