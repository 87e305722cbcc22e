package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
)

// ArtifactCache stores artifact blobs as plain string values with a TTL.
type ArtifactCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

var _ ports.ArtifactCache = (*ArtifactCache)(nil)

// NewArtifactCache creates an ArtifactCache. A zero ttl keeps entries forever.
func NewArtifactCache(client goredis.UniversalClient, ttl time.Duration) *ArtifactCache {
	return &ArtifactCache{client: client, ttl: ttl}
}

// Name implements ports.ArtifactCache.
func (c *ArtifactCache) Name() string { return "redis" }

func artifactKey(key domain.RuleKey) string {
	return keyPrefix + "artifact:" + key.String()
}

// Get implements ports.ArtifactCache.
func (c *ArtifactCache) Get(ctx context.Context, key domain.RuleKey) ([]byte, bool, error) {
	blob, err := c.client.Get(ctx, artifactKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

// Put implements ports.ArtifactCache.
func (c *ArtifactCache) Put(ctx context.Context, key domain.RuleKey, blob []byte) error {
	return c.client.Set(ctx, artifactKey(key), blob, c.ttl).Err()
}
