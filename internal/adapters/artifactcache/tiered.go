package artifactcache

import (
	"context"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
)

// Tiered composes a local and a remote cache. Reads go to the local tier first and
// remote hits are copied into it. Writes must reach the local tier; remote write
// failures are logged and ignored.
type Tiered struct {
	local  ports.ArtifactCache
	remote ports.ArtifactCache
	logger ports.Logger
}

var _ ports.ArtifactCache = (*Tiered)(nil)

// NewTiered creates a Tiered cache.
func NewTiered(local, remote ports.ArtifactCache, logger ports.Logger) *Tiered {
	return &Tiered{local: local, remote: remote, logger: logger}
}

// Name implements ports.ArtifactCache.
func (t *Tiered) Name() string { return t.local.Name() + "+" + t.remote.Name() }

// Get implements ports.ArtifactCache. A local failure falls through to the remote tier.
func (t *Tiered) Get(ctx context.Context, key domain.RuleKey) ([]byte, bool, error) {
	blob, hit, err := t.local.Get(ctx, key)
	if err == nil && hit {
		return blob, true, nil
	}
	if err != nil {
		t.logger.Warn("local artifact cache failed, trying remote",
			"backend", t.local.Name(), "error", err.Error())
	}

	blob, hit, err = t.remote.Get(ctx, key)
	if err != nil || !hit {
		return nil, false, err
	}
	if err := t.local.Put(ctx, key, blob); err != nil {
		t.logger.Warn("failed to copy remote artifact to local cache",
			"backend", t.local.Name(), "error", err.Error())
	}
	return blob, true, nil
}

// Put implements ports.ArtifactCache.
func (t *Tiered) Put(ctx context.Context, key domain.RuleKey, blob []byte) error {
	if err := t.local.Put(ctx, key, blob); err != nil {
		return err
	}
	if err := t.remote.Put(ctx, key, blob); err != nil {
		t.logger.Warn("remote artifact cache write failed",
			"backend", t.remote.Name(), "error", err.Error())
	}
	return nil
}
