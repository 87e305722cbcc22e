package artifactcache

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"go.trai.ch/rig/internal/adapters/cas"
	"go.trai.ch/rig/internal/adapters/pebblecache"
	"go.trai.ch/rig/internal/adapters/redis"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

// ErrUnknownMode is returned for an unsupported [cache] mode.
var ErrUnknownMode = zerr.New("unknown artifact cache mode")

// DefaultRedisAddr is used when [cache] redis_addr is unset.
const DefaultRedisAddr = "localhost:6379"

// Handle is an opened artifact cache. Cache is nil when caching is disabled.
type Handle struct {
	Cache   ports.ArtifactCache
	closers []func() error
}

// Close releases every backend of the handle.
func (h *Handle) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i]())
	}
	h.closers = nil
	return errors.Join(errs...)
}

// Opener builds the artifact cache named by [cache] mode. Tiers are joined with "+",
// local first, for example "dir+redis".
type Opener struct {
	logger ports.Logger
}

// NewOpener creates an Opener.
func NewOpener(logger ports.Logger) *Opener {
	return &Opener{logger: logger}
}

// Open opens the configured cache for the workspace at root.
func (o *Opener) Open(ctx context.Context, root string, cfg domain.Config) (*Handle, error) {
	mode := cfg.String(domain.SectionCache, domain.KeyMode, "dir")
	h := &Handle{}
	if mode == "none" || mode == "" {
		return h, nil
	}

	var tiers []ports.ArtifactCache
	for _, name := range strings.Split(mode, "+") {
		c, err := o.openTier(ctx, h, root, cfg, strings.TrimSpace(name))
		if err != nil {
			_ = h.Close()
			return nil, err
		}
		tiers = append(tiers, c)
	}

	h.Cache = tiers[0]
	for _, remote := range tiers[1:] {
		h.Cache = NewTiered(h.Cache, remote, o.logger)
	}
	return h, nil
}

func (o *Opener) openTier(ctx context.Context, h *Handle, root string, cfg domain.Config, name string) (ports.ArtifactCache, error) {
	switch name {
	case "dir":
		dir := cfg.String(domain.SectionCache, domain.KeyDir, domain.DefaultArtifactCachePath())
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		return cas.NewStore(dir)
	case "pebble":
		c, err := pebblecache.Open(filepath.Join(root, domain.DefaultPebbleCachePath()))
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, c.Close)
		return c, nil
	case "memory":
		return NewMemory(DefaultMemoryEntries)
	case "redis":
		ttl, err := cfg.Duration(domain.SectionCache, domain.KeyRedisTTL, 0)
		if err != nil {
			return nil, err
		}
		client, err := redis.Dial(ctx, cfg.String(domain.SectionCache, domain.KeyRedisAddr, DefaultRedisAddr))
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, client.Close)
		return redis.NewArtifactCache(client, ttl), nil
	default:
		return nil, zerr.With(ErrUnknownMode, "mode", name)
	}
}
