package actiongraph

import (
	"context"
	"sync"
	"sync/atomic"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"golang.org/x/sync/singleflight"
)

// Stats reports the activity of a Cache.
type Stats struct {
	Hits      int64
	Misses    int64
	LateBound int
}

type slot struct {
	fingerprint domain.Fingerprint
	graph       *domain.ActionGraph
}

// Cache holds the action graph of the most recent target graph. A structurally equal
// target graph gets the same *domain.ActionGraph back.
type Cache struct {
	builder *Builder
	metrics ports.Metrics

	mu    sync.RWMutex
	slot  *slot
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates an empty Cache. metrics may be nil.
func NewCache(builder *Builder, metrics ports.Metrics) *Cache {
	return &Cache{builder: builder, metrics: metrics}
}

// Get returns the action graph of tg, reusing the cached one when the fingerprints
// match. Concurrent callers share one build and only a caller that starts a build
// counts a miss. A failed build leaves the cached graph in place.
func (c *Cache) Get(ctx context.Context, tg *domain.TargetGraph) (*domain.ActionGraph, error) {
	fp := tg.Fingerprint()

	c.mu.RLock()
	current := c.slot
	c.mu.RUnlock()

	if current != nil && current.fingerprint == fp {
		current.graph.Reassociate()
		c.hits.Add(1)
		c.record(true)
		return current.graph, nil
	}

	var built bool
	ch := c.group.DoChan(fp.String(), func() (any, error) {
		c.mu.RLock()
		current := c.slot
		c.mu.RUnlock()
		if current != nil && current.fingerprint == fp {
			return current.graph, nil
		}

		// Waiters share this build, so it outlives the cancellation of whoever started it.
		bctx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			bctx, cancel = context.WithDeadline(bctx, deadline)
			defer cancel()
		}
		c.misses.Add(1)
		c.record(false)
		g, err := c.builder.Build(bctx, tg)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.slot = &slot{fingerprint: fp, graph: g}
		c.mu.Unlock()
		built = true
		return g, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if !built {
			c.hits.Add(1)
			c.record(true)
		}
		return res.Val.(*domain.ActionGraph), nil //nolint:forcetypeassert // the group only returns graphs
	}
}

func (c *Cache) record(hit bool) {
	if c.metrics != nil {
		c.metrics.ActionGraphCacheLookup(hit)
	}
}

// Invalidate clears the slot.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = nil
}

// Stats returns hit and miss counts and the late-bound rules of the cached graph.
func (c *Cache) Stats() Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.slot != nil {
		s.LateBound = c.slot.graph.LateBoundCount()
	}
	return s
}
